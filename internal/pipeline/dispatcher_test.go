package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/geyserflow/internal/geyser"
	"github.com/drblury/geyserflow/internal/logging"
	"github.com/drblury/geyserflow/internal/metrics"
)

func nopLogger() logging.ServiceLogger {
	return logging.NewWatermillServiceLogger(watermill.NopLogger{})
}

// streamItem is one scripted Recv result.
type streamItem struct {
	upd geyser.Update
	err error
}

type fakeStream struct {
	mu    sync.Mutex
	items []streamItem
	pos   int
}

func (s *fakeStream) Recv() (geyser.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.items) {
		return nil, io.EOF
	}
	item := s.items[s.pos]
	s.pos++
	return item.upd, item.err
}

func (s *fakeStream) position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

type fakeSlots struct {
	mu    sync.Mutex
	slots map[geyser.CommitmentLevel]uint64
	err   error
	calls int
}

func (f *fakeSlots) GetSlot(_ context.Context, commitment geyser.CommitmentLevel) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.slots[commitment], nil
}

func (f *fakeSlots) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func txUpdate(slot uint64) *geyser.TransactionUpdate {
	return &geyser.TransactionUpdate{
		Slot:        slot,
		Transaction: &geyser.TransactionInfo{Signature: make([]byte, 64)},
	}
}

func newTestDispatcher(stream geyser.UpdateStream, slots SlotQuerier, queue chan Message, done <-chan struct{}) (*Dispatcher, *metrics.Registry) {
	registry := metrics.NewRegistry()
	d := NewDispatcher(stream, slots, queue, done, registry, nopLogger())
	return d, registry
}

func collectQueue(queue chan Message) []Message {
	var out []Message
	for {
		select {
		case msg := <-queue:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestDispatcherRoutesAndFilters(t *testing.T) {
	stream := &fakeStream{items: []streamItem{
		{upd: txUpdate(10)},
		{upd: &geyser.AccountUpdate{Slot: 10, Account: &geyser.AccountInfo{}}},
		{upd: &geyser.SlotUpdate{Slot: 11}},
		{upd: &geyser.BlockMetaUpdate{Slot: 11, Blockhash: "HashA"}},
		{upd: &geyser.PingUpdate{}},
		{upd: &geyser.EntryUpdate{Slot: 11}},
	}}
	queue := make(chan Message, 16)
	d, registry := newTestDispatcher(stream, &fakeSlots{}, queue, make(chan struct{}))

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	msgs := collectQueue(queue)
	if len(msgs) != 3 {
		t.Fatalf("got %d queued messages, want tx + blockmeta + shutdown", len(msgs))
	}
	if _, ok := msgs[0].(*TransactionMessage); !ok {
		t.Errorf("msgs[0] = %T, want TransactionMessage", msgs[0])
	}
	if _, ok := msgs[1].(*BlockMetadataMessage); !ok {
		t.Errorf("msgs[1] = %T, want BlockMetadataMessage", msgs[1])
	}
	if _, ok := msgs[2].(*ShutdownMessage); !ok {
		t.Errorf("msgs[2] = %T, want ShutdownMessage last", msgs[2])
	}

	if got := registry.Accounts(); got != 1 {
		t.Errorf("account counter = %d, want 1", got)
	}
	if d.State() != StateStopped {
		t.Errorf("state = %v, want stopped", d.State())
	}
}

func TestDispatcherBackpressure(t *testing.T) {
	stream := &fakeStream{items: []streamItem{
		{upd: txUpdate(1)},
		{upd: txUpdate(2)},
		{upd: txUpdate(3)},
	}}
	queue := make(chan Message, 1)
	d, _ := newTestDispatcher(stream, &fakeSlots{}, queue, make(chan struct{}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(context.Background())
	}()

	// With capacity 1 and nobody consuming, the dispatcher must block on the
	// second item instead of dropping it.
	time.Sleep(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("dispatcher finished against a full queue without a consumer")
	default:
	}
	if d.State() != StateRunning {
		t.Fatalf("state = %v, want running while suspended", d.State())
	}

	var slots []uint64
	for len(slots) < 3 {
		msg := <-queue
		tx, ok := msg.(*TransactionMessage)
		if !ok {
			t.Fatalf("got %T before all transactions", msg)
		}
		slots = append(slots, tx.Update.Slot)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not finish after the queue drained")
	}

	for i, slot := range slots {
		if slot != uint64(i+1) {
			t.Errorf("slot order = %v, want 1,2,3", slots)
			break
		}
	}
	if msg := <-queue; msg == nil {
		t.Fatal("missing shutdown sentinel")
	} else if _, ok := msg.(*ShutdownMessage); !ok {
		t.Errorf("trailing message = %T, want ShutdownMessage", msg)
	}
}

func TestDispatcherStopsWhenConsumerCloses(t *testing.T) {
	stream := &fakeStream{items: []streamItem{
		{upd: txUpdate(1)},
		{upd: txUpdate(2)},
		{upd: txUpdate(3)},
	}}
	queue := make(chan Message) // unbuffered, nobody reading
	consumerDone := make(chan struct{})
	close(consumerDone)

	d, _ := newTestDispatcher(stream, &fakeSlots{}, queue, consumerDone)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if d.State() != StateStopped {
		t.Errorf("state = %v, want stopped", d.State())
	}
	// Only the first item is read before the failed enqueue stops the loop.
	if stream.position() != 1 {
		t.Errorf("stream position = %d, want 1", stream.position())
	}
}

func TestDispatcherSkipsTransportErrors(t *testing.T) {
	stream := &fakeStream{items: []streamItem{
		{err: &geyser.TransportError{Err: errors.New("bad frame")}},
		{upd: txUpdate(5)},
	}}
	queue := make(chan Message, 4)
	d, _ := newTestDispatcher(stream, &fakeSlots{}, queue, make(chan struct{}))

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	msgs := collectQueue(queue)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want tx + shutdown", len(msgs))
	}
	tx, ok := msgs[0].(*TransactionMessage)
	if !ok || tx.Update.Slot != 5 {
		t.Errorf("msgs[0] = %#v, want transaction at slot 5", msgs[0])
	}
}

func TestDispatcherStopsOnTerminalError(t *testing.T) {
	stream := &fakeStream{items: []streamItem{
		{upd: txUpdate(1)},
		{err: errors.New("connection reset")},
		{upd: txUpdate(2)},
	}}
	queue := make(chan Message, 4)
	d, _ := newTestDispatcher(stream, &fakeSlots{}, queue, make(chan struct{}))

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	msgs := collectQueue(queue)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want one tx + shutdown", len(msgs))
	}
	if stream.position() != 2 {
		t.Errorf("stream position = %d, want 2 (nothing read past the failure)", stream.position())
	}
}

func TestDispatcherWatermarkSampling(t *testing.T) {
	slots := &fakeSlots{slots: map[geyser.CommitmentLevel]uint64{
		geyser.CommitmentProcessed: 105,
		geyser.CommitmentConfirmed: 103,
		geyser.CommitmentFinalized: 101,
	}}
	queue := make(chan Message, 16)
	d, _ := newTestDispatcher(&fakeStream{}, slots, queue, make(chan struct{}))

	current := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return current }
	ctx := context.Background()

	// First observation samples immediately: three queries, one per tier.
	d.maybeLogWatermarks(ctx, 100)
	if got := slots.callCount(); got != 3 {
		t.Fatalf("calls after first sample = %d, want 3", got)
	}

	// Inside the window: no queries.
	current = current.Add(time.Second)
	d.maybeLogWatermarks(ctx, 101)
	if got := slots.callCount(); got != 3 {
		t.Errorf("calls inside window = %d, want still 3", got)
	}

	// Past the window: sampled again.
	current = current.Add(watermarkInterval)
	d.maybeLogWatermarks(ctx, 102)
	if got := slots.callCount(); got != 6 {
		t.Errorf("calls after window = %d, want 6", got)
	}
}

func TestDispatcherWatermarkFailureResetsWindow(t *testing.T) {
	slots := &fakeSlots{err: errors.New("slot query failed")}
	queue := make(chan Message, 16)
	d, _ := newTestDispatcher(&fakeStream{}, slots, queue, make(chan struct{}))

	current := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return current }
	ctx := context.Background()

	// The first tier fails and short-circuits the remaining queries.
	d.maybeLogWatermarks(ctx, 100)
	if got := slots.callCount(); got != 1 {
		t.Fatalf("calls after failed sample = %d, want 1", got)
	}

	// The window still advanced despite the failure.
	current = current.Add(time.Second)
	d.maybeLogWatermarks(ctx, 101)
	if got := slots.callCount(); got != 1 {
		t.Errorf("calls inside window after failure = %d, want still 1", got)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateRunning, "running"},
		{StateDraining, "draining"},
		{StateStopped, "stopped"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
