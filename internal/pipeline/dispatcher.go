package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/drblury/geyserflow/internal/geyser"
	"github.com/drblury/geyserflow/internal/logging"
	"github.com/drblury/geyserflow/internal/metrics"
)

// watermarkInterval is the minimum spacing between lag samples.
const watermarkInterval = 5 * time.Second

// State is the dispatcher lifecycle. Transitions are unidirectional:
// Running -> Draining -> Stopped.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "stopped"
	}
}

// SlotQuerier answers the out-of-band watermark queries.
type SlotQuerier interface {
	GetSlot(ctx context.Context, commitment geyser.CommitmentLevel) (uint64, error)
}

// WatermarkSample is one lag observation. It feeds a single log line and is
// not retained.
type WatermarkSample struct {
	ObservedSlot  uint64
	ProcessedSlot uint64
	ConfirmedSlot uint64
	FinalizedSlot uint64
}

// Dispatcher owns the subscription lifecycle: it consumes the inbound stream,
// classifies updates, and forwards transactions and block metadata onto the
// bounded queue. A full queue suspends the dispatcher, and with it the
// upstream read; that suspension is the pipeline's backpressure valve.
type Dispatcher struct {
	stream       geyser.UpdateStream
	slots        SlotQuerier
	queue        chan<- Message
	consumerDone <-chan struct{}
	metrics      *metrics.Registry
	log          logging.ServiceLogger

	state         atomic.Int32
	lastSlotCheck time.Time
	now           func() time.Time
}

func NewDispatcher(
	stream geyser.UpdateStream,
	slots SlotQuerier,
	queue chan<- Message,
	consumerDone <-chan struct{},
	registry *metrics.Registry,
	log logging.ServiceLogger,
) *Dispatcher {
	return &Dispatcher{
		stream:       stream,
		slots:        slots,
		queue:        queue,
		consumerDone: consumerDone,
		metrics:      registry,
		log:          log,
		now:          time.Now,
	}
}

// State reports the current lifecycle state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Run consumes the stream until it ends or the consumer side closes. A clean
// end of stream returns nil after the shutdown sentinel has been offered to
// the worker.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.state.Store(int32(StateRunning))
	defer d.state.Store(int32(StateStopped))

	for {
		upd, err := d.stream.Recv()
		if err != nil {
			var transportErr *geyser.TransportError
			if errors.As(err, &transportErr) {
				// Single-item failure; the stream stays open.
				d.log.Error("stream item failed", err, nil)
				continue
			}
			if !errors.Is(err, io.EOF) {
				d.log.Error("stream ended", err, nil)
			}
			break
		}

		if !d.dispatch(ctx, upd) {
			d.drain()
			return nil
		}
	}

	d.drain()
	return nil
}

// dispatch classifies one update. It returns false once the consumer side has
// closed and no further upstream items should be read.
func (d *Dispatcher) dispatch(ctx context.Context, upd geyser.Update) bool {
	switch u := upd.(type) {
	case *geyser.TransactionUpdate:
		d.maybeLogWatermarks(ctx, u.Slot)
		return d.enqueue(&TransactionMessage{Update: u})
	case *geyser.BlockMetaUpdate:
		d.maybeLogWatermarks(ctx, u.Slot)
		return d.enqueue(&BlockMetadataMessage{Update: u})
	case *geyser.AccountUpdate:
		d.metrics.IncAccounts()
		return true
	case *geyser.SlotUpdate,
		*geyser.TransactionStatusUpdate,
		*geyser.EntryUpdate,
		*geyser.BlockUpdate,
		*geyser.PingUpdate,
		*geyser.PongUpdate:
		// Acknowledged and discarded: these kinds are not routed to the bus.
		return true
	default:
		d.log.Error("unhandled update kind", nil, logging.LogFields{
			"kind": typeName(upd),
		})
		return true
	}
}

// enqueue blocks while the queue is full. It returns false only when the
// consumer has stopped.
func (d *Dispatcher) enqueue(msg Message) bool {
	select {
	case d.queue <- msg:
		return true
	case <-d.consumerDone:
		return false
	}
}

// drain transitions through Draining and enqueues the shutdown sentinel
// behind everything already queued. The send waits out a full queue but gives
// up once the worker is gone.
func (d *Dispatcher) drain() {
	d.state.Store(int32(StateDraining))
	select {
	case d.queue <- &ShutdownMessage{}:
	case <-d.consumerDone:
	}
}

// maybeLogWatermarks samples upstream lag at most once per window. The three
// queries are each best-effort; the line is logged only when all three
// succeed, and the window resets either way.
func (d *Dispatcher) maybeLogWatermarks(ctx context.Context, slot uint64) {
	if d.now().Sub(d.lastSlotCheck) < watermarkInterval {
		return
	}
	defer func() { d.lastSlotCheck = d.now() }()

	sample, ok := d.sampleWatermarks(ctx, slot)
	if !ok {
		return
	}

	d.log.Info("slot watermarks", logging.LogFields{
		"slot":            sample.ObservedSlot,
		"processed":       sample.ProcessedSlot,
		"confirmed":       sample.ConfirmedSlot,
		"finalized":       sample.FinalizedSlot,
		"processed_delta": int64(sample.ProcessedSlot) - int64(sample.ObservedSlot),
		"confirmed_delta": int64(sample.ConfirmedSlot) - int64(sample.ObservedSlot),
		"finalized_delta": int64(sample.FinalizedSlot) - int64(sample.ObservedSlot),
	})
}

func (d *Dispatcher) sampleWatermarks(ctx context.Context, slot uint64) (WatermarkSample, bool) {
	processed, err := d.slots.GetSlot(ctx, geyser.CommitmentProcessed)
	if err != nil {
		return WatermarkSample{}, false
	}
	confirmed, err := d.slots.GetSlot(ctx, geyser.CommitmentConfirmed)
	if err != nil {
		return WatermarkSample{}, false
	}
	finalized, err := d.slots.GetSlot(ctx, geyser.CommitmentFinalized)
	if err != nil {
		return WatermarkSample{}, false
	}
	return WatermarkSample{
		ObservedSlot:  slot,
		ProcessedSlot: processed,
		ConfirmedSlot: confirmed,
		FinalizedSlot: finalized,
	}, true
}

func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", v)
}
