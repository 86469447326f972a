package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/geyserflow/internal/logging"
)

type recordedReport struct {
	authorization string
	body          metricReport
}

type captureSink struct {
	mu      sync.Mutex
	reports []recordedReport
	status  int
}

func (s *captureSink) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body metricReport
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("sink received invalid JSON: %v", err)
		}
		s.mu.Lock()
		s.reports = append(s.reports, recordedReport{
			authorization: r.Header.Get("Authorization"),
			body:          body,
		})
		s.mu.Unlock()

		status := s.status
		if status == 0 {
			status = http.StatusAccepted
		}
		w.WriteHeader(status)
	}
}

func (s *captureSink) take() []recordedReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.reports
	s.reports = nil
	return out
}

func valuesByName(reports []recordedReport) map[string]uint64 {
	out := make(map[string]uint64, len(reports))
	for _, report := range reports {
		out[report.body.Name] = report.body.Gauge.Value
	}
	return out
}

func newTestReporter(registry *Registry, endpoint string) *Reporter {
	return NewReporter(registry, ReporterConfig{
		APIToken: "test-token",
		Endpoint: endpoint,
		Interval: time.Second,
	}, logging.NewWatermillServiceLogger(watermill.NopLogger{}))
}

func TestReporterIntervalFloor(t *testing.T) {
	reporter := newTestReporter(NewRegistry(), "http://localhost")
	if reporter.interval != MinReportInterval {
		t.Errorf("interval = %v, want floor %v", reporter.interval, MinReportInterval)
	}

	reporter = NewReporter(NewRegistry(), ReporterConfig{Interval: time.Minute},
		logging.NewWatermillServiceLogger(watermill.NopLogger{}))
	if reporter.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", reporter.interval)
	}
}

func TestReporterDeltas(t *testing.T) {
	sink := &captureSink{}
	server := httptest.NewServer(sink.handler(t))
	defer server.Close()

	registry := NewRegistry()
	reporter := newTestReporter(registry, server.URL)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		registry.IncTransactions()
	}
	registry.IncAccounts()

	reporter.reportOnce(ctx, now)
	reports := sink.take()
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want one per counter", len(reports))
	}
	values := valuesByName(reports)
	if values[TransactionsCounterName] != 5 {
		t.Errorf("transactions delta = %d, want 5", values[TransactionsCounterName])
	}
	if values[AccountsCounterName] != 1 {
		t.Errorf("accounts delta = %d, want 1", values[AccountsCounterName])
	}
	if values[ErrorsCounterName] != 0 {
		t.Errorf("errors delta = %d, want 0", values[ErrorsCounterName])
	}

	// No increments: every delta collapses to zero.
	reporter.reportOnce(ctx, now.Add(MinReportInterval))
	values = valuesByName(sink.take())
	if values[TransactionsCounterName] != 0 {
		t.Errorf("quiet interval transactions delta = %d, want 0", values[TransactionsCounterName])
	}

	for i := 0; i < 7; i++ {
		registry.IncTransactions()
	}
	reporter.reportOnce(ctx, now.Add(2*MinReportInterval))
	values = valuesByName(sink.take())
	if values[TransactionsCounterName] != 7 {
		t.Errorf("transactions delta = %d, want 7", values[TransactionsCounterName])
	}
}

func TestReporterCounterReset(t *testing.T) {
	sink := &captureSink{}
	server := httptest.NewServer(sink.handler(t))
	defer server.Close()

	registry := NewRegistry()
	registry.IncTransactions()
	registry.IncTransactions()
	registry.IncTransactions()

	reporter := newTestReporter(registry, server.URL)
	// Simulate a registry observed below its previous value.
	reporter.lastTransactions = 12

	reporter.reportOnce(context.Background(), time.Now())
	values := valuesByName(sink.take())
	if values[TransactionsCounterName] != 3 {
		t.Errorf("post-reset delta = %d, want the current value 3", values[TransactionsCounterName])
	}
}

func TestReporterRequestShape(t *testing.T) {
	sink := &captureSink{}
	server := httptest.NewServer(sink.handler(t))
	defer server.Close()

	registry := NewRegistry()
	registry.IncErrors()

	reporter := newTestReporter(registry, server.URL)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reporter.reportOnce(context.Background(), now)

	reports := sink.take()
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(reports))
	}
	for _, report := range reports {
		if report.authorization != "Bearer test-token" {
			t.Errorf("authorization = %q, want bearer token", report.authorization)
		}
		if report.body.DT != "2024-05-01 12:00:00 UTC" {
			t.Errorf("dt = %q, want formatted UTC timestamp", report.body.DT)
		}
	}
}

func TestReporterSinkFailureIsIsolated(t *testing.T) {
	sink := &captureSink{status: http.StatusInternalServerError}
	server := httptest.NewServer(sink.handler(t))
	defer server.Close()

	registry := NewRegistry()
	registry.IncTransactions()

	reporter := newTestReporter(registry, server.URL)
	reporter.reportOnce(context.Background(), time.Now())

	// A failed report must not prevent the next one from being attempted.
	registry.IncTransactions()
	reporter.reportOnce(context.Background(), time.Now())

	if got := len(sink.take()); got != 6 {
		t.Errorf("got %d reports across two failed rounds, want 6", got)
	}
}
