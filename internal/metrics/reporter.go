package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/drblury/geyserflow/internal/logging"
)

// MinReportInterval is the floor applied to the configured interval.
const MinReportInterval = 10 * time.Second

const sinkTimeout = 5 * time.Second

// ReporterConfig carries the push sink settings.
type ReporterConfig struct {
	APIToken string
	Endpoint string
	Interval time.Duration
}

// Reporter periodically pushes counter deltas to the HTTP sink. Sink failures
// are logged and never stop the reporter; the next tick proceeds
// independently.
type Reporter struct {
	registry *Registry
	cfg      ReporterConfig
	client   *http.Client
	log      logging.ServiceLogger
	interval time.Duration

	lastTransactions uint64
	lastAccounts     uint64
	lastErrors       uint64
}

func NewReporter(registry *Registry, cfg ReporterConfig, log logging.ServiceLogger) *Reporter {
	interval := cfg.Interval
	if interval < MinReportInterval {
		interval = MinReportInterval
	}
	return &Reporter{
		registry: registry,
		cfg:      cfg,
		client:   &http.Client{Timeout: sinkTimeout},
		log:      log,
		interval: interval,
	}
}

// Run reports on the reporter's interval until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	r.log.Info("starting metrics reporter", logging.LogFields{
		"interval": r.interval.String(),
		"endpoint": r.cfg.Endpoint,
	})

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reportOnce(ctx, time.Now())
		}
	}
}

// reportOnce reads the counters, computes per-counter deltas, and issues one
// independent report per counter. A counter observed below its previous value
// reports the current value instead of underflowing.
func (r *Reporter) reportOnce(ctx context.Context, now time.Time) {
	timestamp := now.UTC().Format("2006-01-02 15:04:05 UTC")

	currentTransactions := r.registry.Transactions()
	currentAccounts := r.registry.Accounts()
	currentErrors := r.registry.Errors()

	transactionsDelta := counterDelta(currentTransactions, r.lastTransactions)
	accountsDelta := counterDelta(currentAccounts, r.lastAccounts)
	errorsDelta := counterDelta(currentErrors, r.lastErrors)

	r.lastTransactions = currentTransactions
	r.lastAccounts = currentAccounts
	r.lastErrors = currentErrors

	for _, report := range []struct {
		name  string
		value uint64
	}{
		{TransactionsCounterName, transactionsDelta},
		{AccountsCounterName, accountsDelta},
		{ErrorsCounterName, errorsDelta},
	} {
		if err := r.sendMetric(ctx, report.name, report.value, timestamp); err != nil {
			r.log.Error("metrics report failed", err, logging.LogFields{
				"counter": report.name,
			})
		}
	}
}

func counterDelta(current, previous uint64) uint64 {
	if current < previous {
		// The registry was reset underneath the reporter.
		return current
	}
	return current - previous
}

type gaugeValue struct {
	Value uint64 `json:"value"`
}

type metricReport struct {
	DT    string     `json:"dt"`
	Name  string     `json:"name"`
	Gauge gaugeValue `json:"gauge"`
}

func (r *Reporter) sendMetric(ctx context.Context, name string, value uint64, timestamp string) error {
	body, err := sonic.ConfigStd.Marshal(metricReport{
		DT:    timestamp,
		Name:  name,
		Gauge: gaugeValue{Value: value},
	})
	if err != nil {
		return fmt.Errorf("metrics: encode report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("metrics: build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("metrics: send report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("metrics: sink responded %s", resp.Status)
	}
	return nil
}
