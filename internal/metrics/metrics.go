// Package metrics holds the process-wide counters, their Prometheus
// exposition, and the periodic push reporter.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry carries the three pipeline counters. It is constructed once at
// startup and shared by reference; increments are independent, with no
// cross-counter atomicity.
type Registry struct {
	processedTransactions atomic.Uint64
	processedAccounts     atomic.Uint64
	errors                atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{}
}

// IncTransactions counts one published transaction record.
func (r *Registry) IncTransactions() { r.processedTransactions.Add(1) }

// IncAccounts counts one account update observed on the stream.
func (r *Registry) IncAccounts() { r.processedAccounts.Add(1) }

// IncErrors counts one record that failed formatting.
func (r *Registry) IncErrors() { r.errors.Add(1) }

func (r *Registry) Transactions() uint64 { return r.processedTransactions.Load() }
func (r *Registry) Accounts() uint64     { return r.processedAccounts.Load() }
func (r *Registry) Errors() uint64       { return r.errors.Load() }

// Counter names shared by the push reporter and the Prometheus collector.
const (
	TransactionsCounterName = "geyserflow_processed_transactions"
	AccountsCounterName     = "geyserflow_processed_accounts"
	ErrorsCounterName       = "geyserflow_errors"
)

type collector struct {
	registry *Registry

	transactionsDesc *prometheus.Desc
	accountsDesc     *prometheus.Desc
	errorsDesc       *prometheus.Desc
}

// NewCollector exposes the registry's counters as Prometheus metrics without
// maintaining a second set of counters.
func NewCollector(registry *Registry) prometheus.Collector {
	return &collector{
		registry: registry,
		transactionsDesc: prometheus.NewDesc(
			TransactionsCounterName+"_total",
			"Transaction records published to the bus.",
			nil, nil,
		),
		accountsDesc: prometheus.NewDesc(
			AccountsCounterName+"_total",
			"Account updates observed on the stream.",
			nil, nil,
		),
		errorsDesc: prometheus.NewDesc(
			ErrorsCounterName+"_total",
			"Records that failed formatting.",
			nil, nil,
		),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.transactionsDesc
	ch <- c.accountsDesc
	ch <- c.errorsDesc
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		c.transactionsDesc, prometheus.CounterValue, float64(c.registry.Transactions()))
	ch <- prometheus.MustNewConstMetric(
		c.accountsDesc, prometheus.CounterValue, float64(c.registry.Accounts()))
	ch <- prometheus.MustNewConstMetric(
		c.errorsDesc, prometheus.CounterValue, float64(c.registry.Errors()))
}
