// Command geyserflow bridges a geyser update stream onto a message bus:
// it subscribes with the configured filters, republishes transactions and
// block metadata as canonical JSON records, and reports throughput counters.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/geyserflow/internal/config"
	"github.com/drblury/geyserflow/internal/filters"
	"github.com/drblury/geyserflow/internal/geyser"
	"github.com/drblury/geyserflow/internal/logging"
	"github.com/drblury/geyserflow/internal/metrics"
	"github.com/drblury/geyserflow/internal/pipeline"
	"github.com/drblury/geyserflow/internal/record"
	"github.com/drblury/geyserflow/internal/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	logger := logging.NewSlogServiceLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", err, nil)
		return 1
	}
	logger.Info("starting geyserflow", logging.LogFields{
		"endpoint": cfg.Endpoint,
		"topic":    cfg.Topic,
		"pubsub":   cfg.PubSubSystem,
	})

	var commitment *geyser.CommitmentLevel
	if cfg.Commitment != "" {
		level := geyser.ParseCommitmentLevel(cfg.Commitment)
		commitment = &level
	}

	subscription, err := filters.Build(&cfg.Filters, commitment)
	if err != nil {
		logger.Error("failed to build subscription request", err, nil)
		return 1
	}

	policy, err := pipeline.ParseFailurePolicy(cfg.OnFormatError)
	if err != nil {
		logger.Error("failed to resolve format failure policy", err, nil)
		return 1
	}

	codec, err := wireCodec(cfg.Format)
	if err != nil {
		logger.Error("failed to resolve wire codec", err, nil)
		return 1
	}

	publisher, err := transport.NewPublisher(transport.Config{
		System:        cfg.PubSubSystem,
		KafkaBrokers:  cfg.KafkaBrokers,
		KafkaClientID: cfg.KafkaClientID,
		NATSURL:       cfg.NATSURL,
	}, logging.NewWatermillAdapter(logger))
	if err != nil {
		logger.Error("failed to build bus publisher", err, nil)
		return 1
	}
	defer publisher.Close()

	client, err := geyser.Dial(geyser.DialConfig{
		Endpoint:               cfg.Endpoint,
		XToken:                 cfg.XToken,
		MaxDecodingMessageSize: cfg.MaxDecodingMessageSize,
		Insecure:               cfg.Insecure,
		Codec:                  codec,
	})
	if err != nil {
		logger.Error("failed to dial geyser endpoint", err, nil)
		return 1
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := client.Subscribe(ctx, subscription)
	if err != nil {
		logger.Error("failed to subscribe", err, nil)
		return 1
	}

	registry := metrics.NewRegistry()
	startMetrics(ctx, cfg, registry, logger)

	queue := make(chan pipeline.Message, cfg.QueueSize)
	worker := pipeline.NewWorker(queue, publisher, pipeline.WorkerConfig{
		Topic:       cfg.Topic,
		PoisonTopic: cfg.PoisonTopic,
		Policy:      policy,
	}, record.Base58Encoder{}, registry, logger)
	dispatcher := pipeline.NewDispatcher(stream, client, queue, worker.Done(), registry, logger)

	workerErr := make(chan error, 1)
	go func() { workerErr <- worker.Run(ctx) }()

	dispatcherDone := make(chan error, 1)
	go func() { dispatcherDone <- dispatcher.Run(ctx) }()

	select {
	case err := <-workerErr:
		if err != nil {
			// Fail-fast publish policy: no retry, no dead-letter path.
			logger.Error("fatal publish failure", err, nil)
			return 1
		}
		<-dispatcherDone
	case <-dispatcherDone:
		if err := <-workerErr; err != nil {
			logger.Error("fatal publish failure", err, nil)
			return 1
		}
	}

	logger.Info("shutdown complete", nil)
	return 0
}

func wireCodec(format string) (geyser.WireCodec, error) {
	switch format {
	case "json":
		return geyser.JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported wire format %q", format)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, registry *metrics.Registry, logger logging.ServiceLogger) {
	if cfg.Metrics.Enabled {
		reporter := metrics.NewReporter(registry, metrics.ReporterConfig{
			APIToken: cfg.Metrics.APIToken,
			Endpoint: cfg.Metrics.Endpoint,
			Interval: time.Duration(cfg.Metrics.IntervalSeconds) * time.Second,
		}, logger)
		go reporter.Run(ctx)
	} else {
		logger.Info("metrics reporting disabled", nil)
	}

	if cfg.Metrics.PrometheusPort > 0 {
		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(metrics.NewCollector(registry))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Metrics.PrometheusPort)
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("prometheus listener failed", err, logging.LogFields{"addr": addr})
			}
		}()
	}
}
