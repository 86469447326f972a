package pipeline

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"

	"github.com/drblury/geyserflow/internal/ids"
	"github.com/drblury/geyserflow/internal/logging"
	"github.com/drblury/geyserflow/internal/metrics"
	"github.com/drblury/geyserflow/internal/record"
	"github.com/drblury/geyserflow/internal/transport"
)

// FailurePolicy picks what happens to a record that fails formatting.
type FailurePolicy int

const (
	// PublishEmpty publishes an empty JSON object under the original key, so
	// the malformed item still occupies its slot on the bus.
	PublishEmpty FailurePolicy = iota
	// SkipRecord drops the record without publishing.
	SkipRecord
	// DeadLetter publishes a failure description to the poison topic.
	DeadLetter
)

// ParseFailurePolicy maps the configuration string onto a policy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "publish_empty", "":
		return PublishEmpty, nil
	case "skip":
		return SkipRecord, nil
	case "dead_letter":
		return DeadLetter, nil
	default:
		return PublishEmpty, fmt.Errorf("pipeline: unknown format failure policy %q", s)
	}
}

// WorkerConfig parameterizes the publish worker.
type WorkerConfig struct {
	Topic       string
	PoisonTopic string
	Policy      FailurePolicy
}

// Worker is the single consumer of the bounded queue. It formats each message
// and publishes it to the bus in strict queue order. A publish failure is
// fatal: Run returns the error and the process is expected to terminate.
type Worker struct {
	queue     <-chan Message
	publisher message.Publisher
	cfg       WorkerConfig
	encoder   record.TransactionEncoder
	metrics   *metrics.Registry
	log       logging.ServiceLogger
	done      chan struct{}
}

func NewWorker(
	queue <-chan Message,
	publisher message.Publisher,
	cfg WorkerConfig,
	encoder record.TransactionEncoder,
	registry *metrics.Registry,
	log logging.ServiceLogger,
) *Worker {
	return &Worker{
		queue:     queue,
		publisher: publisher,
		cfg:       cfg,
		encoder:   encoder,
		metrics:   registry,
		log:       log,
		done:      make(chan struct{}),
	}
}

// Done is closed when the worker stops, whatever the reason. The dispatcher
// watches it to detect a closed consumer side.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run drains the queue until the shutdown sentinel arrives or a publish
// fails. It returns nil on a clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)

	for msg := range w.queue {
		switch m := msg.(type) {
		case *TransactionMessage:
			if err := w.handleTransaction(ctx, m); err != nil {
				return err
			}
		case *BlockMetadataMessage:
			if err := w.handleBlockMeta(ctx, m); err != nil {
				return err
			}
		case *ShutdownMessage:
			w.log.Info("publish worker shutting down", nil)
			return nil
		}
	}
	return nil
}

func (w *Worker) handleTransaction(ctx context.Context, m *TransactionMessage) error {
	if m.Update.Transaction == nil {
		// Without the inner payload there is no signature to key on.
		w.metrics.IncErrors()
		w.log.Error("transaction update without payload", record.ErrMissingField, logging.LogFields{
			"slot": m.Update.Slot,
		})
		return nil
	}

	key := record.TransactionKey(m.Update.Transaction)
	rec, err := record.FormatTransaction(w.encoder, m.Update)
	if err != nil {
		return w.handleFormatFailure(ctx, key, m.Update.Slot, err)
	}

	if err := w.publish(ctx, w.cfg.Topic, rec); err != nil {
		return err
	}
	w.metrics.IncTransactions()
	return nil
}

func (w *Worker) handleBlockMeta(ctx context.Context, m *BlockMetadataMessage) error {
	key := record.BlockMetaKey(m.Update)
	rec, err := record.FormatBlockMeta(m.Update)
	if err != nil {
		return w.handleFormatFailure(ctx, key, m.Update.Slot, err)
	}
	return w.publish(ctx, w.cfg.Topic, rec)
}

// handleFormatFailure applies the configured policy. Publishing the fallback
// is subject to the same fatal-on-failure rule as a regular publish.
func (w *Worker) handleFormatFailure(ctx context.Context, key string, slot uint64, ferr error) error {
	w.metrics.IncErrors()
	w.log.Error("record formatting failed", ferr, logging.LogFields{
		"key":  key,
		"slot": slot,
	})

	switch w.cfg.Policy {
	case SkipRecord:
		return nil
	case DeadLetter:
		payload, err := sonic.ConfigStd.Marshal(map[string]any{
			"key":   key,
			"slot":  slot,
			"error": ferr.Error(),
		})
		if err != nil {
			return nil
		}
		return w.publish(ctx, w.cfg.PoisonTopic, record.Record{Key: key, Payload: payload})
	default:
		return w.publish(ctx, w.cfg.Topic, record.Empty(key))
	}
}

func (w *Worker) publish(ctx context.Context, topic string, rec record.Record) error {
	msg := message.NewMessage(ids.CreateULID(), rec.Payload)
	msg.Metadata.Set(transport.PartitionKeyMetadataField, rec.Key)
	msg.SetContext(ctx)

	if err := w.publisher.Publish(topic, msg); err != nil {
		w.log.Error("publish failed", err, logging.LogFields{
			"topic": topic,
			"key":   rec.Key,
		})
		return fmt.Errorf("pipeline: publish to %q: %w", topic, err)
	}
	return nil
}
