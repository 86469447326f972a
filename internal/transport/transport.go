// Package transport constructs the bus publisher for the configured
// system. Kafka and NATS are the deployment targets; the channel transport is
// an in-memory stand-in for tests and local runs.
package transport

import (
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// PartitionKeyMetadataField carries the record's partition key on the
// published message; the Kafka marshaler maps it onto the message key.
const PartitionKeyMetadataField = "partition_key"

// Config selects and parameterizes the publisher.
type Config struct {
	// System is "kafka", "nats", or "channel".
	System        string
	KafkaBrokers  []string
	KafkaClientID string
	NATSURL       string
}

// KafkaPublisherFactory allows overriding publisher creation for testing.
var KafkaPublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// NATSPublisherFactory allows overriding publisher creation for testing.
var NATSPublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmnats.NewPublisher(cfg, logger)
}

// NewPublisher builds the publisher for cfg.System.
func NewPublisher(cfg Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	switch strings.ToLower(cfg.System) {
	case "kafka":
		return KafkaPublisherFactory(
			kafka.PublisherConfig{
				Brokers:   cfg.KafkaBrokers,
				Marshaler: kafka.NewWithPartitioningMarshaler(partitionFromMetadata),
			},
			logger,
		)
	case "nats":
		return NATSPublisherFactory(
			wmnats.PublisherConfig{
				URL:       cfg.NATSURL,
				Marshaler: &wmnats.NATSMarshaler{},
			},
			logger,
		)
	case "channel":
		return gochannel.NewGoChannel(gochannel.Config{}, logger), nil
	default:
		return nil, fmt.Errorf("transport: unknown pubsub system %q", cfg.System)
	}
}

// partitionFromMetadata keys Kafka messages by the record partition key so
// records sharing a key stay ordered within a partition. Messages without one
// fall back to their UUID.
func partitionFromMetadata(topic string, msg *message.Message) (string, error) {
	if key := msg.Metadata.Get(PartitionKeyMetadataField); key != "" {
		return key, nil
	}
	return msg.UUID, nil
}
