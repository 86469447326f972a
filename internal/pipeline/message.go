// Package pipeline is the concurrent core: a dispatcher consuming the update
// stream, a bounded queue, and a publish worker draining it onto the bus.
package pipeline

import "github.com/drblury/geyserflow/internal/geyser"

// Message is the closed set of values carried on the bounded queue.
type Message interface {
	isMessage()
}

// TransactionMessage forwards one transaction update to the worker.
type TransactionMessage struct {
	Update *geyser.TransactionUpdate
}

// BlockMetadataMessage forwards one block metadata update to the worker.
type BlockMetadataMessage struct {
	Update *geyser.BlockMetaUpdate
}

// ShutdownMessage is the poison pill. The dispatcher enqueues it only after it
// has stopped accepting upstream work, so it is the last value the worker
// observes.
type ShutdownMessage struct{}

func (*TransactionMessage) isMessage()   {}
func (*BlockMetadataMessage) isMessage() {}
func (*ShutdownMessage) isMessage()      {}
