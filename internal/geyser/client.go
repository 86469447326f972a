package geyser

import (
	"context"
	"fmt"
)

// UpdateStream yields updates from an active subscription. Recv returns io.EOF
// when the feed ends the stream cleanly, a *TransportError for a single item
// that could not be delivered or decoded (the stream stays usable), and any
// other error when the stream is broken.
type UpdateStream interface {
	Recv() (Update, error)
}

// Client is the upstream feed collaborator. One subscription is made per
// process; GetSlot answers the out-of-band watermark queries used for lag
// logging.
type Client interface {
	Subscribe(ctx context.Context, req *SubscribeRequest) (UpdateStream, error)
	GetSlot(ctx context.Context, commitment CommitmentLevel) (uint64, error)
	Close() error
}

// TransportError marks a per-item failure on an otherwise healthy stream.
// Consumers log it and keep reading.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("geyser: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
