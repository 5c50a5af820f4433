package messagepipeline

import (
	"context"

	"github.com/illmade-knight/telemetry-fanout/pkg/types"
)

// MessageConsumer defines the interface for a message source (e.g., Pub/Sub).
// It is responsible for fetching raw messages from the broker.
type MessageConsumer interface {
	// Messages returns a read-only channel from which envelopes can be consumed.
	// The channel is closed once the consumer has stopped.
	Messages() <-chan types.Envelope
	// Start initiates the consumption of messages.
	Start(ctx context.Context) error
	// Stop gracefully ceases message consumption.
	Stop() error
	// Done returns a channel that is closed when the consumer has fully stopped.
	Done() <-chan struct{}
}

// BatchHandler handles one batch of envelopes as a single invocation. ctx
// carries the invocation deadline.
type BatchHandler func(ctx context.Context, envelopes []types.Envelope)
