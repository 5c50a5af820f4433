package types

import (
	"time"
)

// Envelope is one raw telemetry message as delivered by a transport. It is
// consumed once per invocation.
type Envelope struct {
	// ID is the transport's identifier for the message (SQS message ID, Pub/Sub ID).
	ID string
	// Body is the raw byte content of the message, expected to be a JSON object.
	Body []byte
	// PublishTime is when the transport accepted the message, if known.
	PublishTime time.Time
	// Ack and Nack are set only by transports that settle messages individually.
	// Either may be nil.
	Ack  func()
	Nack func()
}

// Settle acks the envelope when ok is true and nacks it otherwise. Missing
// handlers are ignored.
func (e Envelope) Settle(ok bool) {
	if ok {
		if e.Ack != nil {
			e.Ack()
		}
		return
	}
	if e.Nack != nil {
		e.Nack()
	}
}
