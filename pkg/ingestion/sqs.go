package ingestion

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/illmade-knight/telemetry-fanout/pkg/types"
)

// EnvelopesFromSQS converts SQS records to envelopes, keeping delivery order.
func EnvelopesFromSQS(event events.SQSEvent) []types.Envelope {
	envelopes := make([]types.Envelope, 0, len(event.Records))
	for _, record := range event.Records {
		env := types.Envelope{
			ID:   record.MessageId,
			Body: []byte(record.Body),
		}
		if raw, ok := record.Attributes["SentTimestamp"]; ok {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
				env.PublishTime = time.UnixMilli(ms)
			}
		}
		envelopes = append(envelopes, env)
	}
	return envelopes
}

// HandleSQS is the queue-triggered entry point. The budget comes from the
// invocation deadline carried by ctx. It never returns an error: SQS would
// otherwise redeliver the whole batch.
func (d *Dispatcher) HandleSQS(ctx context.Context, event events.SQSEvent) (Summary, error) {
	return d.Handle(ctx, EnvelopesFromSQS(event), ContextBudget(ctx)), nil
}
