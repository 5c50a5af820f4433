// Package ingestion fans device telemetry out to a time-series store and a
// durable batched store.
package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/telemetry-fanout/pkg/device"
	"github.com/illmade-knight/telemetry-fanout/pkg/dynstore"
	"github.com/illmade-knight/telemetry-fanout/pkg/telemetry"
	"github.com/illmade-knight/telemetry-fanout/pkg/tsdb"
	"github.com/illmade-knight/telemetry-fanout/pkg/types"
)

const StatusOK = "ok"

// TimeSeriesWriter is the best-effort time-series sink.
type TimeSeriesWriter interface {
	Write(ctx context.Context, p tsdb.Point) tsdb.Result
}

// Buffer is the durable batch buffer the dispatcher appends to.
type Buffer interface {
	Append(ctx context.Context, item *dynstore.BufferedItem) dynstore.FlushOutcome
	ForceFlush(ctx context.Context) dynstore.FlushOutcome
	Len() int
}

// Summary is returned for every invocation, whatever happened to its envelopes.
type Summary struct {
	Status                 string `json:"status"`
	Processed              int    `json:"processed"`
	TimeSeriesSuccessCount int    `json:"timeSeriesSuccessCount"`
	BufferOccupancy        int    `json:"bufferOccupancy"`
	ForcedFlush            bool   `json:"forcedFlush"`
}

// Dispatcher runs one invocation at a time over a shared buffer. The buffer
// outlives invocations for as long as its owner keeps it; Handle must not be
// called concurrently on the same Dispatcher.
type Dispatcher struct {
	cfg      Config
	sink     TimeSeriesWriter
	buffer   Buffer
	registry device.LocationRegistry
	metrics  *Metrics
	logger   zerolog.Logger
}

// NewDispatcher wires a dispatcher. registry and metrics may be nil.
func NewDispatcher(
	cfg *Config,
	sink TimeSeriesWriter,
	buffer Buffer,
	registry device.LocationRegistry,
	metrics *Metrics,
	logger zerolog.Logger,
) (*Dispatcher, error) {
	if cfg == nil {
		return nil, errors.New("ingestion config cannot be nil")
	}
	if sink == nil {
		return nil, errors.New("time-series sink cannot be nil")
	}
	if buffer == nil {
		return nil, errors.New("batch buffer cannot be nil")
	}
	c := *cfg
	if c.ForceFlushThreshold <= 0 {
		c.ForceFlushThreshold = DefaultForceFlushThreshold
	}
	return &Dispatcher{
		cfg:      c,
		sink:     sink,
		buffer:   buffer,
		registry: registry,
		metrics:  metrics,
		logger:   logger.With().Str("component", "Dispatcher").Logger(),
	}, nil
}

// Handle processes envelopes in delivery order and applies the end-of-batch
// flush policy. A failing envelope is logged and skipped.
func (d *Dispatcher) Handle(ctx context.Context, envelopes []types.Envelope, budget Budget) Summary {
	summary := Summary{Status: StatusOK}

	for i := range envelopes {
		wroteTimeSeries, err := d.processEnvelope(ctx, envelopes[i])
		if wroteTimeSeries {
			summary.TimeSeriesSuccessCount++
		}
		d.metrics.envelope(err == nil)
		if err != nil {
			d.logger.Error().Err(err).Str("message_id", envelopes[i].ID).Int("position", i).Msg("Failed to process envelope")
			continue
		}
		summary.Processed++
	}

	remaining := budget.Remaining()
	if remaining < d.cfg.ForceFlushThreshold && d.buffer.Len() > 0 {
		d.logger.Info().Dur("remaining", remaining).Int("buffer_size", d.buffer.Len()).Msg("Low time budget, force-flushing buffer.")
		outcome := d.buffer.ForceFlush(ctx)
		d.metrics.flush(TriggerForced, outcome.String())
		summary.ForcedFlush = true
	}

	summary.BufferOccupancy = d.buffer.Len()
	d.metrics.occupancy(summary.BufferOccupancy)

	d.logger.Info().
		Int("received", len(envelopes)).
		Int("processed", summary.Processed).
		Int("timeseries_success", summary.TimeSeriesSuccessCount).
		Int("buffer_size", summary.BufferOccupancy).
		Bool("forced_flush", summary.ForcedFlush).
		Msg("Batch handled")
	return summary
}

// processEnvelope runs the per-record pipeline. A panic anywhere in it is
// turned into an error for this envelope alone.
func (d *Dispatcher) processEnvelope(ctx context.Context, env types.Envelope) (wroteTimeSeries bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing envelope: %v", r)
		}
	}()

	payload, err := types.DecodePayload(env.Body)
	if err != nil {
		return false, err
	}

	record := telemetry.Classify(payload)
	record = d.resolveLocation(ctx, payload, record)

	if point, ok := tsdb.PointFromRecord(record); ok {
		result := d.sink.Write(ctx, point)
		d.metrics.timeSeriesWrite(result.OK)
		wroteTimeSeries = result.OK
	}

	item, err := dynstore.BuildItem(payload, dynstore.ItemOptions{TTL: d.cfg.ItemTTL})
	if err != nil {
		return wroteTimeSeries, err
	}

	if outcome := d.buffer.Append(ctx, item); outcome != dynstore.NotAttempted {
		d.metrics.flush(TriggerCapacity, outcome.String())
	}
	return wroteTimeSeries, nil
}

// resolveLocation records topology announcements and fills in the location of
// other records from the registry. The payload gains the resolved location so
// the durable item carries it too.
func (d *Dispatcher) resolveLocation(ctx context.Context, payload types.Payload, record telemetry.Record) telemetry.Record {
	if d.registry == nil || record == nil {
		return record
	}
	head := record.Head()
	if head.DeviceID == "" {
		return record
	}

	if telemetry.HasLocation(payload) {
		if record.Kind() == telemetry.KindTopology {
			if err := d.registry.Record(ctx, head.DeviceID, head.Location); err != nil {
				d.logger.Warn().Err(err).Str("device_id", head.DeviceID).Msg("Failed to record device location")
			}
		}
		return record
	}

	location, err := d.registry.Lookup(ctx, head.DeviceID)
	if err != nil {
		if !errors.Is(err, device.ErrNotFound) {
			d.logger.Warn().Err(err).Str("device_id", head.DeviceID).Msg("Device location lookup failed")
		}
		return record
	}
	payload[telemetry.KeyLocation] = location
	return telemetry.WithLocation(record, location)
}
