package ingestion_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/telemetry-fanout/pkg/device"
	"github.com/illmade-knight/telemetry-fanout/pkg/dynstore"
	"github.com/illmade-knight/telemetry-fanout/pkg/ingestion"
	"github.com/illmade-knight/telemetry-fanout/pkg/tsdb"
	"github.com/illmade-knight/telemetry-fanout/pkg/types"
)

// fakeSink records every point and answers with OK unless told otherwise.
type fakeSink struct {
	mu     sync.Mutex
	points []tsdb.Point
	fail   bool
}

func (s *fakeSink) Write(ctx context.Context, p tsdb.Point) tsdb.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, p)
	if s.fail {
		return tsdb.Result{StatusCode: 500, Err: errors.New("influx unavailable")}
	}
	return tsdb.Result{OK: true, StatusCode: 204}
}

func (s *fakeSink) Points() []tsdb.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tsdb.Point(nil), s.points...)
}

// countingStore is a durable store whose failures can be switched on and off.
type countingStore struct {
	mu      sync.Mutex
	batches [][]*dynstore.BufferedItem
	fail    bool
}

func (s *countingStore) InsertBatch(ctx context.Context, items []*dynstore.BufferedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, items)
	if s.fail {
		return errors.New("dynamodb unavailable")
	}
	return nil
}

func (s *countingStore) Close() error { return nil }

func (s *countingStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *countingStore) Batch(i int) []*dynstore.BufferedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[i]
}

type harness struct {
	sink       *fakeSink
	store      *countingStore
	buffer     *dynstore.BatchBuffer[dynstore.BufferedItem]
	dispatcher *ingestion.Dispatcher
}

func newHarness(t *testing.T, capacity int, opts ...func(*harnessOptions)) *harness {
	t.Helper()
	o := harnessOptions{threshold: ingestion.DefaultForceFlushThreshold}
	for _, opt := range opts {
		opt(&o)
	}

	h := &harness{sink: &fakeSink{}, store: &countingStore{}}
	logger := zerolog.New(zerolog.NewTestWriter(t))
	h.buffer = dynstore.NewBatchBuffer[dynstore.BufferedItem](dynstore.BatchBufferConfig{Capacity: capacity}, h.store, logger)

	d, err := ingestion.NewDispatcher(&ingestion.Config{ForceFlushThreshold: o.threshold}, h.sink, h.buffer, o.registry, o.metrics, logger)
	require.NoError(t, err)
	h.dispatcher = d
	return h
}

type harnessOptions struct {
	threshold time.Duration
	registry  device.LocationRegistry
	metrics   *ingestion.Metrics
}

func bodies(raw ...string) []types.Envelope {
	envs := make([]types.Envelope, len(raw))
	for i, b := range raw {
		envs[i] = types.Envelope{ID: fmt.Sprintf("msg-%d", i), Body: []byte(b)}
	}
	return envs
}
