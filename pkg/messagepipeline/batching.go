package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/telemetry-fanout/pkg/types"
)

// BatchingServiceConfig controls how envelopes are grouped into invocations.
type BatchingServiceConfig struct {
	// BatchSize is the most envelopes handed to one invocation.
	BatchSize int
	// FlushInterval bounds how long a partial batch waits.
	FlushInterval time.Duration
	// InvocationTimeout is the deadline given to each invocation.
	InvocationTimeout time.Duration
}

const (
	defaultBatchSize         = 50
	defaultFlushInterval     = 5 * time.Second
	defaultInvocationTimeout = 30 * time.Second
)

// LoadBatchingServiceConfigFromEnv reads PIPELINE_BATCH_SIZE,
// PIPELINE_FLUSH_INTERVAL and PIPELINE_INVOCATION_TIMEOUT.
func LoadBatchingServiceConfigFromEnv(logger zerolog.Logger) *BatchingServiceConfig {
	cfg := &BatchingServiceConfig{
		BatchSize:         defaultBatchSize,
		FlushInterval:     defaultFlushInterval,
		InvocationTimeout: defaultInvocationTimeout,
	}
	if raw := os.Getenv("PIPELINE_BATCH_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.BatchSize = n
		} else {
			logger.Warn().Str("value", raw).Msg("Invalid PIPELINE_BATCH_SIZE, using default.")
		}
	}
	if raw := os.Getenv("PIPELINE_FLUSH_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.FlushInterval = d
		} else {
			logger.Warn().Str("value", raw).Msg("Invalid PIPELINE_FLUSH_INTERVAL, using default.")
		}
	}
	if raw := os.Getenv("PIPELINE_INVOCATION_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.InvocationTimeout = d
		} else {
			logger.Warn().Str("value", raw).Msg("Invalid PIPELINE_INVOCATION_TIMEOUT, using default.")
		}
	}
	return cfg
}

// BatchingService turns a continuous message stream into a series of
// invocations. Batches are handled one at a time by a single goroutine, and
// every envelope of a batch is acked once the handler returns, whatever
// happened to it.
type BatchingService struct {
	cfg          BatchingServiceConfig
	consumer     MessageConsumer
	handler      BatchHandler
	logger       zerolog.Logger
	wg           sync.WaitGroup
	shutdownCtx  context.Context
	shutdownFunc context.CancelFunc
}

// NewBatchingService creates a service reading from consumer.
func NewBatchingService(cfg BatchingServiceConfig, consumer MessageConsumer, handler BatchHandler, logger zerolog.Logger) (*BatchingService, error) {
	if consumer == nil {
		return nil, errors.New("consumer cannot be nil")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.InvocationTimeout <= 0 {
		cfg.InvocationTimeout = defaultInvocationTimeout
	}

	shutdownCtx, shutdownFunc := context.WithCancel(context.Background())
	return &BatchingService{
		cfg:          cfg,
		consumer:     consumer,
		handler:      handler,
		logger:       logger.With().Str("service", "BatchingService").Logger(),
		shutdownCtx:  shutdownCtx,
		shutdownFunc: shutdownFunc,
	}, nil
}

// Start starts the consumer and the batching loop.
func (s *BatchingService) Start() error {
	s.logger.Info().Int("batch_size", s.cfg.BatchSize).Dur("flush_interval", s.cfg.FlushInterval).Msg("Starting BatchingService...")
	if err := s.consumer.Start(s.shutdownCtx); err != nil {
		return fmt.Errorf("failed to start message consumer: %w", err)
	}
	s.wg.Add(1)
	go s.loop()
	return nil
}

func (s *BatchingService) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]types.Envelope, 0, s.cfg.BatchSize)
	for {
		select {
		case env, ok := <-s.consumer.Messages():
			if !ok {
				s.logger.Info().Int("pending", len(batch)).Msg("Consumer channel closed, handling final batch.")
				s.handle(batch)
				return
			}
			batch = append(batch, env)
			if len(batch) >= s.cfg.BatchSize {
				s.handle(batch)
				batch = make([]types.Envelope, 0, s.cfg.BatchSize)
				ticker.Reset(s.cfg.FlushInterval)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.handle(batch)
				batch = make([]types.Envelope, 0, s.cfg.BatchSize)
			}
		}
	}
}

// handle runs one invocation. Its context is not tied to the service's
// shutdown so a final batch still gets its full deadline.
func (s *BatchingService) handle(batch []types.Envelope) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.InvocationTimeout)
	defer cancel()

	s.handler(ctx, batch)
	for _, env := range batch {
		env.Settle(true)
	}
	s.logger.Debug().Int("batch_size", len(batch)).Msg("Batch handled and acked.")
}

// Stop stops the consumer, handles whatever was already received and waits
// for the loop to exit.
func (s *BatchingService) Stop() {
	s.logger.Info().Msg("Stopping BatchingService...")
	s.shutdownFunc()
	if err := s.consumer.Stop(); err != nil {
		s.logger.Error().Err(err).Msg("Error stopping consumer")
	}
	<-s.consumer.Done()
	s.wg.Wait()
	s.logger.Info().Msg("BatchingService stopped gracefully.")
}
