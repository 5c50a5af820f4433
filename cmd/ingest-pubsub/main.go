// Command ingest-pubsub runs the ingestion pipeline as a long-lived service
// fed by a Pub/Sub subscription.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/illmade-knight/telemetry-fanout/pkg/bqstore"
	"github.com/illmade-knight/telemetry-fanout/pkg/device"
	"github.com/illmade-knight/telemetry-fanout/pkg/dynstore"
	"github.com/illmade-knight/telemetry-fanout/pkg/helpers/logging"
	"github.com/illmade-knight/telemetry-fanout/pkg/ingestion"
	"github.com/illmade-knight/telemetry-fanout/pkg/messagepipeline"
	"github.com/illmade-knight/telemetry-fanout/pkg/tsdb"
	"github.com/illmade-knight/telemetry-fanout/pkg/types"
)

const (
	defaultMetricsAddr = ":9090"
	shutdownTimeout    = 15 * time.Second
)

func main() {
	logger := logging.New("ingest-pubsub")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatal().Err(err).Msg("Service exited with error")
	}
	logger.Info().Msg("Service stopped")
}

func run(ctx context.Context, logger zerolog.Logger) error {
	cfg := ingestion.LoadConfigFromEnv(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := ingestion.NewMetrics(reg)
	if err != nil {
		return err
	}

	sink, err := tsdb.NewLineWriter(*tsdb.LoadConfigFromEnv(), nil, logger)
	if err != nil {
		return err
	}

	inserter, err := newDurableInserter(ctx, logger)
	if err != nil {
		return err
	}
	defer inserter.Close()
	buffer := dynstore.NewBatchBuffer[dynstore.BufferedItem](dynstore.BatchBufferConfig{
		Capacity: cfg.BatchCapacity,
	}, inserter, logger)

	registry, err := device.NewRegistry(ctx, device.LoadRegistryConfigFromEnv(logger), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create location registry, continuing without it")
	} else {
		defer registry.Close()
	}

	dispatcher, err := ingestion.NewDispatcher(cfg, sink, buffer, registry, metrics, logger)
	if err != nil {
		return err
	}

	consumerCfg, err := messagepipeline.LoadGooglePubsubConsumerConfigFromEnv()
	if err != nil {
		return err
	}
	var opts []option.ClientOption
	if consumerCfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(consumerCfg.CredentialsFile))
	}
	consumer, err := messagepipeline.NewGooglePubsubConsumer(ctx, consumerCfg, opts, logger)
	if err != nil {
		return err
	}

	service, err := messagepipeline.NewBatchingService(
		*messagepipeline.LoadBatchingServiceConfigFromEnv(logger),
		consumer,
		func(ctx context.Context, envelopes []types.Envelope) {
			summary := dispatcher.Handle(ctx, envelopes, ingestion.ContextBudget(ctx))
			logger.Debug().Interface("summary", summary).Msg("Batch dispatched")
		},
		logger,
	)
	if err != nil {
		return err
	}

	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		addr = defaultMetricsAddr
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := service.Start(); err != nil {
			return err
		}
		<-gctx.Done()
		service.Stop()

		// The last batch ran with plenty of budget so its items may still be
		// buffered.
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		outcome := buffer.ForceFlush(flushCtx)
		logger.Info().Str("outcome", outcome.String()).Int("remaining", buffer.Len()).Msg("Final flush")
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newDurableInserter picks the bulk store from DURABLE_BACKEND: "dynamodb"
// (default) or "bigquery".
func newDurableInserter(ctx context.Context, logger zerolog.Logger) (dynstore.DataBatchInserter[dynstore.BufferedItem], error) {
	switch backend := os.Getenv("DURABLE_BACKEND"); backend {
	case "", "dynamodb":
		dynCfg := dynstore.LoadDynamoDBConfigFromEnv()
		client, err := dynstore.NewDynamoDBClient(ctx, dynCfg, logger)
		if err != nil {
			return nil, err
		}
		return dynstore.NewDynamoDBInserter(client, dynCfg, logger)
	case "bigquery":
		bqCfg, err := bqstore.LoadBigQueryInserterConfigFromEnv()
		if err != nil {
			return nil, err
		}
		client, err := bqstore.NewProductionBigQueryClient(ctx, bqCfg, logger)
		if err != nil {
			return nil, err
		}
		return bqstore.NewBigQueryInserter(ctx, client, bqCfg, logger)
	default:
		return nil, errors.New("unknown DURABLE_BACKEND " + backend)
	}
}
