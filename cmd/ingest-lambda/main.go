// Command ingest-lambda is the queue-triggered ingestion function. The batch
// buffer is created at cold start and reused by every warm invocation of the
// same execution environment.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/illmade-knight/telemetry-fanout/pkg/device"
	"github.com/illmade-knight/telemetry-fanout/pkg/dynstore"
	"github.com/illmade-knight/telemetry-fanout/pkg/helpers/logging"
	"github.com/illmade-knight/telemetry-fanout/pkg/ingestion"
	"github.com/illmade-knight/telemetry-fanout/pkg/tsdb"
)

func main() {
	logger := logging.New("ingest-lambda")
	ctx := context.Background()
	logger.Info().Msg("Cold start")

	cfg := ingestion.LoadConfigFromEnv(logger)

	sink, err := tsdb.NewLineWriter(*tsdb.LoadConfigFromEnv(), nil, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create time-series writer")
	}

	dynCfg := dynstore.LoadDynamoDBConfigFromEnv()
	dynClient, err := dynstore.NewDynamoDBClient(ctx, dynCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create DynamoDB client")
	}
	inserter, err := dynstore.NewDynamoDBInserter(dynClient, dynCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create DynamoDB inserter")
	}
	buffer := dynstore.NewBatchBuffer[dynstore.BufferedItem](dynstore.BatchBufferConfig{
		Capacity: cfg.BatchCapacity,
	}, inserter, logger)

	registry, err := device.NewRegistry(ctx, device.LoadRegistryConfigFromEnv(logger), logger)
	if err != nil {
		// Location enrichment is optional.
		logger.Error().Err(err).Msg("Failed to create location registry, continuing without it")
	}

	dispatcher, err := ingestion.NewDispatcher(cfg, sink, buffer, registry, nil, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create dispatcher")
	}

	lambda.Start(dispatcher.HandleSQS)
}
