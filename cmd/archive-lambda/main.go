// Command archive-lambda exports the durable table to a dated JSON object in
// cold storage. It is meant to run on a daily schedule.
package main

import (
	"context"
	"os"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-lambda-go/lambda"
	"google.golang.org/api/option"

	"github.com/illmade-knight/telemetry-fanout/pkg/archive"
	"github.com/illmade-knight/telemetry-fanout/pkg/dynstore"
	"github.com/illmade-knight/telemetry-fanout/pkg/helpers/logging"
)

func main() {
	logger := logging.New("archive-lambda")
	ctx := context.Background()

	cfg, err := archive.LoadConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load archive configuration")
	}

	dynCfg := dynstore.LoadDynamoDBConfigFromEnv()
	dynCfg.TableName = cfg.TableName
	dynClient, err := dynstore.NewDynamoDBClient(ctx, dynCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create DynamoDB client")
	}
	scanner, err := dynstore.NewTableScanner(dynClient, cfg.TableName, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create table scanner")
	}

	var opts []option.ClientOption
	if credentials := os.Getenv("GCS_CREDENTIALS_FILE"); credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}
	gcsClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create GCS client")
	}
	defer gcsClient.Close()

	exporter, err := archive.NewExporter(scanner, archive.NewGCSClientAdapter(gcsClient), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create exporter")
	}

	lambda.Start(func(ctx context.Context) (archive.Result, error) {
		return exporter.Export(ctx)
	})
}
