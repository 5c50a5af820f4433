package bqstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/illmade-knight/telemetry-fanout/pkg/dynstore"
)

// BigQueryDatasetConfig holds configuration for the BigQuery inserter.
type BigQueryDatasetConfig struct {
	ProjectID       string
	DatasetID       string
	TableID         string
	CredentialsFile string // Optional: For production if not using ADC
}

// LoadBigQueryInserterConfigFromEnv loads BigQuery configuration from environment variables.
func LoadBigQueryInserterConfigFromEnv() (*BigQueryDatasetConfig, error) {
	cfg := &BigQueryDatasetConfig{
		ProjectID:       os.Getenv("GCP_PROJECT_ID"),
		DatasetID:       os.Getenv("BQ_DATASET_ID"),
		TableID:         os.Getenv("BQ_TABLE_ID"),
		CredentialsFile: os.Getenv("GCP_BQ_CREDENTIALS_FILE"),
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("GCP_PROJECT_ID environment variable not set for BigQuery config")
	}
	if cfg.DatasetID == "" {
		return nil, fmt.Errorf("BQ_DATASET_ID environment variable not set for BigQuery config")
	}
	if cfg.TableID == "" {
		return nil, fmt.Errorf("BQ_TABLE_ID environment variable not set for BigQuery config")
	}
	return cfg, nil
}

// NewProductionBigQueryClient creates a BigQuery client using the credentials
// file when given, otherwise Application Default Credentials.
func NewProductionBigQueryClient(ctx context.Context, cfg *BigQueryDatasetConfig, logger zerolog.Logger) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for BigQuery client")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for BigQuery client")
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	logger.Info().Str("project_id", cfg.ProjectID).Msg("BigQuery client created successfully.")
	return client, nil
}

// rowPutter is the part of *bigquery.Inserter used here.
type rowPutter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQueryInserter implements dynstore.DataBatchInserter[dynstore.BufferedItem]
// with streaming inserts.
type BigQueryInserter struct {
	putter rowPutter
	logger zerolog.Logger
}

// NewBigQueryInserter connects to the configured table, creating it with
// Schema if it does not exist.
func NewBigQueryInserter(
	ctx context.Context,
	client *bigquery.Client,
	cfg *BigQueryDatasetConfig,
	logger zerolog.Logger,
) (*BigQueryInserter, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("BigQueryDatasetConfig cannot be nil")
	}

	logger = logger.With().Str("component", "BigQueryInserter").Str("dataset_id", cfg.DatasetID).Str("table_id", cfg.TableID).Logger()

	tableRef := client.Dataset(cfg.DatasetID).Table(cfg.TableID)
	if _, err := tableRef.Metadata(ctx); err != nil {
		var apiErr *googleapi.Error
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
			return nil, fmt.Errorf("failed to get BigQuery table metadata: %w", err)
		}
		logger.Warn().Msg("BigQuery table not found. Creating it.")
		if createErr := tableRef.Create(ctx, &bigquery.TableMetadata{Schema: Schema}); createErr != nil {
			return nil, fmt.Errorf("failed to create BigQuery table %s.%s: %w", cfg.DatasetID, cfg.TableID, createErr)
		}
	}

	return newBigQueryInserter(tableRef.Inserter(), logger), nil
}

func newBigQueryInserter(putter rowPutter, logger zerolog.Logger) *BigQueryInserter {
	return &BigQueryInserter{putter: putter, logger: logger}
}

// InsertBatch streams items to BigQuery. Any row error fails the whole call.
func (i *BigQueryInserter) InsertBatch(ctx context.Context, items []*dynstore.BufferedItem) error {
	if len(items) == 0 {
		return nil
	}

	rows := make([]bigquery.ValueSaver, 0, len(items))
	for _, item := range items {
		if item != nil {
			rows = append(rows, itemRow{item: item})
		}
	}

	if err := i.putter.Put(ctx, rows); err != nil {
		i.logger.Error().Err(err).Int("batch_size", len(items)).Msg("Failed to insert rows into BigQuery")
		var multiErr bigquery.PutMultiError
		if errors.As(err, &multiErr) {
			for _, rowErr := range multiErr {
				i.logger.Error().Int("row_index", rowErr.RowIndex).Msgf("BigQuery insert error for row: %v", rowErr.Errors)
			}
		}
		return fmt.Errorf("bigquery Inserter.Put failed: %w", err)
	}

	i.logger.Info().Int("batch_size", len(items)).Msg("Successfully inserted batch into BigQuery")
	return nil
}

// Close is a no-op as the BigQuery client's lifecycle is managed externally.
func (i *BigQueryInserter) Close() error {
	return nil
}
