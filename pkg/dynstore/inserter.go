package dynstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

const (
	// dynamoBatchLimit is the BatchWriteItem hard limit on requests per call.
	dynamoBatchLimit = 25
	// maxUnprocessedRetries bounds resubmission of throttled items within one call.
	maxUnprocessedRetries = 3
)

// DynamoDBConfig holds configuration for the DynamoDB inserter.
type DynamoDBConfig struct {
	TableName string
	Region    string
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string
	// MaxBatch caps the number of items per BatchWriteItem call. Values
	// outside 1..25 are clamped to 25.
	MaxBatch int
	// TTL, when positive, is applied to built items as the ttl attribute.
	TTL time.Duration
}

// LoadDynamoDBConfigFromEnv loads DynamoDB configuration from environment
// variables. DYNAMO_TABLE may be empty, in which case every batch write is a
// successful no-op.
func LoadDynamoDBConfigFromEnv() *DynamoDBConfig {
	cfg := &DynamoDBConfig{
		TableName: os.Getenv("DYNAMO_TABLE"),
		Region:    os.Getenv("AWS_REGION"),
		Endpoint:  os.Getenv("DYNAMO_ENDPOINT"),
	}
	if d, err := time.ParseDuration(os.Getenv("DYNAMO_TTL")); err == nil {
		cfg.TTL = d
	}
	return cfg
}

// NewDynamoDBClient creates a DynamoDB client from the default AWS credential chain.
func NewDynamoDBClient(ctx context.Context, cfg *DynamoDBConfig, logger zerolog.Logger) (*dynamodb.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		logger.Info().Str("endpoint", cfg.Endpoint).Msg("Using DynamoDB endpoint override.")
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	logger.Info().Str("region", awsCfg.Region).Msg("DynamoDB client created.")
	return dynamodb.NewFromConfig(awsCfg, clientOpts...), nil
}

// BatchWriteAPI is the part of the DynamoDB client used by the inserter.
type BatchWriteAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoDBInserter implements DataBatchInserter[BufferedItem] with BatchWriteItem.
type DynamoDBInserter struct {
	client    BatchWriteAPI
	tableName string
	maxBatch  int
	backoff   time.Duration
	logger    zerolog.Logger
}

// NewDynamoDBInserter creates an inserter for cfg.TableName.
func NewDynamoDBInserter(client BatchWriteAPI, cfg *DynamoDBConfig, logger zerolog.Logger) (*DynamoDBInserter, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamodb client cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("DynamoDBConfig cannot be nil")
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 || maxBatch > dynamoBatchLimit {
		maxBatch = dynamoBatchLimit
	}
	logger = logger.With().Str("component", "DynamoDBInserter").Str("table", cfg.TableName).Logger()
	if cfg.TableName == "" {
		logger.Warn().Msg("DYNAMO_TABLE not set, batch writes will be skipped.")
	}
	return &DynamoDBInserter{
		client:    client,
		tableName: cfg.TableName,
		maxBatch:  maxBatch,
		backoff:   100 * time.Millisecond,
		logger:    logger,
	}, nil
}

// InsertBatch writes items, overwriting existing items with the same key.
// Duplicate keys within items collapse to the last occurrence. The call fails
// as a whole if any chunk cannot be written; chunks written before the failure
// are rewritten on the next attempt, which is harmless since writes overwrite
// by key.
func (d *DynamoDBInserter) InsertBatch(ctx context.Context, items []*BufferedItem) error {
	if d.tableName == "" || len(items) == 0 {
		return nil
	}

	requests := make([]types.WriteRequest, 0, len(items))
	positions := make(map[ItemKey]int, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item %s: %w", item.Key(), err)
		}
		req := types.WriteRequest{PutRequest: &types.PutRequest{Item: av}}
		if pos, dup := positions[item.Key()]; dup {
			requests[pos] = req
			continue
		}
		positions[item.Key()] = len(requests)
		requests = append(requests, req)
	}

	for start := 0; start < len(requests); start += d.maxBatch {
		end := start + d.maxBatch
		if end > len(requests) {
			end = len(requests)
		}
		if err := d.writeChunk(ctx, requests[start:end]); err != nil {
			d.logger.Error().Err(err).Int("batch_size", len(items)).Msg("DynamoDB batch write failed")
			return err
		}
	}

	d.logger.Info().Int("batch_size", len(items)).Int("written", len(requests)).Msg("DynamoDB batch written")
	return nil
}

// writeChunk writes one BatchWriteItem call and resubmits unprocessed items.
func (d *DynamoDBInserter) writeChunk(ctx context.Context, requests []types.WriteRequest) error {
	pending := requests
	for attempt := 0; attempt <= maxUnprocessedRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * d.backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		out, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{d.tableName: pending},
		})
		if err != nil {
			return fmt.Errorf("BatchWriteItem failed: %w", err)
		}

		unprocessed := out.UnprocessedItems[d.tableName]
		if len(unprocessed) == 0 {
			return nil
		}
		d.logger.Warn().Int("unprocessed", len(unprocessed)).Int("attempt", attempt+1).Msg("DynamoDB returned unprocessed items")
		pending = unprocessed
	}
	return fmt.Errorf("%d items still unprocessed after %d retries", len(pending), maxUnprocessedRetries)
}

// Close is a no-op; the DynamoDB client has no resources to release.
func (d *DynamoDBInserter) Close() error {
	return nil
}
