package dynstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"
)

// TableScanner reads whole tables, page by page.
type TableScanner struct {
	client    dynamodb.ScanAPIClient
	tableName string
	logger    zerolog.Logger
}

// NewTableScanner creates a scanner for tableName.
func NewTableScanner(client dynamodb.ScanAPIClient, tableName string, logger zerolog.Logger) (*TableScanner, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamodb client cannot be nil")
	}
	if tableName == "" {
		return nil, fmt.Errorf("table name is required")
	}
	return &TableScanner{
		client:    client,
		tableName: tableName,
		logger:    logger.With().Str("component", "TableScanner").Str("table", tableName).Logger(),
	}, nil
}

// ScanAll returns every item of the table as plain Go values. Numbers are
// returned as attributevalue.Number so they keep their exact stored form.
func (s *TableScanner) ScanAll(ctx context.Context) ([]map[string]any, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	})

	var items []map[string]any
	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan of %s failed after %d pages: %w", s.tableName, pages, err)
		}
		pages++

		var decoded []map[string]any
		err = attributevalue.UnmarshalListOfMapsWithOptions(page.Items, &decoded, func(o *attributevalue.DecoderOptions) {
			o.UseNumber = true
		})
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal scanned items: %w", err)
		}
		items = append(items, decoded...)
	}

	s.logger.Info().Int("pages", pages).Int("items", len(items)).Msg("Table scan complete")
	return items, nil
}
