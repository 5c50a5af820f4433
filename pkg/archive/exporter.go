// Package archive exports the durable telemetry table to cold storage as a
// dated JSON document.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/telemetry-fanout/pkg/dynstore"
)

const StatusSuccess = "success"

// TableScanner reads every item of the durable table.
type TableScanner interface {
	ScanAll(ctx context.Context) ([]map[string]any, error)
}

// Config holds the export destination.
type Config struct {
	TableName  string
	BucketName string
	// Location is the time zone the object key's date is taken in. Defaults to UTC.
	Location *time.Location
}

// LoadConfigFromEnv reads DYNAMO_TABLE, ARCHIVE_BUCKET and ARCHIVE_TIMEZONE.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{
		TableName:  os.Getenv("DYNAMO_TABLE"),
		BucketName: os.Getenv("ARCHIVE_BUCKET"),
		Location:   time.UTC,
	}
	if cfg.TableName == "" {
		return nil, errors.New("DYNAMO_TABLE environment variable not set for archive export")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("ARCHIVE_BUCKET environment variable not set for archive export")
	}
	if tz := os.Getenv("ARCHIVE_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid ARCHIVE_TIMEZONE %q: %w", tz, err)
		}
		cfg.Location = loc
	}
	return cfg, nil
}

// Result is returned by a successful export.
type Result struct {
	Status string `json:"status"`
	File   string `json:"file"`
}

// Exporter copies the whole table into one object per run.
type Exporter struct {
	scanner TableScanner
	gcs     GCSClient
	cfg     Config
	now     func() time.Time
	logger  zerolog.Logger
}

// NewExporter creates an exporter writing to cfg.BucketName.
func NewExporter(scanner TableScanner, gcs GCSClient, cfg *Config, logger zerolog.Logger) (*Exporter, error) {
	if scanner == nil {
		return nil, errors.New("table scanner cannot be nil")
	}
	if gcs == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if cfg == nil || cfg.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	c := *cfg
	if c.Location == nil {
		c.Location = time.UTC
	}
	return &Exporter{
		scanner: scanner,
		gcs:     gcs,
		cfg:     c,
		now:     time.Now,
		logger:  logger.With().Str("component", "ArchiveExporter").Str("bucket", c.BucketName).Logger(),
	}, nil
}

// ObjectKey returns the key an export taken at t is written to, e.g.
// "2025/August/29-08-2025-SensorData.json".
func ObjectKey(t time.Time) string {
	return fmt.Sprintf("%s/%s/%s-SensorData.json", t.Format("2006"), t.Format("January"), t.Format("02-01-2006"))
}

// Export scans the table and writes it as an indented JSON array. The ttl
// attribute is left out. An export on the same day overwrites the earlier one.
func (e *Exporter) Export(ctx context.Context) (Result, error) {
	items, err := e.scanner.ScanAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to scan table: %w", err)
	}

	cleaned := make([]map[string]any, 0, len(items))
	for _, item := range items {
		cleaned = append(cleaned, clean(item))
	}

	body, err := json.MarshalIndent(cleaned, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode export: %w", err)
	}

	key := ObjectKey(e.now().In(e.cfg.Location))
	w := e.gcs.Bucket(e.cfg.BucketName).Object(key).NewWriter(ctx)
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return Result{}, fmt.Errorf("failed to write gs://%s/%s: %w", e.cfg.BucketName, key, err)
	}
	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("failed to finalize gs://%s/%s: %w", e.cfg.BucketName, key, err)
	}

	e.logger.Info().Str("object_key", key).Int("items", len(cleaned)).Msg("Backup written")
	return Result{Status: StatusSuccess, File: key}, nil
}

// clean drops the ttl attribute and turns stored numbers into JSON numbers
// with their exact text.
func clean(item map[string]any) map[string]any {
	out := make(map[string]any, len(item))
	for k, v := range item {
		if k == dynstore.AttrTTL {
			continue
		}
		out[k] = plain(v)
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case attributevalue.Number:
		return json.Number(t)
	case []any:
		list := make([]any, len(t))
		for i, e := range t {
			list[i] = plain(e)
		}
		return list
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = plain(e)
		}
		return m
	}
	return v
}
