//go:build integration

package bqstore_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"

	"github.com/illmade-knight/telemetry-fanout/pkg/bqstore"
	"github.com/illmade-knight/telemetry-fanout/pkg/dynstore"
	"github.com/illmade-knight/telemetry-fanout/pkg/helpers/emulators"
	"github.com/illmade-knight/telemetry-fanout/pkg/types"
)

const (
	testProjectID = "test-telemetry-project"
	testDatasetID = "telemetry_dataset"
	testTableID   = "sensor_data"
)

func TestBigQueryInserter_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	logger := zerolog.New(zerolog.NewTestWriter(t))

	cfg := emulators.GetDefaultBigQueryConfig(testProjectID, map[string]string{testDatasetID: testTableID}, map[string]bigquery.Schema{testTableID: bqstore.Schema})
	opts, cleanup := emulators.SetupBigQueryEmulator(t, ctx, cfg)
	defer cleanup()

	client, err := bigquery.NewClient(ctx, testProjectID, opts...)
	require.NoError(t, err)
	defer client.Close()

	inserter, err := bqstore.NewBigQueryInserter(ctx, client, &bqstore.BigQueryDatasetConfig{
		ProjectID: testProjectID,
		DatasetID: testDatasetID,
		TableID:   testTableID,
	}, logger)
	require.NoError(t, err)

	buffer := dynstore.NewBatchBuffer[dynstore.BufferedItem](dynstore.BatchBufferConfig{Capacity: 3}, inserter, logger)
	for i, body := range []string{
		`{"deviceId":"bq-1","timestamp":1700000001,"sensor":"temperature","value":22.15,"location":"lab"}`,
		`{"deviceId":"bq-1","timestamp":1700000002,"status":"online","location":"lab"}`,
		`{"deviceId":"bq-1","timestamp":1700000003,"topics":["myhome/telemetry/lab/temperature"],"location":"lab"}`,
	} {
		p, err := types.DecodePayload([]byte(body))
		require.NoError(t, err)
		item, err := dynstore.BuildItem(p, dynstore.ItemOptions{})
		require.NoError(t, err)
		outcome := buffer.Append(ctx, item)
		if i == 2 {
			assert.Equal(t, dynstore.Flushed, outcome)
		}
	}

	var rows []map[string]bigquery.Value
	require.Eventually(t, func() bool {
		q := client.Query("SELECT deviceId, sensor, status FROM `" + testProjectID + "." + testDatasetID + "." + testTableID + "`")
		it, err := q.Read(ctx)
		if err != nil {
			return false
		}
		rows = rows[:0]
		for {
			var row map[string]bigquery.Value
			err := it.Next(&row)
			if err == iterator.Done {
				break
			}
			if err != nil {
				return false
			}
			rows = append(rows, row)
		}
		return len(rows) == 3
	}, 30*time.Second, time.Second)

	for _, row := range rows {
		assert.Equal(t, "bq-1", row["deviceId"])
	}
}
