//go:build integration

package archive_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/telemetry-fanout/pkg/archive"
	"github.com/illmade-knight/telemetry-fanout/pkg/dynstore"
	"github.com/illmade-knight/telemetry-fanout/pkg/helpers/emulators"
	"github.com/illmade-knight/telemetry-fanout/pkg/types"
)

const (
	testProjectID = "test-project"
	testBucket    = "sensor-archive"
	testTable     = "SensorData"
)

func TestExportIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	logger := zerolog.New(zerolog.NewTestWriter(t))

	dynamoClient, _ := emulators.SetupDynamoDBEmulator(t, ctx, emulators.GetDefaultDynamoDBConfig(testTable))
	gcsClient, cleanup := emulators.SetupGCSEmulator(t, ctx, emulators.GetDefaultGCSConfig(testProjectID, testBucket))
	defer cleanup()

	inserter, err := dynstore.NewDynamoDBInserter(dynamoClient, &dynstore.DynamoDBConfig{TableName: testTable}, logger)
	require.NoError(t, err)

	var items []*dynstore.BufferedItem
	for _, body := range []string{
		`{"deviceId":"kitchen-temp","timestamp":1756468800,"sensor":"temperature","value":21.5,"location":"kitchen"}`,
		`{"deviceId":"hall-door","timestamp":1756468801,"sensor":"door","value":true,"location":"hall"}`,
	} {
		p, err := types.DecodePayload([]byte(body))
		require.NoError(t, err)
		item, err := dynstore.BuildItem(p, dynstore.ItemOptions{TTL: 24 * time.Hour})
		require.NoError(t, err)
		items = append(items, item)
	}
	require.NoError(t, inserter.InsertBatch(ctx, items))

	scanner, err := dynstore.NewTableScanner(dynamoClient, testTable, logger)
	require.NoError(t, err)
	exporter, err := archive.NewExporter(scanner, archive.NewGCSClientAdapter(gcsClient), &archive.Config{
		TableName:  testTable,
		BucketName: testBucket,
	}, logger)
	require.NoError(t, err)

	res, err := exporter.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, archive.StatusSuccess, res.Status)
	assert.Equal(t, archive.ObjectKey(time.Now().UTC()), res.File)

	reader, err := gcsClient.Bucket(testBucket).Object(res.File).NewReader(ctx)
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)

	var exported []map[string]any
	require.NoError(t, json.Unmarshal(data, &exported))
	require.Len(t, exported, 2)
	byDevice := make(map[string]map[string]any)
	for _, e := range exported {
		assert.NotContains(t, e, "ttl")
		byDevice[e["deviceId"].(string)] = e
	}
	assert.Equal(t, 21.5, byDevice["kitchen-temp"]["value"])
	assert.Equal(t, "kitchen", byDevice["kitchen-temp"]["location"])
	assert.Equal(t, true, byDevice["hall-door"]["value"])
}
