package bqstore

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/telemetry-fanout/pkg/dynstore"
	"github.com/illmade-knight/telemetry-fanout/pkg/types"
)

type fakePutter struct {
	rows [][]bigquery.ValueSaver
	err  error
}

func (f *fakePutter) Put(ctx context.Context, src interface{}) error {
	f.rows = append(f.rows, src.([]bigquery.ValueSaver))
	return f.err
}

func buildItem(t *testing.T, body string) *dynstore.BufferedItem {
	t.Helper()
	p, err := types.DecodePayload([]byte(body))
	require.NoError(t, err)
	item, err := dynstore.BuildItem(p, dynstore.ItemOptions{})
	require.NoError(t, err)
	return item
}

func TestItemRow_Save(t *testing.T) {
	t.Run("reading", func(t *testing.T) {
		item := buildItem(t, `{"deviceId":"d1","timestamp":1700000000,"sensor":"temperature","value":21.37,"location":"kitchen"}`)
		item.ExpiresAt = 1800000000

		row, insertID, err := itemRow{item: item}.Save()
		require.NoError(t, err)

		assert.Equal(t, "d1#1700000000", insertID)
		assert.Equal(t, "d1", row["deviceId"])
		assert.Equal(t, 0, row["timestamp"].(*big.Rat).Cmp(big.NewRat(1700000000, 1)))
		assert.Equal(t, 0, row["value"].(*big.Rat).Cmp(big.NewRat(2137, 100)), "value stays exact")
		assert.Equal(t, "temperature", row["sensor"])
		assert.Equal(t, "kitchen", row["location"])
		assert.Equal(t, int64(1800000000), row["ttl"])
		assert.NotContains(t, row, "status")
	})

	t.Run("boolean value", func(t *testing.T) {
		row, _, err := itemRow{item: buildItem(t, `{"deviceId":"d1","timestamp":1,"sensor":"motion","value":true}`)}.Save()
		require.NoError(t, err)
		assert.Equal(t, 0, row["value"].(*big.Rat).Cmp(big.NewRat(1, 1)))
	})

	t.Run("non-numeric value is dropped", func(t *testing.T) {
		row, _, err := itemRow{item: buildItem(t, `{"deviceId":"d1","timestamp":1,"sensor":"door","value":"open"}`)}.Save()
		require.NoError(t, err)
		assert.NotContains(t, row, "value")
	})

	t.Run("topics", func(t *testing.T) {
		row, _, err := itemRow{item: buildItem(t, `{"deviceId":"d1","timestamp":1,"topics":["a/b",3]}`)}.Save()
		require.NoError(t, err)
		assert.Equal(t, []string{"a/b", "3"}, row["topics"])
	})
}

func TestBigQueryInserter_InsertBatch(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		putter := &fakePutter{}
		inserter := newBigQueryInserter(putter, zerolog.Nop())

		err := inserter.InsertBatch(context.Background(), []*dynstore.BufferedItem{
			buildItem(t, `{"deviceId":"d1","timestamp":1,"status":"online"}`),
			buildItem(t, `{"deviceId":"d1","timestamp":2,"status":"offline"}`),
		})
		require.NoError(t, err)
		require.Len(t, putter.rows, 1)
		assert.Len(t, putter.rows[0], 2)
	})

	t.Run("empty batch", func(t *testing.T) {
		putter := &fakePutter{}
		require.NoError(t, newBigQueryInserter(putter, zerolog.Nop()).InsertBatch(context.Background(), nil))
		assert.Empty(t, putter.rows)
	})

	t.Run("row errors fail the batch", func(t *testing.T) {
		putter := &fakePutter{err: bigquery.PutMultiError{{RowIndex: 0, Errors: bigquery.MultiError{errors.New("bad row")}}}}
		err := newBigQueryInserter(putter, zerolog.Nop()).InsertBatch(context.Background(), []*dynstore.BufferedItem{
			buildItem(t, `{"deviceId":"d1","timestamp":1}`),
		})
		require.Error(t, err)
	})

	t.Run("behind a batch buffer", func(t *testing.T) {
		putter := &fakePutter{err: errors.New("unavailable")}
		inserter := newBigQueryInserter(putter, zerolog.Nop())
		buffer := dynstore.NewBatchBuffer[dynstore.BufferedItem](dynstore.BatchBufferConfig{Capacity: 2}, inserter, zerolog.Nop())

		buffer.Append(context.Background(), buildItem(t, `{"deviceId":"d1","timestamp":1}`))
		assert.Equal(t, dynstore.Failed, buffer.Append(context.Background(), buildItem(t, `{"deviceId":"d1","timestamp":2}`)))
		assert.Equal(t, 2, buffer.Len())

		putter.err = nil
		assert.Equal(t, dynstore.Flushed, buffer.ForceFlush(context.Background()))
		assert.Equal(t, 0, buffer.Len())
	})
}

func TestLoadBigQueryInserterConfigFromEnv(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "p")
	t.Setenv("BQ_DATASET_ID", "telemetry")
	t.Setenv("BQ_TABLE_ID", "")
	_, err := LoadBigQueryInserterConfigFromEnv()
	require.Error(t, err)

	t.Setenv("BQ_TABLE_ID", "sensor_data")
	cfg, err := LoadBigQueryInserterConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sensor_data", cfg.TableID)
}
