package bqstore

import (
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"

	"github.com/illmade-knight/telemetry-fanout/pkg/dynstore"
)

// Schema is the table layout rows are written with. Numbers use NUMERIC so the
// exact decimal form of each item survives.
var Schema = bigquery.Schema{
	{Name: "deviceId", Type: bigquery.StringFieldType, Required: true},
	{Name: "timestamp", Type: bigquery.NumericFieldType, Required: true},
	{Name: "sensor", Type: bigquery.StringFieldType},
	{Name: "value", Type: bigquery.NumericFieldType},
	{Name: "status", Type: bigquery.StringFieldType},
	{Name: "location", Type: bigquery.StringFieldType},
	{Name: "topics", Type: bigquery.StringFieldType, Repeated: true},
	{Name: "ttl", Type: bigquery.IntegerFieldType},
}

// itemRow adapts a BufferedItem to bigquery.ValueSaver.
type itemRow struct {
	item *dynstore.BufferedItem
}

// Save implements bigquery.ValueSaver. The insert ID is the item key, which
// lets streaming inserts drop retried duplicates on a best-effort basis.
func (r itemRow) Save() (map[string]bigquery.Value, string, error) {
	item := r.item
	row := map[string]bigquery.Value{
		"deviceId":  item.DeviceID,
		"timestamp": item.Timestamp.Rat(),
	}
	for key, v := range item.Fields {
		switch key {
		case "value":
			if rat, ok := numeric(v); ok {
				row[key] = rat
			}
		case "topics":
			list, ok := v.([]any)
			if !ok {
				continue
			}
			topics := make([]string, 0, len(list))
			for _, t := range list {
				topics = append(topics, text(t))
			}
			row[key] = topics
		default:
			if v != nil {
				row[key] = text(v)
			}
		}
	}
	if item.ExpiresAt != 0 {
		row["ttl"] = item.ExpiresAt
	}
	return row, item.Key().String(), nil
}

func numeric(v any) (*big.Rat, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n.Rat(), true
	case bool:
		if n {
			return big.NewRat(1, 1), true
		}
		return new(big.Rat), true
	}
	return nil, false
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case decimal.Decimal:
		return t.String()
	}
	return fmt.Sprint(v)
}
