package dynstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/telemetry-fanout/pkg/dynstore"
)

type fakeScanner struct {
	pages [][]map[string]types.AttributeValue
	calls int
	err   error
}

func (f *fakeScanner) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := f.calls
	f.calls++
	out := &dynamodb.ScanOutput{Items: f.pages[page]}
	if page+1 < len(f.pages) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"deviceId": &types.AttributeValueMemberS{Value: "cursor"},
			"page":     &types.AttributeValueMemberN{Value: fmt.Sprint(page)},
		}
	}
	return out, nil
}

func row(device, ts string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"deviceId":  &types.AttributeValueMemberS{Value: device},
		"timestamp": &types.AttributeValueMemberN{Value: ts},
	}
}

func TestTableScanner_ScanAllFollowsPages(t *testing.T) {
	fake := &fakeScanner{pages: [][]map[string]types.AttributeValue{
		{row("a", "1"), row("b", "2")},
		{row("c", "3")},
	}}
	scanner, err := dynstore.NewTableScanner(fake, "SensorData", zerolog.Nop())
	require.NoError(t, err)

	items, err := scanner.ScanAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, fake.calls)
	require.Len(t, items, 3)
	assert.Equal(t, "c", items[2]["deviceId"])
	assert.Equal(t, attributevalue.Number("3"), items[2]["timestamp"])
}

func TestTableScanner_Errors(t *testing.T) {
	_, err := dynstore.NewTableScanner(&fakeScanner{}, "", zerolog.Nop())
	assert.Error(t, err)

	fake := &fakeScanner{err: errors.New("access denied")}
	scanner, err := dynstore.NewTableScanner(fake, "SensorData", zerolog.Nop())
	require.NoError(t, err)
	_, err = scanner.ScanAll(context.Background())
	assert.ErrorIs(t, err, fake.err)
}
