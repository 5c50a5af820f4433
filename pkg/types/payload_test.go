package types_test

import (
	"encoding/json"
	"testing"

	"github.com/illmade-knight/telemetry-fanout/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload(t *testing.T) {
	t.Run("object keeps exact number text", func(t *testing.T) {
		p, err := types.DecodePayload([]byte(`{"deviceId":"rpi-temperature","value":23.10,"timestamp":1724900000}`))
		require.NoError(t, err)

		assert.Equal(t, json.Number("23.10"), p["value"])
		ts, ok := p.Int64("timestamp")
		require.True(t, ok)
		assert.Equal(t, int64(1724900000), ts)
		id, ok := p.String("deviceId")
		require.True(t, ok)
		assert.Equal(t, "rpi-temperature", id)
	})

	t.Run("array is rejected", func(t *testing.T) {
		_, err := types.DecodePayload([]byte(`[1,2,3]`))
		assert.ErrorIs(t, err, types.ErrNotObject)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := types.DecodePayload([]byte(`{"deviceId":`))
		assert.Error(t, err)
	})

	t.Run("trailing data", func(t *testing.T) {
		_, err := types.DecodePayload([]byte(`{"a":1} {"b":2}`))
		assert.Error(t, err)
	})
}

func TestPayloadAccessors(t *testing.T) {
	p, err := types.DecodePayload([]byte(`{"ts":1.5,"name":7,"flag":null}`))
	require.NoError(t, err)

	_, ok := p.Int64("ts")
	assert.False(t, ok, "non-integral numbers are not Int64")
	f, ok := p.Float64("ts")
	assert.True(t, ok)
	assert.Equal(t, 1.5, f)

	_, ok = p.String("name")
	assert.False(t, ok)

	assert.True(t, p.Has("flag"))
	assert.False(t, p.Has("missing"))
}

func TestEnvelopeSettle(t *testing.T) {
	var acked, nacked int
	env := types.Envelope{Ack: func() { acked++ }, Nack: func() { nacked++ }}

	env.Settle(true)
	env.Settle(false)
	assert.Equal(t, 1, acked)
	assert.Equal(t, 1, nacked)

	assert.NotPanics(t, func() { types.Envelope{}.Settle(true) })
}
