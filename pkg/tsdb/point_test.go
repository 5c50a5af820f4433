package tsdb_test

import (
	"testing"

	"github.com/illmade-knight/telemetry-fanout/pkg/telemetry"
	"github.com/illmade-knight/telemetry-fanout/pkg/tsdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointFromRecord(t *testing.T) {
	h := telemetry.Header{DeviceID: "rpi-temperature", Location: "kitchen", Timestamp: 10}
	tags := []tsdb.Tag{{Key: "deviceId", Value: "rpi-temperature"}, {Key: "location", Value: "kitchen"}}

	testCases := []struct {
		name     string
		record   telemetry.Record
		expected tsdb.Point
	}{
		{
			name:     "reading uses sensor name",
			record:   telemetry.Reading{Header: h, Sensor: "temperature", Value: 21.5},
			expected: tsdb.Point{Measurement: "temperature", Tags: tags, Value: 21.5},
		},
		{
			name:     "mixed case online is one",
			record:   telemetry.Status{Header: h, Raw: "Online"},
			expected: tsdb.Point{Measurement: tsdb.MeasurementStatus, Tags: tags, Value: 1},
		},
		{
			name:     "offline is zero",
			record:   telemetry.Status{Header: h, Raw: "offline"},
			expected: tsdb.Point{Measurement: tsdb.MeasurementStatus, Tags: tags, Value: 0},
		},
		{
			name:     "topology counts topics",
			record:   telemetry.Topology{Header: h, Topics: []string{"a", "b", "c"}},
			expected: tsdb.Point{Measurement: tsdb.MeasurementTopicCount, Tags: tags, Value: 3},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := tsdb.PointFromRecord(tc.record)
			require.True(t, ok)
			assert.Equal(t, tc.expected, p)
		})
	}

	_, ok := tsdb.PointFromRecord(nil)
	assert.False(t, ok, "unclassified records produce no point")
}

func TestPointLine(t *testing.T) {
	p := tsdb.Point{
		Measurement: "temperature",
		Tags:        []tsdb.Tag{{Key: "deviceId", Value: "rpi-temperature"}, {Key: "location", Value: "kitchen"}},
		Value:       23.45,
	}
	assert.Equal(t, "temperature,deviceId=rpi-temperature,location=kitchen value=23.45", p.Line())

	p.Value = 1
	assert.Equal(t, "temperature,deviceId=rpi-temperature,location=kitchen value=1", p.Line())

	escaped := tsdb.Point{
		Measurement: "air quality",
		Tags:        []tsdb.Tag{{Key: "deviceId", Value: "a,b"}, {Key: "location", Value: "living room=1"}},
		Value:       0.5,
	}
	assert.Equal(t, `air\ quality,deviceId=a\,b,location=living\ room\=1 value=0.5`, escaped.Line())

	noID := tsdb.Point{Measurement: "status", Tags: []tsdb.Tag{{Key: "deviceId", Value: ""}, {Key: "location", Value: "unknown"}}}
	assert.Equal(t, "status,location=unknown value=0", noID.Line())
}
