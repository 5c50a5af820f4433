package tsdb

import (
	"strconv"
	"strings"

	"github.com/illmade-knight/telemetry-fanout/pkg/telemetry"
)

// Fixed measurement names for records that are not sensor readings.
const (
	MeasurementStatus     = "status"
	MeasurementTopicCount = "topic_count"
)

// Tag is a single line-protocol tag. Tags are written in slice order.
type Tag struct {
	Key   string
	Value string
}

// Point is one line-protocol write.
type Point struct {
	Measurement string
	Tags        []Tag
	Value       float64
}

// PointFromRecord maps a classified record to the point written for it.
// Unclassified records (nil) produce no point.
func PointFromRecord(r telemetry.Record) (Point, bool) {
	if r == nil {
		return Point{}, false
	}
	h := r.Head()
	tags := []Tag{{Key: "deviceId", Value: h.DeviceID}, {Key: "location", Value: h.Location}}

	switch v := r.(type) {
	case telemetry.Reading:
		return Point{Measurement: v.Sensor, Tags: tags, Value: v.Value}, true
	case telemetry.Status:
		value := 0.0
		if v.Online() {
			value = 1
		}
		return Point{Measurement: MeasurementStatus, Tags: tags, Value: value}, true
	case telemetry.Topology:
		return Point{Measurement: MeasurementTopicCount, Tags: tags, Value: float64(len(v.Topics))}, true
	}
	return Point{}, false
}

var (
	measurementEscaper = strings.NewReplacer(",", `\,`, " ", `\ `)
	tagEscaper         = strings.NewReplacer(",", `\,`, " ", `\ `, "=", `\=`)
)

// Line renders p as `measurement,k1=v1,k2=v2 value=<v>`. Tags with an empty
// key or value are omitted since the protocol cannot carry them.
func (p Point) Line() string {
	var b strings.Builder
	b.WriteString(measurementEscaper.Replace(p.Measurement))
	for _, t := range p.Tags {
		if t.Key == "" || t.Value == "" {
			continue
		}
		b.WriteByte(',')
		b.WriteString(tagEscaper.Replace(t.Key))
		b.WriteByte('=')
		b.WriteString(tagEscaper.Replace(t.Value))
	}
	b.WriteString(" value=")
	b.WriteString(strconv.FormatFloat(p.Value, 'f', -1, 64))
	return b.String()
}
