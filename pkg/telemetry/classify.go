package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/telemetry-fanout/pkg/types"
)

// Payload keys recognised by Classify.
const (
	KeyDeviceID  = "deviceId"
	KeyLocation  = "location"
	KeyTimestamp = "timestamp"
	KeySensor    = "sensor"
	KeyValue     = "value"
	KeyStatus    = "status"
	KeyTopics    = "topics"
)

// Classify extracts the record carried by p. It never fails: a payload that
// matches no variant, or whose matched variant is malformed, yields nil.
//
// The priority order is sensor+value, then status, then topics. The first
// variant whose keys are present wins even when it turns out to be malformed;
// classification does not fall through to a lower-priority variant.
func Classify(p types.Payload) Record {
	if p == nil {
		return nil
	}
	h := header(p)

	switch {
	case p.Has(KeySensor) && p.Has(KeyValue):
		sensor, ok := p.String(KeySensor)
		if !ok || sensor == "" {
			return nil
		}
		value, ok := numericValue(p[KeyValue])
		if !ok {
			return nil
		}
		return Reading{Header: h, Sensor: sensor, Value: value}

	case p.Has(KeyStatus):
		raw, ok := p.String(KeyStatus)
		if !ok {
			return nil
		}
		return Status{Header: h, Raw: raw}

	case p.Has(KeyTopics):
		list, ok := p[KeyTopics].([]any)
		if !ok {
			return nil
		}
		topics := make([]string, 0, len(list))
		for _, t := range list {
			if s, ok := t.(string); ok {
				topics = append(topics, s)
				continue
			}
			topics = append(topics, fmt.Sprint(t))
		}
		return Topology{Header: h, Topics: topics}
	}
	return nil
}

func header(p types.Payload) Header {
	h := Header{Location: UnknownLocation}
	h.DeviceID, _ = p.String(KeyDeviceID)
	if loc, ok := p.String(KeyLocation); ok && loc != "" {
		h.Location = loc
	}
	h.Timestamp, _ = p.Int64(KeyTimestamp)
	return h
}

// numericValue accepts JSON numbers and booleans. Booleans come from binary
// sensors such as motion detectors and map to 1 and 0.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// HasLocation reports whether p carries its own non-empty location.
func HasLocation(p types.Payload) bool {
	loc, ok := p.String(KeyLocation)
	return ok && loc != ""
}

// WithLocation returns a copy of r whose header location is loc.
func WithLocation(r Record, loc string) Record {
	switch v := r.(type) {
	case Reading:
		v.Location = loc
		return v
	case Status:
		v.Location = loc
		return v
	case Topology:
		v.Location = loc
		return v
	}
	return r
}
