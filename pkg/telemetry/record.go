// Package telemetry turns decoded device payloads into typed records.
//
// A payload carries at most one record variant. Which one is decided by key
// presence in a fixed priority order: a sensor reading (sensor and value), then
// a status change (status), then a topology announcement (topics). Payloads that
// match none of them, or match one but carry malformed fields, are unclassified.
package telemetry

import "strings"

// UnknownLocation is used for records whose payload has no usable location.
const UnknownLocation = "unknown"

// Kind identifies the variant of a Record.
type Kind int

const (
	KindUnclassified Kind = iota
	KindReading
	KindStatus
	KindTopology
)

func (k Kind) String() string {
	switch k {
	case KindReading:
		return "reading"
	case KindStatus:
		return "status"
	case KindTopology:
		return "topology"
	default:
		return "unclassified"
	}
}

// Header holds the fields shared by every record variant.
type Header struct {
	DeviceID  string
	Location  string
	Timestamp int64
}

// Record is a classified payload. The concrete type is one of Reading, Status
// or Topology; an unclassified payload is represented by a nil Record.
type Record interface {
	Kind() Kind
	Head() Header
	isRecord()
}

// Reading is a numeric sensor measurement.
type Reading struct {
	Header
	Sensor string
	Value  float64
}

// Status is a device status change such as "online" or "offline".
type Status struct {
	Header
	Raw string
}

// Topology announces the topics a device publishes on.
type Topology struct {
	Header
	Topics []string
}

func (Reading) Kind() Kind  { return KindReading }
func (Status) Kind() Kind   { return KindStatus }
func (Topology) Kind() Kind { return KindTopology }

func (r Reading) Head() Header  { return r.Header }
func (s Status) Head() Header   { return s.Header }
func (t Topology) Head() Header { return t.Header }

func (Reading) isRecord()  {}
func (Status) isRecord()   {}
func (Topology) isRecord() {}

// Online reports whether the status text means the device is online. The
// comparison ignores case.
func (s Status) Online() bool {
	return strings.EqualFold(s.Raw, "online")
}

// KindOf returns the kind of r, treating nil as unclassified.
func KindOf(r Record) Kind {
	if r == nil {
		return KindUnclassified
	}
	return r.Kind()
}
