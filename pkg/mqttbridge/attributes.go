package mqttbridge

import "strings"

// Attribute keys set on every forwarded message.
const (
	AttrMQTTTopic = "mqtt_topic"
	AttrKind      = "kind"
	AttrLocation  = "location"
	AttrSensor    = "sensor"
)

// TopicAttributes derives routing attributes from a home topic:
//
//	myhome/telemetry/<location>/<sensor> -> kind=telemetry
//	myhome/status/<location>/<sensor>    -> kind=status
//	myhome/all-devices                   -> kind=announcement
//
// Other topics only carry mqtt_topic.
func TopicAttributes(topic string) map[string]string {
	attrs := map[string]string{AttrMQTTTopic: topic}
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] != "myhome" {
		return attrs
	}
	switch {
	case len(parts) == 2 && parts[1] == "all-devices":
		attrs[AttrKind] = "announcement"
	case len(parts) == 4 && (parts[1] == "telemetry" || parts[1] == "status"):
		attrs[AttrKind] = parts[1]
		attrs[AttrLocation] = parts[2]
		attrs[AttrSensor] = parts[3]
	}
	return attrs
}
