package loadgen

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AllDevicesTopic receives one topology announcement per simulated device.
const AllDevicesTopic = "myhome/all-devices"

const defaultInterval = 5 * time.Second

// Device is a single simulated sensor node.
type Device struct {
	// ID is the node name; the published device id is "<id>-<sensor>".
	ID       string        `yaml:"id"`
	Sensor   string        `yaml:"sensor"`
	Location string        `yaml:"location"`
	Interval time.Duration `yaml:"interval"`
	Range    *Range        `yaml:"range"`
}

// DeviceID is the identity carried in every payload.
func (d *Device) DeviceID() string {
	return strings.ToLower(fmt.Sprintf("%s-%s", d.ID, d.Sensor))
}

func (d *Device) StatusTopic() string {
	return fmt.Sprintf("myhome/status/%s/%s", d.Location, d.Sensor)
}

func (d *Device) TelemetryTopic() string {
	return fmt.Sprintf("myhome/telemetry/%s/%s", d.Location, d.Sensor)
}

// Validate normalises names and fills defaults.
func (d *Device) Validate() error {
	d.ID = strings.ToLower(strings.TrimSpace(d.ID))
	d.Sensor = strings.ToLower(strings.TrimSpace(d.Sensor))
	d.Location = strings.ToLower(strings.TrimSpace(d.Location))
	if d.ID == "" {
		return errors.New("device id is required")
	}
	if _, err := GeneratorFor(d.Sensor); err != nil {
		return fmt.Errorf("device %s: %w", d.ID, err)
	}
	if d.Location == "" {
		d.Location = "default"
	}
	if d.Interval <= 0 {
		d.Interval = defaultInterval
	}
	if d.Range != nil && d.Range.Min > d.Range.Max {
		return fmt.Errorf("device %s: range min is greater than max", d.ID)
	}
	return nil
}

type devicesFile struct {
	Devices []*Device `yaml:"devices"`
}

// LoadDevicesFile reads a YAML document with a top-level devices list.
func LoadDevicesFile(path string) ([]*Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device file: %w", err)
	}
	var f devicesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse device file %s: %w", path, err)
	}
	if len(f.Devices) == 0 {
		return nil, fmt.Errorf("device file %s lists no devices", path)
	}
	for _, d := range f.Devices {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Devices, nil
}

// StatusMessage is published retained on the device's status topic.
type StatusMessage struct {
	DeviceID  string `json:"deviceId"`
	Status    string `json:"status"`
	Location  string `json:"location"`
	Timestamp int64  `json:"timestamp"`
}

// Announcement tells the backend which topics a device publishes on.
type Announcement struct {
	DeviceID  string   `json:"deviceId"`
	Location  string   `json:"location"`
	Topics    []string `json:"topics"`
	Timestamp int64    `json:"timestamp"`
}

// Telemetry is one sensor reading.
type Telemetry struct {
	DeviceID  string `json:"deviceId"`
	Sensor    string `json:"sensor"`
	Value     any    `json:"value"`
	Timestamp int64  `json:"timestamp"`
	Location  string `json:"location"`
}

// PayloadGenerator builds the messages a device publishes.
type PayloadGenerator struct {
	device *Device
	gen    ValueGenerator
	rnd    *rand.Rand
	now    func() time.Time
}

// NewPayloadGenerator expects a validated device.
func NewPayloadGenerator(device *Device, seed int64) (*PayloadGenerator, error) {
	gen, err := GeneratorFor(device.Sensor)
	if err != nil {
		return nil, err
	}
	return &PayloadGenerator{
		device: device,
		gen:    gen,
		rnd:    rand.New(rand.NewSource(seed)),
		now:    time.Now,
	}, nil
}

func (g *PayloadGenerator) Status(status string) Message {
	body, _ := json.Marshal(StatusMessage{
		DeviceID:  g.device.DeviceID(),
		Status:    status,
		Location:  g.device.Location,
		Timestamp: g.now().Unix(),
	})
	return Message{Topic: g.device.StatusTopic(), Payload: body, Retained: true}
}

func (g *PayloadGenerator) Announcement() Message {
	body, _ := json.Marshal(Announcement{
		DeviceID:  g.device.DeviceID(),
		Location:  g.device.Location,
		Topics:    []string{g.device.StatusTopic(), g.device.TelemetryTopic()},
		Timestamp: g.now().Unix(),
	})
	return Message{Topic: AllDevicesTopic, Payload: body}
}

func (g *PayloadGenerator) Telemetry() (Message, error) {
	body, err := json.Marshal(Telemetry{
		DeviceID:  g.device.DeviceID(),
		Sensor:    g.device.Sensor,
		Value:     g.gen(g.rnd, g.device.Range),
		Timestamp: g.now().Unix(),
		Location:  g.device.Location,
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode telemetry for %s: %w", g.device.DeviceID(), err)
	}
	return Message{Topic: g.device.TelemetryTopic(), Payload: body}, nil
}
