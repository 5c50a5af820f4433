// Command sensor-sim publishes simulated home sensor readings to an MQTT
// broker.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/illmade-knight/telemetry-fanout/pkg/helpers/loadgen"
	"github.com/illmade-knight/telemetry-fanout/pkg/helpers/logging"
)

func main() {
	logger := logging.New("sensor-sim")

	broker := pflag.String("broker", "tcp://localhost:1883", "MQTT broker URL, e.g. ssl://<endpoint>:8883")
	qos := pflag.Uint8("qos", 1, "MQTT QoS for every publish")
	devicesFile := pflag.String("devices", "", "YAML file listing the devices to simulate; overrides the single-device flags")
	id := pflag.String("id", "rpi", "Node id; the device id is <id>-<sensor>")
	sensor := pflag.String("sensor", "temperature", "Sensor type: "+strings.Join(loadgen.SensorTypes(), ", "))
	location := pflag.String("location", "default", "Location used in topics and payloads")
	interval := pflag.Duration("interval", 5*time.Second, "Time between readings")
	valueRange := pflag.String("range", "", "Optional value range override as min,max")
	duration := pflag.Duration("duration", 0, "Stop after this long; 0 runs until interrupted")
	seed := pflag.Int64("seed", time.Now().UnixNano(), "Random seed")
	caFile := pflag.String("ca", "", "CA certificate; enables TLS")
	certFile := pflag.String("cert", "", "Client certificate for mutual TLS")
	keyFile := pflag.String("key", "", "Client private key for mutual TLS")
	username := pflag.String("username", "", "MQTT username")
	password := pflag.String("password", "", "MQTT password")
	uniqueID := pflag.Bool("unique-client-id", false, "Append a random suffix to each MQTT client id")
	pflag.Parse()

	var devices []*loadgen.Device
	if *devicesFile != "" {
		var err error
		devices, err = loadgen.LoadDevicesFile(*devicesFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load devices")
		}
	} else {
		r, err := loadgen.ParseRange(*valueRange)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid range")
		}
		d := &loadgen.Device{ID: *id, Sensor: *sensor, Location: *location, Interval: *interval, Range: r}
		if err := d.Validate(); err != nil {
			logger.Fatal().Err(err).Msg("Invalid device")
		}
		devices = []*loadgen.Device{d}
	}

	factory := loadgen.NewMqttClientFactory(loadgen.MqttClientConfig{
		BrokerURL:      *broker,
		QoS:            *qos,
		UniqueClientID: *uniqueID,
		Username:       *username,
		Password:       *password,
		CAFile:         *caFile,
		CertFile:       *certFile,
		KeyFile:        *keyFile,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loadgen.NewLoadGenerator(factory, devices, *seed, logger).Run(ctx, *duration); err != nil {
		logger.Fatal().Err(err).Msg("Simulator failed")
	}
}
