package mqttbridge

import (
	"errors"
	"os"
	"strconv"
	"time"
)

const defaultTopic = "myhome/#"

// MQTTClientConfig holds the broker connection settings.
type MQTTClientConfig struct {
	BrokerURL      string
	Topic          string
	ClientIDPrefix string
	Username       string
	Password       string

	KeepAlive        time.Duration
	ConnectTimeout   time.Duration
	ReconnectWaitMax time.Duration

	// TLS is used for tls:// and ssl:// broker URLs.
	CACertFile         string
	ClientCertFile     string
	ClientKeyFile      string
	InsecureSkipVerify bool
}

// LoadMQTTClientConfigFromEnv reads the MQTT_* variables. MQTT_BROKER_URL is
// required; MQTT_TOPIC defaults to every home topic.
func LoadMQTTClientConfigFromEnv() (*MQTTClientConfig, error) {
	cfg := &MQTTClientConfig{
		BrokerURL:        os.Getenv("MQTT_BROKER_URL"),
		Topic:            os.Getenv("MQTT_TOPIC"),
		ClientIDPrefix:   os.Getenv("MQTT_CLIENT_ID_PREFIX"),
		Username:         os.Getenv("MQTT_USERNAME"),
		Password:         os.Getenv("MQTT_PASSWORD"),
		KeepAlive:        10 * time.Second,
		ConnectTimeout:   5 * time.Second,
		ReconnectWaitMax: time.Minute,
		CACertFile:       os.Getenv("MQTT_CA_CERT_FILE"),
		ClientCertFile:   os.Getenv("MQTT_CLIENT_CERT_FILE"),
		ClientKeyFile:    os.Getenv("MQTT_CLIENT_KEY_FILE"),
	}
	if cfg.BrokerURL == "" {
		return nil, errors.New("MQTT_BROKER_URL environment variable not set")
	}
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}
	if cfg.ClientIDPrefix == "" {
		cfg.ClientIDPrefix = "telemetry-bridge-"
	}
	if skip, err := strconv.ParseBool(os.Getenv("MQTT_INSECURE_SKIP_VERIFY")); err == nil {
		cfg.InsecureSkipVerify = skip
	}
	if d, err := time.ParseDuration(os.Getenv("MQTT_KEEP_ALIVE")); err == nil && d > 0 {
		cfg.KeepAlive = d
	}
	if d, err := time.ParseDuration(os.Getenv("MQTT_CONNECT_TIMEOUT")); err == nil && d > 0 {
		cfg.ConnectTimeout = d
	}
	return cfg, nil
}
