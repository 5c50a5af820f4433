package loadgen

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MqttClientConfig holds the broker connection settings shared by all devices.
type MqttClientConfig struct {
	BrokerURL string
	QoS       byte
	// UniqueClientID appends a random suffix to the device id so several
	// simulators can run the same device list.
	UniqueClientID bool
	Username       string
	Password       string
	// TLS is enabled when CAFile is set. CertFile and KeyFile enable mutual TLS.
	CAFile   string
	CertFile string
	KeyFile  string
}

// MqttClient implements Client for one device with paho.
type MqttClient struct {
	client   mqtt.Client
	cfg      MqttClientConfig
	clientID string
	logger   zerolog.Logger
}

// NewMqttClientFactory returns a ClientFactory producing paho clients.
func NewMqttClientFactory(cfg MqttClientConfig, logger zerolog.Logger) ClientFactory {
	return func(device *Device) Client {
		return NewMqttClient(cfg, device, logger)
	}
}

func NewMqttClient(cfg MqttClientConfig, device *Device, logger zerolog.Logger) *MqttClient {
	clientID := device.DeviceID()
	if cfg.UniqueClientID {
		clientID = fmt.Sprintf("%s-%s", clientID, uuid.New().String())
	}
	return &MqttClient{
		cfg:      cfg,
		clientID: clientID,
		logger:   logger.With().Str("component", "MqttClient").Str("client_id", clientID).Logger(),
	}
}

// Connect establishes a connection to the MQTT broker.
func (c *MqttClient) Connect(ctx context.Context, will Message, onConnect func()) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.clientID).
		SetConnectTimeout(10*time.Second).
		SetKeepAlive(60*time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(will.Topic, will.Payload, c.cfg.QoS, will.Retained).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			c.logger.Error().Err(err).Msg("MQTT Connection lost")
		}).
		SetOnConnectHandler(func(client mqtt.Client) {
			c.logger.Info().Str("broker", c.cfg.BrokerURL).Msg("Successfully connected to MQTT broker")
			if onConnect != nil {
				onConnect()
			}
		})
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username).SetPassword(c.cfg.Password)
	}
	if c.cfg.CAFile != "" {
		tlsCfg, err := newTLSConfig(c.cfg.CAFile, c.cfg.CertFile, c.cfg.KeyFile)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while connecting to %s: %w", c.cfg.BrokerURL, ctx.Err())
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.BrokerURL, token.Error())
	}
	return nil
}

// Disconnect closes the connection. The broker does not publish the will on
// a clean disconnect.
func (c *MqttClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
		c.logger.Info().Msg("MQTT client disconnected")
	}
}

func (c *MqttClient) Publish(ctx context.Context, msg Message) error {
	if c.client == nil {
		return errors.New("mqtt client is not connected")
	}
	token := c.client.Publish(msg.Topic, c.cfg.QoS, msg.Retained, msg.Payload)
	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("mqtt publish error on %s: %w", msg.Topic, token.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while publishing on %s: %w", msg.Topic, ctx.Err())
	}
}

func newTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	cfg := &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
