// Package mqttbridge forwards home broker traffic to the Pub/Sub topic the
// ingestion service consumes.
package mqttbridge

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BridgeServiceConfig sizes the hand-off between the MQTT callback and the
// publishing workers.
type BridgeServiceConfig struct {
	InputChanCapacity    int
	NumProcessingWorkers int
}

func DefaultBridgeServiceConfig() BridgeServiceConfig {
	return BridgeServiceConfig{
		InputChanCapacity:    5000,
		NumProcessingWorkers: 20,
	}
}

// InMessage is one message received from the broker.
type InMessage struct {
	Payload   []byte
	Topic     string
	MessageID string
	Timestamp time.Time
	Duplicate bool
}

// BridgeService subscribes to the broker and republishes every payload
// unchanged with attributes derived from its topic.
type BridgeService struct {
	mqttClientConfig MQTTClientConfig
	pahoClient       mqtt.Client
	publisher        MessagePublisher

	config BridgeServiceConfig
	logger zerolog.Logger

	MessagesChan chan InMessage
	ErrorChan    chan error

	cancelCtx  context.Context
	cancelFunc context.CancelFunc

	wg                    sync.WaitGroup
	closeErrorChanOnce    sync.Once
	closeMessagesChanOnce sync.Once
	isShuttingDown        atomic.Bool
}

// NewBridgeService creates a service. An empty BrokerURL starts the workers
// without connecting, which lets tests feed MessagesChan directly.
func NewBridgeService(
	publisher MessagePublisher,
	logger zerolog.Logger,
	serviceCfg BridgeServiceConfig,
	mqttCfg MQTTClientConfig,
) *BridgeService {
	logger = logger.With().Str("component", "BridgeService").Logger()
	defaults := DefaultBridgeServiceConfig()
	if serviceCfg.NumProcessingWorkers <= 0 {
		logger.Warn().Int("provided_workers", serviceCfg.NumProcessingWorkers).Int("default_workers", defaults.NumProcessingWorkers).Msg("NumProcessingWorkers was zero or negative, applying default value.")
		serviceCfg.NumProcessingWorkers = defaults.NumProcessingWorkers
	}
	if serviceCfg.InputChanCapacity <= 0 {
		logger.Warn().Int("provided_capacity", serviceCfg.InputChanCapacity).Int("default_capacity", defaults.InputChanCapacity).Msg("InputChanCapacity was zero or negative, applying default value.")
		serviceCfg.InputChanCapacity = defaults.InputChanCapacity
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &BridgeService{
		config:           serviceCfg,
		mqttClientConfig: mqttCfg,
		publisher:        publisher,
		logger:           logger,
		cancelCtx:        ctx,
		cancelFunc:       cancel,
		MessagesChan:     make(chan InMessage, serviceCfg.InputChanCapacity),
		ErrorChan:        make(chan error, serviceCfg.InputChanCapacity),
	}
}

// Err returns non-fatal publish and subscribe errors.
func (s *BridgeService) Err() <-chan error {
	return s.ErrorChan
}

// handleIncomingPahoMessage queues a copy of the message for the workers.
func (s *BridgeService) handleIncomingPahoMessage(_ mqtt.Client, msg mqtt.Message) {
	// Sending on MessagesChan can race with Stop closing it.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().Interface("panic", r).Str("topic", msg.Topic()).Msg("Recovered from panic in message handler during shutdown.")
		}
	}()

	if s.isShuttingDown.Load() {
		s.logger.Warn().Str("topic", msg.Topic()).Msg("Shutdown in progress, MQTT message dropped.")
		return
	}

	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	s.MessagesChan <- InMessage{
		Payload:   payload,
		Topic:     msg.Topic(),
		Duplicate: msg.Duplicate(),
		MessageID: fmt.Sprintf("%d", msg.MessageID()),
		Timestamp: time.Now().UTC(),
	}
}

func (s *BridgeService) processSingleMessage(ctx context.Context, msg InMessage, workerID int) {
	attributes := TopicAttributes(msg.Topic)
	if err := s.publisher.Publish(ctx, msg.Payload, attributes); err != nil {
		s.logger.Error().Int("worker_id", workerID).Str("topic", msg.Topic).Err(err).Msg("Failed to forward message")
		s.sendError(err)
		return
	}
	s.logger.Debug().Int("worker_id", workerID).Str("topic", msg.Topic).Msg("Message forwarded")
}

func (s *BridgeService) sendError(err error) {
	select {
	case s.ErrorChan <- err:
	default:
		s.logger.Warn().Err(err).Msg("ErrorChan is full, dropping error")
	}
}

// Start launches the workers and connects to the broker.
func (s *BridgeService) Start() error {
	s.logger.Info().Int("workers", s.config.NumProcessingWorkers).Int("channel_capacity", s.config.InputChanCapacity).Msg("Starting BridgeService...")

	for i := 0; i < s.config.NumProcessingWorkers; i++ {
		s.wg.Add(1)
		go func(workerID int) {
			defer s.wg.Done()
			for message := range s.MessagesChan {
				s.processSingleMessage(s.cancelCtx, message, workerID)
			}
		}(i)
	}

	if s.mqttClientConfig.BrokerURL == "" {
		s.logger.Info().Msg("BridgeService started without MQTT client (broker URL is empty).")
		return nil
	}
	if err := s.initAndConnectMQTTClient(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to connect MQTT client during Start.")
		s.Stop()
		return err
	}
	s.logger.Info().Msg("BridgeService started successfully.")
	return nil
}

// Stop disconnects from the broker, drains queued messages and stops the
// publisher.
func (s *BridgeService) Stop() {
	s.logger.Info().Msg("Stopping BridgeService...")
	s.isShuttingDown.Store(true)

	if s.pahoClient != nil && s.pahoClient.IsConnected() {
		if token := s.pahoClient.Unsubscribe(s.mqttClientConfig.Topic); token.WaitTimeout(2*time.Second) && token.Error() != nil {
			s.logger.Warn().Err(token.Error()).Msg("Failed to unsubscribe during shutdown.")
		}
		s.pahoClient.Disconnect(500)
	}

	s.closeMessagesChanOnce.Do(func() {
		close(s.MessagesChan)
	})
	s.wg.Wait()
	s.cancelFunc()

	if s.publisher != nil {
		s.publisher.Stop()
	}
	s.closeErrorChanOnce.Do(func() {
		close(s.ErrorChan)
	})
	s.logger.Info().Msg("BridgeService stopped.")
}

// onPahoConnect (re)subscribes after every connection.
func (s *BridgeService) onPahoConnect(client mqtt.Client) {
	topic := s.mqttClientConfig.Topic
	s.logger.Info().Str("broker", s.mqttClientConfig.BrokerURL).Str("topic", topic).Msg("Connected to MQTT broker, subscribing")
	if token := client.Subscribe(topic, 1, s.handleIncomingPahoMessage); token.Wait() && token.Error() != nil {
		s.logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		s.sendError(fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error()))
	}
}

func (s *BridgeService) onPahoConnectionLost(_ mqtt.Client, err error) {
	s.logger.Error().Err(err).Msg("Lost MQTT connection. Auto-reconnect will be attempted.")
}

func newTLSConfig(cfg *MQTTClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file %s: %w", cfg.CACertFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA certificate from %s to pool", cfg.CACertFile)
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func (s *BridgeService) initAndConnectMQTTClient() error {
	cfg := s.mqttClientConfig
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 10 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientIDPrefix + uuid.New().String()[:8]).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetOnConnectHandler(s.onPahoConnect).
		SetConnectionLostHandler(s.onPahoConnectionLost)
	if cfg.ReconnectWaitMax > 0 {
		opts.SetMaxReconnectInterval(cfg.ReconnectWaitMax)
	}

	broker := strings.ToLower(cfg.BrokerURL)
	if strings.HasPrefix(broker, "tls://") || strings.HasPrefix(broker, "ssl://") {
		tlsConfig, err := newTLSConfig(&cfg)
		if err != nil {
			return fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	s.pahoClient = mqtt.NewClient(opts)
	if token := s.pahoClient.Connect(); token.WaitTimeout(cfg.ConnectTimeout) && token.Error() != nil {
		return fmt.Errorf("paho MQTT client connect error: %w", token.Error())
	}
	if !s.pahoClient.IsConnected() {
		return fmt.Errorf("timed out connecting to %s", cfg.BrokerURL)
	}
	return nil
}
