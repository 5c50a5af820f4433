package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// MessagePublisher forwards a raw payload with its attributes.
type MessagePublisher interface {
	Publish(ctx context.Context, payload []byte, attributes map[string]string) error
	Stop()
}

// GooglePubsubPublisherConfig holds configuration for the Pub/Sub publisher.
type GooglePubsubPublisherConfig struct {
	ProjectID       string
	TopicID         string
	ClientOptions   []option.ClientOption
	PublishSettings pubsub.PublishSettings
}

func GetDefaultPublishSettings() pubsub.PublishSettings {
	return pubsub.PublishSettings{
		DelayThreshold: 100 * time.Millisecond,
		CountThreshold: 100,
		ByteThreshold:  1e6,
		NumGoroutines:  10,
		Timeout:        60 * time.Second,
	}
}

// LoadGooglePubsubPublisherConfigFromEnv reads GCP_PROJECT_ID and
// PUBSUB_TOPIC_ID_TELEMETRY_INPUT.
func LoadGooglePubsubPublisherConfigFromEnv() (*GooglePubsubPublisherConfig, error) {
	cfg := &GooglePubsubPublisherConfig{
		ProjectID:       os.Getenv("GCP_PROJECT_ID"),
		TopicID:         os.Getenv("PUBSUB_TOPIC_ID_TELEMETRY_INPUT"),
		PublishSettings: GetDefaultPublishSettings(),
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("GCP_PROJECT_ID environment variable not set for Pub/Sub")
	}
	if cfg.TopicID == "" {
		return nil, errors.New("PUBSUB_TOPIC_ID_TELEMETRY_INPUT environment variable not set for Pub/Sub")
	}
	if credentialsFile := os.Getenv("GCP_PUBSUB_CREDENTIALS_FILE"); credentialsFile != "" {
		cfg.ClientOptions = []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
	}
	return cfg, nil
}

// GooglePubsubPublisher implements MessagePublisher for Google Cloud Pub/Sub.
type GooglePubsubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger zerolog.Logger
}

// NewGooglePubsubPublisher creates a publisher for an existing topic.
func NewGooglePubsubPublisher(ctx context.Context, cfg GooglePubsubPublisherConfig, logger zerolog.Logger) (*GooglePubsubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		client.Close()
		return nil, fmt.Errorf("pubsub topic %s does not exist in project %s", cfg.TopicID, cfg.ProjectID)
	}
	topic.PublishSettings.DelayThreshold = cfg.PublishSettings.DelayThreshold
	topic.PublishSettings.CountThreshold = cfg.PublishSettings.CountThreshold
	topic.PublishSettings.ByteThreshold = cfg.PublishSettings.ByteThreshold
	topic.PublishSettings.NumGoroutines = cfg.PublishSettings.NumGoroutines
	topic.PublishSettings.Timeout = cfg.PublishSettings.Timeout

	logger = logger.With().Str("component", "GooglePubsubPublisher").Str("topic_id", cfg.TopicID).Logger()
	logger.Info().Str("project_id", cfg.ProjectID).Msg("GooglePubsubPublisher initialized successfully")
	return &GooglePubsubPublisher{client: client, topic: topic, logger: logger}, nil
}

// Publish hands the payload to the topic's batcher and returns immediately.
// The result is logged when it arrives.
func (p *GooglePubsubPublisher) Publish(ctx context.Context, payload []byte, attributes map[string]string) error {
	if payload == nil {
		return errors.New("cannot publish a nil payload")
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: payload, Attributes: attributes})

	go func() {
		msgID, err := result.Get(context.Background())
		if err != nil {
			p.logger.Error().Err(err).Interface("attributes", attributes).Msg("Failed to publish message to Pub/Sub")
			return
		}
		p.logger.Debug().Str("message_id", msgID).Msg("Message published to Pub/Sub")
	}()
	return nil
}

// Stop flushes pending messages and closes the Pub/Sub client.
func (p *GooglePubsubPublisher) Stop() {
	p.logger.Info().Msg("Stopping GooglePubsubPublisher...")
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			p.logger.Error().Err(err).Msg("Error closing Pub/Sub client")
		}
	}
}
