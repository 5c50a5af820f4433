package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/illmade-knight/telemetry-fanout/pkg/types"
)

// GooglePubsubConsumerConfig holds configuration for the Pub/Sub consumer.
type GooglePubsubConsumerConfig struct {
	ProjectID              string
	SubscriptionID         string
	CredentialsFile        string // Optional
	MaxOutstandingMessages int
	NumGoroutines          int
}

// LoadGooglePubsubConsumerConfigFromEnv loads consumer configuration from environment variables.
func LoadGooglePubsubConsumerConfigFromEnv() (*GooglePubsubConsumerConfig, error) {
	cfg := &GooglePubsubConsumerConfig{
		ProjectID:              os.Getenv("GCP_PROJECT_ID"),
		SubscriptionID:         os.Getenv("PUBSUB_SUBSCRIPTION_ID_TELEMETRY_INPUT"),
		CredentialsFile:        os.Getenv("GCP_PUBSUB_CREDENTIALS_FILE"),
		MaxOutstandingMessages: 100,
		NumGoroutines:          5,
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("GCP_PROJECT_ID environment variable not set for Pub/Sub consumer")
	}
	if cfg.SubscriptionID == "" {
		return nil, errors.New("PUBSUB_SUBSCRIPTION_ID_TELEMETRY_INPUT environment variable not set for Pub/Sub consumer")
	}
	return cfg, nil
}

// GooglePubsubConsumer delivers Pub/Sub messages as envelopes.
type GooglePubsubConsumer struct {
	client             *pubsub.Client
	subscription       *pubsub.Subscription
	logger             zerolog.Logger
	outputChan         chan types.Envelope
	stopOnce           sync.Once
	cancelSubscription context.CancelFunc
	wg                 sync.WaitGroup
	doneChan           chan struct{}
}

// NewGooglePubsubConsumer creates a consumer for an existing subscription.
// opts are passed to the Pub/Sub client; the emulator host and credentials
// file from the environment are applied when opts is empty.
func NewGooglePubsubConsumer(ctx context.Context, cfg *GooglePubsubConsumerConfig, opts []option.ClientOption, logger zerolog.Logger) (*GooglePubsubConsumer, error) {
	if len(opts) == 0 {
		if emulatorHost := os.Getenv("PUBSUB_EMULATOR_HOST"); emulatorHost != "" {
			logger.Info().Str("emulator_host", emulatorHost).Str("subscription_id", cfg.SubscriptionID).Msg("Using Pub/Sub emulator for consumer.")
			opts = append(opts, option.WithEndpoint(emulatorHost), option.WithoutAuthentication())
		} else if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient for subscription %s: %w", cfg.SubscriptionID, err)
	}
	sub := client.Subscription(cfg.SubscriptionID)

	exists, err := sub.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("subscription.Exists check for %s: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		client.Close()
		return nil, fmt.Errorf("pubsub subscription %s does not exist in project %s", cfg.SubscriptionID, cfg.ProjectID)
	}

	maxOutstanding := cfg.MaxOutstandingMessages
	if maxOutstanding <= 0 {
		maxOutstanding = 100
	}
	sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	if cfg.NumGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines
	}

	logger.Info().Str("subscription_id", cfg.SubscriptionID).Msg("Listening for messages")

	return &GooglePubsubConsumer{
		client:       client,
		subscription: sub,
		logger:       logger.With().Str("component", "GooglePubsubConsumer").Str("subscription_id", cfg.SubscriptionID).Logger(),
		outputChan:   make(chan types.Envelope, maxOutstanding),
		doneChan:     make(chan struct{}),
	}, nil
}

func (c *GooglePubsubConsumer) Messages() <-chan types.Envelope { return c.outputChan }

func (c *GooglePubsubConsumer) Start(ctx context.Context) error {
	c.logger.Info().Msg("Starting Pub/Sub message consumption...")
	receiveCtx, cancel := context.WithCancel(ctx)
	c.cancelSubscription = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(c.doneChan)
		defer close(c.outputChan)
		err := c.subscription.Receive(receiveCtx, func(ctx context.Context, msg *pubsub.Message) {
			body := make([]byte, len(msg.Data))
			copy(body, msg.Data)

			env := types.Envelope{
				ID:          msg.ID,
				Body:        body,
				PublishTime: msg.PublishTime,
				Ack:         msg.Ack,
				Nack:        msg.Nack,
			}

			select {
			case c.outputChan <- env:
			case <-receiveCtx.Done():
				msg.Nack()
				c.logger.Warn().Str("msg_id", msg.ID).Msg("Consumer stopping, Nacking message.")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		}
		c.logger.Info().Msg("Pub/Sub Receive goroutine stopped.")
	}()
	return nil
}

func (c *GooglePubsubConsumer) Stop() error {
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping Pub/Sub consumer...")
		if c.cancelSubscription != nil {
			c.cancelSubscription()
			select {
			case <-c.Done():
				c.logger.Info().Msg("Pub/Sub Receive goroutine confirmed stopped.")
			case <-time.After(30 * time.Second):
				c.logger.Error().Msg("Timeout waiting for Pub/Sub Receive goroutine to stop.")
			}
		} else {
			close(c.outputChan)
			close(c.doneChan)
		}
		if err := c.client.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Error closing Pub/Sub client")
		}
	})
	return nil
}

func (c *GooglePubsubConsumer) Done() <-chan struct{} { return c.doneChan }
