// Package loadgen simulates home sensor nodes publishing telemetry over MQTT.
package loadgen

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"

	onConnectPublishTimeout = 10 * time.Second
)

// LoadGenerator runs every device on its own connection.
type LoadGenerator struct {
	newClient ClientFactory
	devices   []*Device
	seed      int64
	logger    zerolog.Logger
}

// NewLoadGenerator creates a new LoadGenerator. Each device draws values from
// its own source seeded from seed.
func NewLoadGenerator(newClient ClientFactory, devices []*Device, seed int64, logger zerolog.Logger) *LoadGenerator {
	return &LoadGenerator{
		newClient: newClient,
		devices:   devices,
		seed:      seed,
		logger:    logger.With().Str("component", "LoadGenerator").Logger(),
	}
}

// Run publishes until ctx is done, or for duration when it is positive.
// It returns the first connection error.
func (lg *LoadGenerator) Run(ctx context.Context, duration time.Duration) error {
	lg.logger.Info().Int("num_devices", len(lg.devices)).Dur("duration", duration).Msg("Starting load generator")
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, device := range lg.devices {
		gen, err := NewPayloadGenerator(device, lg.seed+int64(i))
		if err != nil {
			return err
		}
		g.Go(func() error {
			return lg.runDevice(gctx, device, gen)
		})
	}
	err := g.Wait()
	lg.logger.Info().Msg("Load generator finished")
	return err
}

func (lg *LoadGenerator) runDevice(ctx context.Context, device *Device, gen *PayloadGenerator) error {
	log := lg.logger.With().Str("device_id", device.DeviceID()).Logger()
	client := lg.newClient(device)

	var announce sync.Once
	onConnect := func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), onConnectPublishTimeout)
		defer cancel()
		if err := client.Publish(pubCtx, gen.Status(statusOnline)); err != nil {
			log.Error().Err(err).Msg("Failed to publish online status")
		}
		announce.Do(func() {
			if err := client.Publish(pubCtx, gen.Announcement()); err != nil {
				log.Error().Err(err).Msg("Failed to publish device announcement")
				return
			}
			log.Info().Str("topic", AllDevicesTopic).Msg("Published device announcement")
		})
	}

	if err := client.Connect(ctx, gen.Status(statusOffline), onConnect); err != nil {
		log.Error().Err(err).Msg("Failed to connect client")
		return err
	}
	defer client.Disconnect()

	ticker := time.NewTicker(device.Interval)
	defer ticker.Stop()
	log.Info().Str("sensor", device.Sensor).Str("location", device.Location).Dur("interval", device.Interval).Msg("Device starting")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Device stopping")
			return nil
		case <-ticker.C:
			msg, err := gen.Telemetry()
			if err != nil {
				log.Error().Err(err).Msg("Failed to generate telemetry")
				continue
			}
			if err := client.Publish(ctx, msg); err != nil {
				log.Error().Err(err).Str("topic", msg.Topic).Msg("Failed to publish telemetry")
				continue
			}
			log.Debug().Str("topic", msg.Topic).RawJSON("payload", msg.Payload).Msg("Telemetry published")
		}
	}
}
