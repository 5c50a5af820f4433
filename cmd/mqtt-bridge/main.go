// Command mqtt-bridge forwards every home sensor message from the local MQTT
// broker to the Pub/Sub topic read by ingest-pubsub.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/illmade-knight/telemetry-fanout/pkg/helpers/logging"
	"github.com/illmade-knight/telemetry-fanout/pkg/mqttbridge"
)

func main() {
	logger := logging.New("mqtt-bridge")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mqttCfg, err := mqttbridge.LoadMQTTClientConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load MQTT configuration")
	}
	pubsubCfg, err := mqttbridge.LoadGooglePubsubPublisherConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load Pub/Sub configuration")
	}

	publisher, err := mqttbridge.NewGooglePubsubPublisher(ctx, *pubsubCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Pub/Sub publisher")
	}

	service := mqttbridge.NewBridgeService(publisher, logger, mqttbridge.DefaultBridgeServiceConfig(), *mqttCfg)
	if err := service.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start bridge")
	}

	go func() {
		for err := range service.Err() {
			logger.Warn().Err(err).Msg("Bridge error")
		}
	}()

	<-ctx.Done()
	service.Stop()
}
