package emulators

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testMosquittoImage = "eclipse-mosquitto:2.0"
	testMosquittoPort  = "1883"
)

func GetDefaultMqttImageContainer() ImageContainer {
	return ImageContainer{
		EmulatorImage:    testMosquittoImage,
		EmulatorHTTPPort: testMosquittoPort,
	}
}

// SetupMosquittoContainer starts a broker accepting anonymous connections and
// returns its tcp:// URL.
func SetupMosquittoContainer(t *testing.T, ctx context.Context, cfg ImageContainer) EmulatorConnection {
	t.Helper()
	port := fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort)
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{port},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort(nat.Port(port)).WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)

	address := fmt.Sprintf("tcp://%s:%s", host, mapped.Port())
	t.Logf("Mosquitto container started, listening on: %s", address)
	return EmulatorConnection{EmulatorAddress: address}
}
