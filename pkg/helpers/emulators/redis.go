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
	testRedisImage = "redis:7-alpine"
	testRedisPort  = "6379"
)

func GetDefaultRedisImageContainer() ImageContainer {
	return ImageContainer{
		EmulatorImage:    testRedisImage,
		EmulatorHTTPPort: testRedisPort,
	}
}

// SetupRedisContainer starts Redis and terminates it when the test ends.
func SetupRedisContainer(t *testing.T, ctx context.Context, cfg ImageContainer) EmulatorConnection {
	t.Helper()
	port := fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort)
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{port},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
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

	address := fmt.Sprintf("%s:%s", host, mapped.Port())
	t.Logf("Redis container started, listening on: %s", address)
	return EmulatorConnection{EmulatorAddress: address}
}
