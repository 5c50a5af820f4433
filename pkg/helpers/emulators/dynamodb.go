package emulators

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDynamoDBImage = "amazon/dynamodb-local:2.5.2"
	testDynamoDBPort  = "8000"
	testDynamoRegion  = "us-east-1"
)

type DynamoDBConfig struct {
	ImageContainer
	// Tables are created with a deviceId (S) hash key and timestamp (N) range key.
	Tables []string
}

func GetDefaultDynamoDBConfig(tables ...string) DynamoDBConfig {
	return DynamoDBConfig{
		ImageContainer: ImageContainer{
			EmulatorImage:    testDynamoDBImage,
			EmulatorHTTPPort: testDynamoDBPort,
		},
		Tables: tables,
	}
}

// SetupDynamoDBEmulator starts DynamoDB Local, creates the configured tables
// and returns a client pointed at it. The endpoint is also exported as
// DYNAMO_ENDPOINT for code that loads its config from the environment.
func SetupDynamoDBEmulator(t *testing.T, ctx context.Context, cfg DynamoDBConfig) (*dynamodb.Client, string) {
	t.Helper()
	port := fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort)
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{port},
		Cmd:          []string{"-jar", "DynamoDBLocal.jar", "-inMemory", "-sharedDb"},
		WaitingFor:   wait.ForListeningPort(nat.Port(port)).WithStartupTimeout(60 * time.Second),
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
	endpoint := fmt.Sprintf("http://%s:%s", host, mapped.Port())

	t.Setenv("DYNAMO_ENDPOINT", endpoint)
	t.Setenv("AWS_REGION", testDynamoRegion)
	t.Setenv("AWS_ACCESS_KEY_ID", "local")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "local")

	client := dynamodb.New(dynamodb.Options{
		Region:       testDynamoRegion,
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
	})

	for _, table := range cfg.Tables {
		_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(table),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("deviceId"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("timestamp"), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("deviceId"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("timestamp"), KeyType: types.KeyTypeRange},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		require.NoError(t, err, "failed to create table %s", table)
	}

	t.Logf("DynamoDB Local started, listening on: %s", endpoint)
	return client, endpoint
}
