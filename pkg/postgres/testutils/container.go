//go:build integration
// +build integration

package testutils

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/postgres"
)

const (
	postgresImage  = "postgres:16-alpine"
	startupTimeout = 60 * time.Second
)

// StartPostgres runs a throwaway Postgres container and returns a connected client. Both are
// cleaned up when the test ends.
func StartPostgres(t *testing.T) postgres.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "leaderboard",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(startupTimeout),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	client, err := postgres.New(ctx, postgres.Config{
		URL:            fmt.Sprintf("postgres://postgres:postgres@%s:%s/leaderboard?sslmode=disable", host, port.Port()),
		MaxConns:       4,
		ConnectTimeout: 10 * time.Second,
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}
