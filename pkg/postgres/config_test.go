package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.URL, "localhost:5432")
	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, 30*time.Minute, cfg.MaxConnLifetime)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "leaderboard", cfg.Table("leaderboard"))
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5433/game")
	t.Setenv("POSTGRES_MAX_CONNS", "3")
	t.Setenv("POSTGRES_CONNECT_TIMEOUT", "2s")
	t.Setenv("POSTGRES_TABLE_PREFIX", "testnet_")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5433/game", cfg.URL)
	assert.Equal(t, int32(3), cfg.MaxConns)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "testnet_sync_state", cfg.Table("sync_state"))
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("POSTGRES_MAX_CONNS", "many")

	_, err := Load()
	require.ErrorContains(t, err, "failed to parse postgres config")
}
