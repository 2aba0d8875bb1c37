package clickhouse

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the connection settings of the optional score archive.
type Config struct {
	Hosts    []string `env:"CLICKHOUSE_HOSTS" envSeparator:"," envDefault:"localhost:9000"`
	Database string   `env:"CLICKHOUSE_DATABASE" envDefault:"default"`
	Username string   `env:"CLICKHOUSE_USERNAME" envDefault:"default"`
	Password string   `env:"CLICKHOUSE_PASSWORD" envDefault:""`
	Debug    bool     `env:"CLICKHOUSE_DEBUG" envDefault:"false"`

	TLS                bool `env:"CLICKHOUSE_TLS" envDefault:"false"`
	InsecureSkipVerify bool `env:"CLICKHOUSE_INSECURE_SKIP_VERIFY" envDefault:"false"`

	DialTimeout      time.Duration `env:"CLICKHOUSE_DIAL_TIMEOUT" envDefault:"10s"`
	MaxExecutionTime time.Duration `env:"CLICKHOUSE_MAX_EXECUTION_TIME" envDefault:"60s"`
	MaxOpenConns     int           `env:"CLICKHOUSE_MAX_OPEN_CONNS" envDefault:"4"`
	MaxIdleConns     int           `env:"CLICKHOUSE_MAX_IDLE_CONNS" envDefault:"2"`
	ConnMaxLifetime  time.Duration `env:"CLICKHOUSE_CONN_MAX_LIFETIME" envDefault:"10m"`
	MaxBlockSize     int           `env:"CLICKHOUSE_MAX_BLOCK_SIZE" envDefault:"1000"`
	// AsyncInsert lets the server batch the archive's single-row inserts.
	AsyncInsert bool `env:"CLICKHOUSE_ASYNC_INSERT" envDefault:"true"`

	ClientName    string `env:"CLICKHOUSE_CLIENT_NAME" envDefault:"leaderboard-indexer"`
	ClientVersion string `env:"CLICKHOUSE_CLIENT_VERSION" envDefault:"1.0"`

	// ScoreTable is the archive table name inside Database.
	ScoreTable string `env:"CLICKHOUSE_SCORE_TABLE" envDefault:"score_events"`
}

// Load reads the archive configuration from CLICKHOUSE_* variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse clickhouse config: %w", err)
	}
	return cfg, nil
}
