package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Client is the part of a ClickHouse connection the score archive uses.
type Client interface {
	Exec(ctx context.Context, query string, args ...any) error
	QueryRow(ctx context.Context, query string, args ...any) driver.Row
	Ping(ctx context.Context) error
	Close() error
}

const (
	settingMaxExecutionTime   = "max_execution_time"
	settingMaxBlockSize       = "max_block_size"
	settingAsyncInsert        = "async_insert"
	settingWaitForAsyncInsert = "wait_for_async_insert"
)

type client struct {
	conn driver.Conn
}

// New opens the archive connection and pings it, giving up after cfg.DialTimeout.
func New(ctx context.Context, cfg Config, log *zap.SugaredLogger) (Client, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	conn, err := clickhouse.Open(options(cfg, log))
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		var exception *clickhouse.Exception
		if errors.As(err, &exception) {
			return nil, fmt.Errorf("failed to ping ClickHouse (code %d): %w", exception.Code, err)
		}
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Infow("connected to ClickHouse",
		"hosts", cfg.Hosts,
		"database", cfg.Database,
		"asyncInsert", cfg.AsyncInsert,
		"tls", cfg.TLS,
	)
	return &client{conn: conn}, nil
}

// options maps Config onto driver options. Score events arrive one row at a time, so with
// AsyncInsert the server buffers them into parts instead of creating a part per insert.
func options(cfg Config, log *zap.SugaredLogger) *clickhouse.Options {
	settings := clickhouse.Settings{
		settingMaxExecutionTime: int(cfg.MaxExecutionTime.Seconds()),
		settingMaxBlockSize:     cfg.MaxBlockSize,
	}
	if cfg.AsyncInsert {
		settings[settingAsyncInsert] = 1
		settings[settingWaitForAsyncInsert] = 1
	}

	opts := &clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings:        settings,
		Compression:     &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: cfg.ClientName, Version: cfg.ClientVersion},
			},
		},
	}
	if cfg.TLS {
		opts.TLS = &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed dev clusters
		}
	}
	if cfg.Debug {
		opts.Debugf = log.Debugf
	}
	return opts
}

func (c *client) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *client) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	return c.conn.QueryRow(ctx, query, args...)
}

func (c *client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *client) Close() error {
	return c.conn.Close()
}
