package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DB is the query surface shared by the pool and a single acquired connection.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn is a connection held outside the pool until Release is called.
type Conn interface {
	DB
	Release()
}

// Client wraps the Postgres connection pool
type Client interface {
	// DB returns the pool as a query surface
	DB() DB
	// Acquire takes a dedicated connection from the pool, used for session-scoped locks
	Acquire(ctx context.Context) (Conn, error)
	// Ping checks the connection to Postgres
	Ping(ctx context.Context) error
	// Close closes every pooled connection
	Close()
}

const defaultPingTimeout = 10 * time.Second

type client struct {
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

// New opens a pool and pings it. If the ping fails the pool is closed and the error returned.
func New(ctx context.Context, cfg Config, sugar *zap.SugaredLogger) (Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		if sugar != nil {
			sugar.Errorw("failed to ping postgres", "host", poolCfg.ConnConfig.Host, "error", err)
		}
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &client{pool: pool, logger: sugar}, nil
}

func (c *client) DB() DB {
	return c.pool
}

func (c *client) Acquire(ctx context.Context) (Conn, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire postgres connection: %w", err)
	}
	return conn, nil
}

func (c *client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *client) Close() {
	c.pool.Close()
}
