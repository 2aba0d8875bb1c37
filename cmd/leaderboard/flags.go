package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/api"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/faucet"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/syncer"
)

// globalFlags are accepted by every command.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "env-file",
			Usage:   "Load environment variables from this file before reading flags",
			EnvVars: []string{"ENV_FILE"},
		},
	}
}

// syncFlags returns the flags shared by every command that touches the chain or the stores.
func syncFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
		},
		&cli.StringFlag{
			Name:     "rpc-url",
			Aliases:  []string{"r"},
			Usage:    "The HTTP or websocket JSON-RPC URL of the testnet node",
			EnvVars:  []string{"RPC_URL"},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "contract-address",
			Aliases:  []string{"a"},
			Usage:    "The game contract emitting ScoreSubmitted",
			EnvVars:  []string{"CONTRACT_ADDRESS"},
			Required: true,
		},
		&cli.Uint64Flag{
			Name:    "chain-id",
			Aliases: []string{"C"},
			Usage:   "The EVM chain ID, used as a metrics label and archive column",
			EnvVars: []string{"CHAIN_ID"},
		},
		&cli.Uint64Flag{
			Name:    "start-block",
			Aliases: []string{"s"},
			Usage:   "First block to scan when there is no checkpoint",
			EnvVars: []string{"START_BLOCK"},
		},
		&cli.Uint64Flag{
			Name:    "lookback-blocks",
			Usage:   "Without a checkpoint, start this many blocks behind the head (0 uses start-block)",
			EnvVars: []string{"LOOKBACK_BLOCKS"},
		},
		&cli.Uint64Flag{
			Name:    "chunk-size",
			Usage:   "Blocks per eth_getLogs request",
			EnvVars: []string{"CHUNK_SIZE"},
			Value:   syncer.DefaultChunkSize,
		},
		&cli.StringFlag{
			Name:    "checkpoint-mode",
			Usage:   "When to persist progress: chunk or pass",
			EnvVars: []string{"CHECKPOINT_MODE"},
			Value:   string(syncer.CheckpointPerChunk),
		},
		&cli.StringFlag{
			Name:    "on-chunk-error",
			Usage:   "What to do when a chunk cannot be fetched: skip or abort",
			EnvVars: []string{"ON_CHUNK_ERROR"},
			Value:   string(syncer.SkipChunk),
		},
		&cli.StringFlag{
			Name:    "checkpoint-id",
			Usage:   "Row key of the checkpoint, also the sync lease key",
			EnvVars: []string{"CHECKPOINT_ID"},
			Value:   syncer.DefaultCheckpointID,
		},
		&cli.IntFlag{
			Name:    "checkpoint-retries",
			Usage:   "Additional attempts for a failed checkpoint write",
			EnvVars: []string{"CHECKPOINT_RETRIES"},
		},
		&cli.DurationFlag{
			Name:    "checkpoint-write-timeout",
			Usage:   "Timeout of a single checkpoint write",
			EnvVars: []string{"CHECKPOINT_WRITE_TIMEOUT"},
			Value:   5 * time.Second,
		},
		&cli.StringFlag{
			Name:    "store",
			Usage:   "Leaderboard backend: postgres or memory",
			EnvVars: []string{"STORE"},
			Value:   storePostgres,
		},
		&cli.StringFlag{
			Name:    "leaderboard-table",
			Usage:   "Postgres leaderboard table",
			EnvVars: []string{"LEADERBOARD_TABLE"},
			Value:   "leaderboard",
		},
		&cli.StringFlag{
			Name:    "checkpoint-table",
			Usage:   "Postgres checkpoint table",
			EnvVars: []string{"CHECKPOINT_TABLE"},
			Value:   "sync_state",
		},
		&cli.StringFlag{
			Name:    "gaps-table",
			Usage:   "Postgres table of skipped block ranges",
			EnvVars: []string{"GAPS_TABLE"},
			Value:   "sync_gaps",
		},
		&cli.BoolFlag{
			Name:    "sync-lease",
			Usage:   "Take a Postgres advisory lock around each run so only one instance syncs",
			EnvVars: []string{"SYNC_LEASE"},
			Value:   true,
		},
		&cli.BoolFlag{
			Name:    "clickhouse-archive",
			Usage:   "Append every decoded event to the ClickHouse archive (CLICKHOUSE_* env)",
			EnvVars: []string{"CLICKHOUSE_ARCHIVE"},
		},
		&cli.BoolFlag{
			Name:    "kafka-publish",
			Usage:   "Produce every decoded event to Kafka (KAFKA_* env)",
			EnvVars: []string{"KAFKA_PUBLISH"},
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment label for metrics",
			EnvVars: []string{"ENVIRONMENT"},
		},
	}
}

// serveFlags returns the flags of the serve command.
func serveFlags() []cli.Flag {
	return append(syncFlags(),
		&cli.StringFlag{
			Name:    "api-addr",
			Usage:   "Listen address of the HTTP API",
			EnvVars: []string{"API_ADDR"},
			Value:   ":8080",
		},
		&cli.DurationFlag{
			Name:    "sync-interval",
			Usage:   "Period of the background sync (0 disables it)",
			EnvVars: []string{"SYNC_INTERVAL"},
			Value:   30 * time.Second,
		},
		&cli.BoolFlag{
			Name:    "sync-on-read",
			Usage:   "Run a sync before serving the leaderboard",
			EnvVars: []string{"SYNC_ON_READ"},
		},
		&cli.IntFlag{
			Name:    "page-size",
			Usage:   "Default number of leaderboard rows",
			EnvVars: []string{"LEADERBOARD_PAGE_SIZE"},
			Value:   api.DefaultPageSize,
		},
		&cli.IntFlag{
			Name:    "max-page-size",
			Usage:   "Maximum number of leaderboard rows per request",
			EnvVars: []string{"LEADERBOARD_MAX_PAGE_SIZE"},
			Value:   api.DefaultMaxPageSize,
		},
		&cli.StringSliceFlag{
			Name:    "cors-origins",
			Usage:   "Allowed CORS origins",
			EnvVars: []string{"CORS_ORIGINS"},
			Value:   cli.NewStringSlice("*"),
		},
		&cli.StringSliceFlag{
			Name:    "trusted-proxies",
			Usage:   "Proxy addresses or CIDR ranges whose X-Forwarded-For header is used for faucet IP limits",
			EnvVars: []string{"TRUSTED_PROXIES"},
		},
		&cli.StringFlag{
			Name:    "faucet-private-key",
			Usage:   "Hex private key of the faucet account (empty disables the faucet)",
			EnvVars: []string{"FAUCET_PRIVATE_KEY"},
		},
		&cli.StringFlag{
			Name:    "faucet-amount",
			Usage:   "Wei sent per faucet request",
			EnvVars: []string{"FAUCET_AMOUNT_WEI"},
			Value:   "100000000000000000",
		},
		&cli.IntFlag{
			Name:    "faucet-ip-limit",
			Usage:   "Faucet requests allowed per IP per window",
			EnvVars: []string{"FAUCET_IP_LIMIT"},
			Value:   faucet.DefaultPerIPLimit,
		},
		&cli.DurationFlag{
			Name:    "faucet-ip-window",
			EnvVars: []string{"FAUCET_IP_WINDOW"},
			Value:   faucet.DefaultPerIPWindow,
		},
		&cli.IntFlag{
			Name:    "faucet-address-limit",
			Usage:   "Faucet drips allowed per address per window",
			EnvVars: []string{"FAUCET_ADDRESS_LIMIT"},
			Value:   faucet.DefaultPerAddrLimit,
		},
		&cli.DurationFlag{
			Name:    "faucet-address-window",
			EnvVars: []string{"FAUCET_ADDRESS_WINDOW"},
			Value:   faucet.DefaultPerAddrWindow,
		},
	)
}
