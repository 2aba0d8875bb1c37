package main

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ava-labs/libevm/common"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/api"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/checkpointer"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/faucet"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/syncer"
)

const (
	storePostgres = "postgres"
	storeMemory   = "memory"
)

var (
	errInvalidContract = errors.New("contract-address must be a 0x-prefixed 20-byte hex address")
	errInvalidStore    = errors.New("store must be postgres or memory")
)

// Config holds all configuration for the leaderboard commands
type Config struct {
	Verbose bool

	RPCURL  string
	ChainID uint64
	Sync    syncer.Config

	Store            string
	LeaderboardTable string
	CheckpointTable  string
	GapsTable        string
	SyncLease        bool

	ClickHouseArchive bool
	KafkaPublish      bool

	MetricsHost string
	MetricsPort int
	Environment string

	// serve only
	API          api.Config
	SyncInterval time.Duration
	Faucet       faucet.Config
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	contract := strings.TrimSpace(c.String("contract-address"))
	if !strings.HasPrefix(contract, "0x") || !common.IsHexAddress(contract) {
		return nil, errInvalidContract
	}

	store := strings.ToLower(c.String("store"))
	if store != storePostgres && store != storeMemory {
		return nil, errInvalidStore
	}

	syncCfg := syncer.DefaultConfig()
	syncCfg.Contract = common.HexToAddress(contract)
	syncCfg.CheckpointID = c.String("checkpoint-id")
	syncCfg.StartBlock = c.Uint64("start-block")
	syncCfg.Lookback = c.Uint64("lookback-blocks")
	syncCfg.ChunkSize = c.Uint64("chunk-size")
	syncCfg.CheckpointMode = syncer.CheckpointMode(strings.ToLower(c.String("checkpoint-mode")))
	syncCfg.OnChunkError = syncer.ChunkErrorPolicy(strings.ToLower(c.String("on-chunk-error")))
	syncCfg.Checkpoint = checkpointer.Config{
		WriteTimeout: c.Duration("checkpoint-write-timeout"),
		MaxRetries:   c.Int("checkpoint-retries"),
		RetryBackoff: checkpointer.DefaultConfig().RetryBackoff,
	}
	if err := syncCfg.Validate(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Verbose:           c.Bool("verbose"),
		RPCURL:            c.String("rpc-url"),
		ChainID:           c.Uint64("chain-id"),
		Sync:              syncCfg,
		Store:             store,
		LeaderboardTable:  c.String("leaderboard-table"),
		CheckpointTable:   c.String("checkpoint-table"),
		GapsTable:         c.String("gaps-table"),
		SyncLease:         c.Bool("sync-lease"),
		ClickHouseArchive: c.Bool("clickhouse-archive"),
		KafkaPublish:      c.Bool("kafka-publish"),
		MetricsHost:       c.String("metrics-host"),
		MetricsPort:       c.Int("metrics-port"),
		Environment:       c.String("environment"),
	}

	return cfg, nil
}

// buildServeConfig adds the API, background sync and faucet settings of the serve command.
func buildServeConfig(c *cli.Context) (*Config, error) {
	cfg, err := buildConfig(c)
	if err != nil {
		return nil, err
	}

	faucetCfg, err := buildFaucetConfig(c)
	if err != nil {
		return nil, err
	}
	cfg.Faucet = faucetCfg
	cfg.SyncInterval = c.Duration("sync-interval")
	cfg.API = api.Config{
		Addr:           c.String("api-addr"),
		PageSize:       c.Int("page-size"),
		MaxPageSize:    c.Int("max-page-size"),
		SyncOnRead:     c.Bool("sync-on-read"),
		AllowedOrigins: splitList(c.StringSlice("cors-origins")),
		TrustedProxies: splitList(c.StringSlice("trusted-proxies")),
	}
	return cfg, nil
}

func buildFaucetConfig(c *cli.Context) (faucet.Config, error) {
	cfg := faucet.Config{
		PrivateKey: c.String("faucet-private-key"),
		Limits: faucet.LimiterConfig{
			PerIP:         c.Int("faucet-ip-limit"),
			PerIPWindow:   c.Duration("faucet-ip-window"),
			PerAddr:       c.Int("faucet-address-limit"),
			PerAddrWindow: c.Duration("faucet-address-window"),
		},
	}
	if cfg.PrivateKey == "" {
		return cfg, nil
	}
	amount, ok := new(big.Int).SetString(c.String("faucet-amount"), 10)
	if !ok || amount.Sign() <= 0 {
		return faucet.Config{}, fmt.Errorf("faucet-amount must be a positive integer in wei, got %q", c.String("faucet-amount"))
	}
	cfg.Amount = amount
	return cfg, nil
}

// splitList flattens comma-separated entries of a string slice flag.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// envFileFromArgs finds --env-file in args, falling back to ENV_FILE. Flags read their
// EnvVars while parsing, so the file has to be loaded before the app runs.
func envFileFromArgs(args []string, getenv func(string) string) string {
	for i, arg := range args {
		switch {
		case arg == "--env-file" || arg == "-env-file":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "--env-file="):
			return strings.TrimPrefix(arg, "--env-file=")
		case strings.HasPrefix(arg, "-env-file="):
			return strings.TrimPrefix(arg, "-env-file=")
		}
	}
	return getenv("ENV_FILE")
}

// loadEnvFile loads path without overriding variables already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
