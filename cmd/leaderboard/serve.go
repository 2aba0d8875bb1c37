package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/api"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/faucet"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/utils"
)

func serve(c *cli.Context) error {
	cfg, err := buildServeConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	logConfig(sugar, cfg)
	sugar.Infow("serve config",
		"apiAddr", cfg.API.Addr,
		"syncInterval", cfg.SyncInterval,
		"syncOnRead", cfg.API.SyncOnRead,
		"pageSize", cfg.API.PageSize,
		"maxPageSize", cfg.API.MaxPageSize,
		"corsOrigins", cfg.API.AllowedOrigins,
		"trustedProxies", cfg.API.TrustedProxies,
		"faucetEnabled", cfg.Faucet.PrivateKey != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := api.Deps{
		Leaderboard: a.leaderboard,
		Syncer:      a.syncer,
		Accounts:    a.chain,
	}
	if a.archive != nil {
		deps.Archive = a.archive
	}
	sender, err := faucet.NewSender(cfg.Faucet, a.chain, sugar, a.metrics)
	switch {
	case err == nil:
		deps.Faucet = sender
		sugar.Infow("faucet enabled", "address", sender.Address().Hex(), "amount", cfg.Faucet.Amount)
	case errors.Is(err, faucet.ErrFaucetDisabled):
		sugar.Info("faucet disabled, no private key configured")
	default:
		return fmt.Errorf("failed to create faucet: %w", err)
	}

	apiServer, err := api.New(cfg.API, deps, sugar, a.metrics)
	if err != nil {
		return fmt.Errorf("failed to create api server: %w", err)
	}
	metricsServer, metricsErrCh := a.startMetrics()
	apiErrCh := apiServer.Start()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.SyncInterval > 0 {
		g.Go(func() error {
			return a.syncer.Start(gctx, cfg.SyncInterval)
		})
	} else {
		sugar.Info("background sync disabled")
	}

	g.Go(func() error {
		return watch(gctx, "api server", apiErrCh)
	})
	g.Go(func() error {
		return watch(gctx, "metrics server", metricsErrCh)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case err, ok := <-a.producerErrors():
			if !ok {
				return nil
			}
			return fmt.Errorf("kafka producer: %w", err)
		}
	})

	err = g.Wait()

	sugar.Info("shutting down servers")
	shutdown(sugar, "api", apiServer.Shutdown)
	shutdown(sugar, "metrics", metricsServer.Shutdown)

	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
		return nil
	}
	if err != nil {
		sugar.Errorw("serve failed", "error", err)
		return err
	}
	sugar.Info("shutdown complete")
	return nil
}

// watch returns when ctx ends or the server reports a failure.
func watch(ctx context.Context, name string, errCh <-chan error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s error: %w", name, err)
		}
		// closed without error: the server was shut down
		<-ctx.Done()
		return ctx.Err()
	}
}

func logConfig(sugar *zap.SugaredLogger, cfg *Config) {
	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"rpcURL", cfg.RPCURL,
		"chainID", cfg.ChainID,
		"contract", cfg.Sync.Contract.Hex(),
		"checkpointID", cfg.Sync.CheckpointID,
		"startBlock", cfg.Sync.StartBlock,
		"lookback", cfg.Sync.Lookback,
		"chunkSize", cfg.Sync.ChunkSize,
		"checkpointMode", cfg.Sync.CheckpointMode,
		"onChunkError", cfg.Sync.OnChunkError,
		"checkpointRetries", cfg.Sync.Checkpoint.MaxRetries,
		"store", cfg.Store,
		"syncLease", cfg.SyncLease,
		"clickhouseArchive", cfg.ClickHouseArchive,
		"kafkaPublish", cfg.KafkaPublish,
		"metricsAddr", cfg.MetricsAddr(),
		"environment", cfg.Environment,
	)
}
