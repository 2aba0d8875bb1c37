package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/chainclient"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/checkpointer"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/clickhouse"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/data/clickhouse/scorelog"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/data/inmemory"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/data/postgres/checkpoint"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/data/postgres/lease"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/data/postgres/leaderboard"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/data/postgres/syncgaps"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/kafka"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/metrics"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/postgres"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/syncer"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/types"
)

// app holds everything a command needs, built from Config.
type app struct {
	cfg      *Config
	log      *zap.SugaredLogger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	chain       *chainclient.Client
	leaderboard types.LeaderboardRepository
	checkpoints checkpointer.Checkpointer
	gaps        types.GapRepository
	archive     scorelog.Repository
	producer    *kafka.Producer
	syncer      *syncer.Syncer
	checks      []metrics.HealthCheck

	closers []func()
}

// Close releases resources in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) onClose(f func()) {
	a.closers = append(a.closers, f)
}

// newApp connects to the node and the configured stores. On error, everything opened so far is
// closed.
func newApp(ctx context.Context, cfg *Config, sugar *zap.SugaredLogger) (*app, error) {
	a := &app{cfg: cfg, log: sugar, registry: prometheus.NewRegistry()}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	var err error
	a.metrics, err = metrics.NewWithLabels(a.registry, metrics.Labels{
		ChainID:     cfg.ChainID,
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	a.chain, err = chainclient.Dial(ctx, cfg.RPCURL, chainclient.WithMetrics(a.metrics))
	if err != nil {
		return fmt.Errorf("failed to dial rpc: %w", err)
	}
	a.onClose(a.chain.Close)

	var locker syncer.Locker
	switch cfg.Store {
	case storeMemory:
		a.log.Warn("using in-memory store, leaderboard and checkpoint are lost on exit")
		a.leaderboard = inmemory.NewLeaderboard()
		a.checkpoints = inmemory.NewCheckpoints()
		a.gaps = inmemory.NewGaps()
	default:
		locker, err = a.openPostgres(ctx)
		if err != nil {
			return err
		}
	}

	var publishers []syncer.Publisher
	if cfg.ClickHouseArchive {
		pub, err := a.openArchive(ctx)
		if err != nil {
			return err
		}
		publishers = append(publishers, pub)
	}
	if cfg.KafkaPublish {
		pub, err := a.openKafka(ctx)
		if err != nil {
			return err
		}
		publishers = append(publishers, pub)
	}

	a.syncer, err = syncer.New(cfg.Sync, syncer.Deps{
		Client:       a.chain,
		Store:        a.leaderboard,
		Checkpointer: a.checkpoints,
		Gaps:         a.gaps,
		Publishers:   publishers,
		Locker:       locker,
	}, a.log, a.metrics)
	if err != nil {
		return fmt.Errorf("failed to create syncer: %w", err)
	}
	return nil
}

func (a *app) openPostgres(ctx context.Context) (syncer.Locker, error) {
	pgCfg, err := postgres.Load()
	if err != nil {
		return nil, err
	}
	client, err := postgres.New(ctx, pgCfg, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres client: %w", err)
	}
	a.onClose(client.Close)
	a.checks = append(a.checks, client.Ping)

	a.leaderboard, err = leaderboard.NewRepository(ctx, client, pgCfg.Table(a.cfg.LeaderboardTable))
	if err != nil {
		return nil, fmt.Errorf("failed to create leaderboard repository: %w", err)
	}
	a.checkpoints, err = checkpoint.NewRepository(ctx, client, pgCfg.Table(a.cfg.CheckpointTable))
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint repository: %w", err)
	}
	a.gaps, err = syncgaps.NewRepository(ctx, client, pgCfg.Table(a.cfg.GapsTable))
	if err != nil {
		return nil, fmt.Errorf("failed to create sync gaps repository: %w", err)
	}
	a.log.Infow("postgres tables ready",
		"leaderboard", pgCfg.Table(a.cfg.LeaderboardTable),
		"checkpoint", pgCfg.Table(a.cfg.CheckpointTable),
		"gaps", pgCfg.Table(a.cfg.GapsTable),
	)

	if !a.cfg.SyncLease {
		return nil, nil
	}
	return lease.New(client, a.log), nil
}

func (a *app) openArchive(ctx context.Context) (syncer.Publisher, error) {
	chCfg, err := clickhouse.Load()
	if err != nil {
		return nil, err
	}
	client, err := clickhouse.New(ctx, chCfg, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	a.onClose(func() {
		if err := client.Close(); err != nil {
			a.log.Warnw("failed to close ClickHouse client", "error", err)
		}
	})
	a.checks = append(a.checks, client.Ping)

	a.archive, err = scorelog.NewRepository(ctx, client, chCfg.ScoreTable, a.cfg.ChainID, a.cfg.Sync.Contract)
	if err != nil {
		return nil, fmt.Errorf("failed to create score archive: %w", err)
	}
	a.log.Infow("ClickHouse score archive ready", "table", chCfg.ScoreTable)
	return scorelog.NewPublisher(a.archive), nil
}

func (a *app) openKafka(ctx context.Context) (syncer.Publisher, error) {
	kCfg, err := kafka.LoadProducerConfig()
	if err != nil {
		return nil, err
	}
	if kCfg.CreateTopic {
		if err := kafka.EnsureScoreTopic(ctx, kCfg, a.log); err != nil {
			return nil, fmt.Errorf("failed to ensure kafka topic: %w", err)
		}
	}
	a.producer, err = kafka.NewProducer(ctx, kCfg, a.log)
	if err != nil {
		return nil, err
	}
	a.onClose(a.producer.Close)
	a.log.Infow("kafka publisher ready", "topic", kCfg.Topic)
	return kafka.NewScorePublisher(a.producer, a.cfg.Sync.Contract), nil
}

// producerErrors is nil when Kafka publishing is off; a nil channel never fires.
func (a *app) producerErrors() <-chan error {
	if a.producer == nil {
		return nil
	}
	return a.producer.Errors()
}

// startMetrics starts the metrics server with the store health checks.
func (a *app) startMetrics() (*metrics.Server, <-chan error) {
	opts := make([]metrics.ServerOption, 0, len(a.checks))
	for _, check := range a.checks {
		opts = append(opts, metrics.WithHealthCheck(check))
	}
	srv := metrics.NewServer(a.cfg.MetricsAddr(), a.registry, opts...)
	errCh := srv.Start()
	a.log.Infow("metrics server listening", "addr", a.cfg.MetricsAddr())
	return srv, errCh
}

func shutdown(log *zap.SugaredLogger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		log.Warnw("shutdown error", "server", name, "error", err)
	}
}
