package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/utils"
)

func remove(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	sugar, err := utils.NewSugaredLogger(true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	a, err := newApp(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.checkpoints.Delete(ctx, cfg.Sync.CheckpointID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	sugar.Infof("checkpoint %q removed, next run starts from block %d", cfg.Sync.CheckpointID, cfg.Sync.StartBlock)
	return nil
}
