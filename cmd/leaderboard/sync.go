package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/testnet-dashboard/leaderboard-indexer/pkg/syncer"
	"github.com/testnet-dashboard/leaderboard-indexer/pkg/utils"
)

func runSync(c *cli.Context) error {
	return oneShot(c, "sync", (*syncer.Syncer).Run)
}

func replayGaps(c *cli.Context) error {
	return oneShot(c, "replay-gaps", (*syncer.Syncer).ReplayGaps)
}

// oneShot builds the app, runs op once, and prints its result as JSON on stdout.
func oneShot(c *cli.Context, name string, op func(*syncer.Syncer, context.Context) (syncer.Result, error)) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	logConfig(sugar, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := op(a.syncer, ctx)
	if printErr := printResult(os.Stdout, res); printErr != nil {
		sugar.Warnw("failed to print result", "error", printErr)
	}
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation", "command", name)
		return nil
	}
	if err != nil {
		sugar.Errorw("run failed", "command", name, "error", err)
		return err
	}
	return nil
}

func printResult(w io.Writer, res syncer.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
