package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := loadEnvFile(envFileFromArgs(os.Args[1:], os.Getenv)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app := &cli.App{
		Name:  "leaderboard",
		Usage: "Index ScoreSubmitted events of the memory game into the testnet leaderboard",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Run one synchronizer pass up to the current head and exit",
				Flags:  syncFlags(),
				Action: runSync,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and sync periodically in the background",
				Flags:  serveFlags(),
				Action: serve,
			},
			{
				Name:   "replay-gaps",
				Usage:  "Re-fetch block ranges skipped by earlier runs",
				Flags:  syncFlags(),
				Action: replayGaps,
			},
			{
				Name:   "remove",
				Usage:  "Delete the checkpoint so the next run rescans from the start block",
				Flags:  syncFlags(),
				Action: remove,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
