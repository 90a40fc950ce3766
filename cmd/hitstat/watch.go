package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hitstat/internal/watch"
)

var errNoReplaysDir = errors.New("no replays directory: set --replays or the config file's game.replays")

func runWatchCmd(cmd *cobra.Command, _ []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	dir := env.settings.ReplaysDir
	if dir == "" {
		return errNoReplaysDir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := watch.New(dir, func(ctx context.Context, path string) {
		res, err := env.analyzer.AnalyzeFile(path)
		if err != nil {
			logger.Printf("analyze %s: %v", path, err)
			return
		}
		printResult(path, res)
		env.record(ctx, path, res)
	}, logger)

	err = w.Run(ctx)
	if ctx.Err() != nil {
		// Normal shutdown on signal.
		return nil
	}
	return err
}
