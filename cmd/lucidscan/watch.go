package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/report"
	"github.com/lucidscan/lucidscan/internal/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Rescan changed files whenever the project changes",
	Long: `Watch the project tree and rerun the scan after each burst of file
changes. Each pass scans only what changed since the last commit, so the
feedback loop stays fast.

Stop with Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}

		ctx := cmd.Context()
		rt, err := newRuntime(ctx, dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer rt.close()

		reporter, err := report.New(rt.cfg.Output.Format)
		if err != nil {
			exitConfigError(err)
		}

		rescan := func(ctx context.Context) {
			sc := rt.cfg.NewScanContext(rt.root)
			result, err := rt.runner.Run(ctx, sc)
			if err != nil {
				rt.logger.Error("scan failed", zap.Error(err))
				return
			}
			if err := reporter.Report(os.Stdout, result); err != nil {
				rt.logger.Error("failed to render report", zap.Error(err))
			}
		}

		watcher, err := watch.New(watch.Config{
			Root:     rt.root,
			Debounce: watchDebounce,
			Logger:   rt.logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Watching %s for changes...\n\n", rt.root)
		rescan(ctx)

		if err := watcher.Run(ctx, rescan); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "delay after the last change before rescanning")
	rootCmd.AddCommand(watchCmd)
}
