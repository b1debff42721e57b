package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/bootstrap"
	"github.com/lucidscan/lucidscan/internal/registry"
	"github.com/lucidscan/lucidscan/internal/scheduler"
	"github.com/lucidscan/lucidscan/internal/threshold"
)

var setupCmd = &cobra.Command{
	Use:   "setup [dir]",
	Short: "Install the tool binaries the current configuration needs",
	Long: `Download and install every scanner binary the configuration enables, so
the first scan does not pay the download cost. Also removes log files and
superseded tool versions past the retention policy.

Exit codes:
  0 - All tools installed
  4 - One or more tools could not be provisioned`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}

		ctx := cmd.Context()
		rt, err := newRuntime(ctx, dir)
		if err != nil {
			exitBootstrapError(err)
		}
		defer rt.close()

		fmt.Printf("Provisioning tools into %s...\n\n", rt.paths.BinDir())
		failed := provisionTools(ctx, rt.registry, os.Stdout)

		report, err := bootstrap.CleanStale(ctx, rt.paths, rt.manifest, bootstrap.DefaultRetentionPolicy(), rt.logger)
		if err != nil {
			rt.logger.Warn("retention pass failed", zap.Error(err))
		} else if report.LogsRemoved > 0 || report.VersionsRemoved > 0 {
			fmt.Printf("\nRemoved %d stale log(s) and %d superseded tool version(s)\n",
				report.LogsRemoved, report.VersionsRemoved)
		}

		if failed > 0 {
			fmt.Fprintf(os.Stderr, "\nError: %d tool(s) could not be provisioned\n", failed)
			os.Exit(threshold.ExitBootstrapFailure)
		}
	},
}

// provisionTools installs every registered tool that requires a binary,
// once per tool regardless of how many domains it serves. Returns the
// number of tools that could not be provisioned.
func provisionTools(ctx context.Context, reg *registry.Registry, out io.Writer) int {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	failed := 0
	seen := make(map[string]bool)
	for _, d := range reg.Descriptors() {
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true

		adapter, ok := reg.GetForDomain(d.Name, d.Domain)
		if !ok {
			continue
		}
		p, ok := adapter.(scheduler.Provisionable)
		if !ok {
			fmt.Fprintf(out, "  %s %s (nothing to install)\n", green("✓"), d.Name)
			continue
		}
		if err := p.EnsureTool(ctx); err != nil {
			failed++
			fmt.Fprintf(out, "  %s %s: %v\n", red("✗"), d.Name, err)
			continue
		}
		fmt.Fprintf(out, "  %s %s\n", green("✓"), d.Name)
	}
	return failed
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
