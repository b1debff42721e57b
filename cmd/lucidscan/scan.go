package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucidscan/lucidscan/internal/report"
	"github.com/lucidscan/lucidscan/internal/threshold"
	"github.com/lucidscan/lucidscan/internal/types"
)

var (
	scanFiles    []string
	scanAllFiles bool
	scanFix      bool
	scanFormat   string
	scanDomains  []string
	scanFailOn   map[string]string
	scanWorkers  int
)

var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "Run the configured checks and report pass/fail",
	Long: `Run every enabled domain against the project and report normalized
issues with a per-domain verdict.

Scope defaults to files changed since the last commit. Use --all-files for
a full scan, or --files to check specific paths.

Exit codes:
  0  all thresholds passed
  1  at least one threshold failed
  2  a tool failed to execute
  3  configuration error
  4  a tool could not be provisioned

Example:
  lucidscan scan                      # changed files only
  lucidscan scan --all-files          # whole project
  lucidscan scan --files main.py      # one file
  lucidscan scan --domains linting,sca --format json`,
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

		if scanWorkers > 0 {
			rt.cfg.Pipeline.MaxWorkers = scanWorkers
		}
		if len(scanFailOn) > 0 {
			for group, rule := range scanFailOn {
				rt.cfg.FailOn[group] = rule
			}
			if err := rt.cfg.Validate(); err != nil {
				exitConfigError(err)
			}
		}

		sc := rt.cfg.NewScanContext(rt.root)
		sc.Files = scanFiles
		sc.AllFiles = scanAllFiles
		sc.Fix = scanFix
		if scanWorkers > 0 {
			sc.MaxWorkers = scanWorkers
		}
		if len(scanDomains) > 0 {
			domains := make([]types.Domain, 0, len(scanDomains))
			for _, name := range scanDomains {
				d, err := types.ParseDomain(name)
				if err != nil {
					exitConfigError(err)
				}
				domains = append(domains, d)
			}
			sc.Domains = domains
		}

		result, err := rt.runner.Run(ctx, sc)
		if err != nil {
			exitConfigError(err)
		}

		format := rt.cfg.Output.Format
		if scanFormat != "" {
			format = scanFormat
		}
		reporter, err := report.New(format)
		if err != nil {
			exitConfigError(err)
		}
		if err := reporter.Report(os.Stdout, result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(threshold.ExitPluginError)
		}

		os.Exit(result.ExitCode)
	},
}

func init() {
	scanCmd.Flags().StringSliceVar(&scanFiles, "files", nil, "scan only these files (relative to the project root)")
	scanCmd.Flags().BoolVar(&scanAllFiles, "all-files", false, "scan the whole project instead of changed files")
	scanCmd.Flags().BoolVar(&scanFix, "fix", false, "apply automatic fixes where tools support them")
	scanCmd.Flags().StringVar(&scanFormat, "format", "", "output format (table, json, sarif)")
	scanCmd.Flags().StringSliceVar(&scanDomains, "domains", nil, "restrict the scan to these domains")
	scanCmd.Flags().StringToStringVar(&scanFailOn, "fail-on", nil, "override failure thresholds (e.g. security=critical,linting=any)")
	scanCmd.Flags().IntVar(&scanWorkers, "max-workers", 0, "override the concurrency limit")
	rootCmd.AddCommand(scanCmd)
}
