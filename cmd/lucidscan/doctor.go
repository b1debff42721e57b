package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lucidscan/lucidscan/internal/bootstrap"
	"github.com/lucidscan/lucidscan/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check installation and environment health",
	Long: `Run health checks to diagnose common configuration and environment issues.

This command checks for:
- Configuration file validity
- Git availability (needed for changed-file scans)
- The lucidscan home directory and tool cache
- Installed tool binaries
- The Go toolchain (needed for govet, gotest, and gocover)

Exit codes:
  0 - All checks passed
  1 - One or more checks failed`,
	Run: func(cmd *cobra.Command, args []string) {
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("Running lucidscan health checks...\n\n")

		var failures int

		// Configuration
		fmt.Printf("%s Configuration\n", cyan("→"))
		root, _ := os.Getwd()
		if cfg, err := config.Load(root, flagConfig); err == nil {
			fmt.Printf("  %s %s is valid (%d domains enabled)\n",
				green("✓"), config.FileName, len(cfg.EnabledDomains()))
		} else if errors.Is(err, config.ErrNotFound) {
			fmt.Printf("  %s no %s found, defaults apply (run `lucidscan init`)\n",
				yellow("!"), config.FileName)
		} else {
			failures++
			fmt.Printf("  %s %v\n", red("✗"), err)
		}

		// Git
		fmt.Printf("%s Git\n", cyan("→"))
		if gitPath, err := exec.LookPath("git"); err == nil {
			fmt.Printf("  %s git found at %s\n", green("✓"), gitPath)
		} else {
			fmt.Printf("  %s git not found; every scan will cover the whole project\n", yellow("!"))
		}

		// Home directory
		fmt.Printf("%s Home directory\n", cyan("→"))
		paths, err := bootstrap.DefaultPaths()
		if err != nil {
			failures++
			fmt.Printf("  %s %v\n", red("✗"), err)
		} else if paths.IsInitialized() {
			fmt.Printf("  %s %s\n", green("✓"), paths.Home)
		} else {
			fmt.Printf("  %s %s not initialized; created on first scan\n", yellow("!"), paths.Home)
		}

		// Installed tools
		fmt.Printf("%s Installed tools\n", cyan("→"))
		if err == nil {
			if manifest, merr := bootstrap.OpenManifest(paths.ManifestPath()); merr == nil {
				tools, lerr := manifest.List(cmd.Context())
				manifest.Close()
				switch {
				case lerr != nil:
					failures++
					fmt.Printf("  %s %v\n", red("✗"), lerr)
				case len(tools) == 0:
					fmt.Printf("  %s no tools installed yet; downloaded on first use\n", yellow("!"))
				default:
					for _, tool := range tools {
						status := green("✓")
						if _, serr := os.Stat(tool.Path); serr != nil {
							status = red("✗")
							failures++
						}
						fmt.Printf("  %s %s %s (%s)\n", status, tool.Tool, tool.Version,
							filepath.Dir(tool.Path))
					}
				}
			} else {
				fmt.Printf("  %s tool manifest unavailable: %v\n", yellow("!"), merr)
			}
		}

		// Go toolchain
		fmt.Printf("%s Go toolchain\n", cyan("→"))
		if goPath, err := exec.LookPath("go"); err == nil {
			fmt.Printf("  %s go found at %s\n", green("✓"), goPath)
		} else {
			fmt.Printf("  %s go not found; govet, gotest, and gocover will fail\n", yellow("!"))
		}

		fmt.Println()
		if failures > 0 {
			fmt.Printf("%s %d check(s) failed\n", red("✗"), failures)
			os.Exit(1)
		}
		fmt.Printf("%s All checks passed\n", green("✓"))
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
