package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucidscan/lucidscan/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve scan tools over the Model Context Protocol",
	Long: `Start an MCP server on stdio so coding agents can run scans and read
normalized results directly.

Tools exposed:
  scan           run the configured checks against a project
  check_file     check a single file with partial-scan capable tools
  list_scanners  list registered plugins and their capabilities`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx, ".")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer rt.close()

		server, err := mcp.NewServer(mcp.Config{
			Name:    "lucidscan",
			Version: version,
			Logger:  rt.logger,
		}, rt.runner, rt.registry, rt.cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := server.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
