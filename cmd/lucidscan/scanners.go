package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lucidscan/lucidscan/internal/plugins"
	"github.com/lucidscan/lucidscan/internal/registry"
)

var scannersCmd = &cobra.Command{
	Use:   "scanners",
	Short: "List available scanner plugins",
	Run: func(cmd *cobra.Command, args []string) {
		reg := registry.New()
		if err := plugins.RegisterAll(reg, plugins.Options{}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		bold := color.New(color.Bold).SprintFunc()
		fmt.Printf("%s\n\n", bold("Available scanners"))

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tDOMAIN\tPARTIAL SCAN\tFIX")
		for _, desc := range reg.Descriptors() {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n",
				desc.Name, desc.Domain,
				yesNo(desc.SupportsPartialScan), yesNo(desc.SupportsFix))
		}
		tw.Flush()
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	rootCmd.AddCommand(scannersCmd)
}
