package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucidscan/lucidscan/internal/config"
	"github.com/lucidscan/lucidscan/internal/detection"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Write a starter configuration for this project",
	Long: `Inspect the project and write a .lucidscan.yml with domains enabled to
match the languages found. Python projects get ruff; Go projects get
go vet, the test runner, and coverage.

Example:
  lucidscan init
  lucidscan init --force    # overwrite an existing configuration`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		root, err := filepath.Abs(dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		configPath := filepath.Join(root, config.FileName)
		if _, err := os.Stat(configPath); err == nil && !initForce {
			fmt.Fprintf(os.Stderr, "Error: %s already exists (use --force to overwrite)\n", configPath)
			os.Exit(1)
		}

		project, err := detection.Detect(root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cfg := buildStarter(project)
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		header := "# lucidscan configuration\n# See `lucidscan scanners` for available tools.\n"
		if err := os.WriteFile(configPath, append([]byte(header), data...), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s wrote %s\n", green("✓"), configPath)
		if primary := project.Primary(); primary != "" {
			fmt.Printf("  detected primary language: %s\n", primary)
		}
	},
}

// starterConfig is the YAML shape written by init. It mirrors the loader's
// koanf keys but stays independent so optional sections can be omitted.
type starterConfig struct {
	Output struct {
		Format string `yaml:"format"`
	} `yaml:"output"`
	Pipeline struct {
		MaxWorkers int             `yaml:"max_workers"`
		Linting    starterDomain   `yaml:"linting"`
		TypeCheck  starterDomain   `yaml:"type_checking"`
		Security   starterSecurity `yaml:"security"`
		Testing    starterDomain   `yaml:"testing"`
		Coverage   starterMetric   `yaml:"coverage"`
	} `yaml:"pipeline"`
	FailOn map[string]string `yaml:"fail_on"`
}

type starterDomain struct {
	Enabled bool     `yaml:"enabled"`
	Tools   []string `yaml:"tools,omitempty"`
}

type starterSecurity struct {
	Enabled bool `yaml:"enabled"`
	Tools   []struct {
		Name    string   `yaml:"name"`
		Domains []string `yaml:"domains"`
	} `yaml:"tools,omitempty"`
}

type starterMetric struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold float64  `yaml:"threshold,omitempty"`
	Tools     []string `yaml:"tools,omitempty"`
}

func buildStarter(project *detection.Project) starterConfig {
	var cfg starterConfig
	cfg.Output.Format = "table"
	cfg.Pipeline.MaxWorkers = 4

	if project.Has("python") {
		cfg.Pipeline.Linting = starterDomain{Enabled: true, Tools: []string{"ruff"}}
	}
	if project.Has("go") {
		cfg.Pipeline.TypeCheck = starterDomain{Enabled: true, Tools: []string{"govet"}}
		cfg.Pipeline.Testing = starterDomain{Enabled: true, Tools: []string{"gotest"}}
		cfg.Pipeline.Coverage = starterMetric{Enabled: true, Threshold: 80, Tools: []string{"gocover"}}
	}

	cfg.Pipeline.Security.Enabled = true
	cfg.Pipeline.Security.Tools = []struct {
		Name    string   `yaml:"name"`
		Domains []string `yaml:"domains"`
	}{
		{Name: "depaudit", Domains: []string{"sca"}},
		{Name: "trivy", Domains: []string{"iac"}},
	}

	cfg.FailOn = map[string]string{
		"security": "high",
		"linting":  "error",
	}
	return cfg
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing configuration file")
	rootCmd.AddCommand(initCmd)
}
