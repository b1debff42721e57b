// Package config loads and validates .lucidscan.yml into the resolved
// configuration the scan core consumes.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lucidscan/lucidscan/internal/enrich"
	"github.com/lucidscan/lucidscan/internal/threshold"
	"github.com/lucidscan/lucidscan/internal/types"
)

// FileName is the project-level configuration file.
const FileName = ".lucidscan.yml"

// Config is the resolved configuration for one scan invocation.
type Config struct {
	Output   OutputConfig      `koanf:"output"`
	Pipeline PipelineConfig    `koanf:"pipeline"`
	FailOn   map[string]string `koanf:"fail_on"`
	Exclude  []string          `koanf:"exclude"`
	Ignore   []enrich.IgnoreRule `koanf:"ignore"`
}

// OutputConfig selects the reporter.
type OutputConfig struct {
	Format string `koanf:"format" validate:"omitempty,oneof=json table sarif"`
}

// PipelineConfig controls scheduling and the per-domain tool selection.
type PipelineConfig struct {
	MaxWorkers    int           `koanf:"max_workers" validate:"omitempty,min=1,max=64"`
	PluginTimeout time.Duration `koanf:"plugin_timeout"`
	Enrichers     []string      `koanf:"enrichers"`

	Linting      DomainConfig      `koanf:"linting"`
	TypeChecking DomainConfig      `koanf:"type_checking"`
	Security     SecurityConfig    `koanf:"security"`
	Testing      DomainConfig      `koanf:"testing"`
	Coverage     CoverageConfig    `koanf:"coverage"`
	Duplication  DuplicationConfig `koanf:"duplication"`
}

// DomainConfig configures one tool domain.
type DomainConfig struct {
	Enabled bool     `koanf:"enabled"`
	Tools   []string `koanf:"tools"`
	Exclude []string `koanf:"exclude"`
}

// SecurityConfig maps security subdomains to their scanner plugins.
type SecurityConfig struct {
	Enabled bool           `koanf:"enabled"`
	Tools   []SecurityTool `koanf:"tools" validate:"dive"`
	Exclude []string       `koanf:"exclude"`
}

// SecurityTool binds one scanner to the security subdomains it covers.
type SecurityTool struct {
	Name    string   `koanf:"name" validate:"required"`
	Domains []string `koanf:"domains" validate:"min=1,dive,oneof=sca sast iac container"`
}

// CoverageConfig configures the coverage domain.
type CoverageConfig struct {
	Enabled   bool     `koanf:"enabled"`
	Threshold float64  `koanf:"threshold" validate:"omitempty,min=0,max=100"`
	Tools     []string `koanf:"tools"`
	Exclude   []string `koanf:"exclude"`
}

// DuplicationConfig configures the duplication domain.
type DuplicationConfig struct {
	Enabled   bool     `koanf:"enabled"`
	Threshold float64  `koanf:"threshold" validate:"omitempty,min=0,max=100"`
	MinLines  int      `koanf:"min_lines" validate:"omitempty,min=2"`
	Tools     []string `koanf:"tools"`
	Exclude   []string `koanf:"exclude"`
}

// Default returns the configuration used when no file is present: linting,
// type checking, and security on; the heavier domains opt-in.
func Default() *Config {
	return &Config{
		Output: OutputConfig{Format: "table"},
		Pipeline: PipelineConfig{
			MaxWorkers:    4,
			PluginTimeout: 10 * time.Minute,
			Enrichers:     enrich.DefaultOrder(),
			Linting:       DomainConfig{Enabled: true, Tools: []string{"ruff"}},
			TypeChecking:  DomainConfig{Enabled: true, Tools: []string{"govet"}},
			Security: SecurityConfig{
				Enabled: true,
				Tools: []SecurityTool{
					{Name: "depaudit", Domains: []string{"sca"}},
					{Name: "trivy", Domains: []string{"iac"}},
				},
			},
			Testing:     DomainConfig{Enabled: false, Tools: []string{"gotest"}},
			Coverage:    CoverageConfig{Enabled: false, Threshold: 80.0, Tools: []string{"gocover"}},
			Duplication: DuplicationConfig{Enabled: false, Threshold: 10.0, MinLines: 4, Tools: []string{"duplo"}},
		},
		FailOn: threshold.DefaultPolicy().FailOn,
	}
}

// Validate checks the configuration. Failures here are configuration
// errors: the scan is never attempted.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Policy builds the threshold policy from the configuration.
func (c *Config) Policy() threshold.Policy {
	p := threshold.DefaultPolicy()
	if len(c.FailOn) > 0 {
		p.FailOn = c.FailOn
	}
	if c.Pipeline.Coverage.Threshold > 0 {
		p.CoverageThreshold = c.Pipeline.Coverage.Threshold
	}
	if c.Pipeline.Duplication.Threshold > 0 {
		p.DuplicationThreshold = c.Pipeline.Duplication.Threshold
	}
	return p
}

// EnabledDomains lists the domains this configuration turns on, in
// canonical order.
func (c *Config) EnabledDomains() []types.Domain {
	var out []types.Domain
	add := func(d types.Domain, enabled bool) {
		if enabled {
			out = append(out, d)
		}
	}
	add(types.DomainLinting, c.Pipeline.Linting.Enabled)
	add(types.DomainTypeChecking, c.Pipeline.TypeChecking.Enabled)
	if c.Pipeline.Security.Enabled {
		for _, d := range c.SecurityDomains() {
			out = append(out, d)
		}
	}
	add(types.DomainTesting, c.Pipeline.Testing.Enabled)
	add(types.DomainCoverage, c.Pipeline.Coverage.Enabled)
	add(types.DomainDuplication, c.Pipeline.Duplication.Enabled)
	return out
}

// SecurityDomains lists the security subdomains covered by configured
// scanner tools, in canonical order.
func (c *Config) SecurityDomains() []types.Domain {
	seen := make(map[types.Domain]bool)
	for _, tool := range c.Pipeline.Security.Tools {
		for _, name := range tool.Domains {
			if d, err := types.ParseDomain(name); err == nil {
				seen[d] = true
			}
		}
	}
	var out []types.Domain
	for _, d := range types.AllDomains {
		if seen[d] {
			out = append(out, d)
		}
	}
	return out
}

// ToolsFor returns the configured plugin names for a domain.
func (c *Config) ToolsFor(domain types.Domain) []string {
	switch domain {
	case types.DomainLinting:
		return c.Pipeline.Linting.Tools
	case types.DomainTypeChecking:
		return c.Pipeline.TypeChecking.Tools
	case types.DomainTesting:
		return c.Pipeline.Testing.Tools
	case types.DomainCoverage:
		return c.Pipeline.Coverage.Tools
	case types.DomainDuplication:
		return c.Pipeline.Duplication.Tools
	}
	if domain.IsSecurity() {
		var out []string
		for _, tool := range c.Pipeline.Security.Tools {
			for _, name := range tool.Domains {
				if d, err := types.ParseDomain(name); err == nil && d == domain {
					out = append(out, tool.Name)
				}
			}
		}
		return out
	}
	return nil
}

// NewScanContext builds the scan context for one invocation against root.
// Callers adjust Files, AllFiles, Fix, and Domains before the scan starts.
func (c *Config) NewScanContext(root string) *types.ScanContext {
	return &types.ScanContext{
		ProjectRoot:    root,
		Domains:        c.EnabledDomains(),
		Excludes:       c.Exclude,
		DomainExcludes: c.DomainExcludes(),
		MaxWorkers:     c.Pipeline.MaxWorkers,
	}
}

// DomainExcludes returns the per-domain exclude patterns.
func (c *Config) DomainExcludes() map[types.Domain][]string {
	out := make(map[types.Domain][]string)
	set := func(d types.Domain, patterns []string) {
		if len(patterns) > 0 {
			out[d] = patterns
		}
	}
	set(types.DomainLinting, c.Pipeline.Linting.Exclude)
	set(types.DomainTypeChecking, c.Pipeline.TypeChecking.Exclude)
	set(types.DomainTesting, c.Pipeline.Testing.Exclude)
	set(types.DomainCoverage, c.Pipeline.Coverage.Exclude)
	set(types.DomainDuplication, c.Pipeline.Duplication.Exclude)
	for _, d := range []types.Domain{types.DomainSCA, types.DomainSAST, types.DomainIaC, types.DomainContainer} {
		set(d, c.Pipeline.Security.Exclude)
	}
	return out
}
