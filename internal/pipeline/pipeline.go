// Package pipeline orchestrates one scan: resolve targets per plugin, run
// the scheduler, snapshot the verdict, then enrich and assemble the result.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/config"
	"github.com/lucidscan/lucidscan/internal/enrich"
	"github.com/lucidscan/lucidscan/internal/registry"
	"github.com/lucidscan/lucidscan/internal/scheduler"
	"github.com/lucidscan/lucidscan/internal/target"
	"github.com/lucidscan/lucidscan/internal/threshold"
	"github.com/lucidscan/lucidscan/internal/types"
)

// Options configures a Runner.
type Options struct {
	Config   *config.Config
	Registry *registry.Registry

	// Detector supplies git-delta change detection. Nil means no repository
	// is available and every partial-capable plugin falls back to a
	// project-wide scan.
	Detector target.ChangeDetector

	Logger  *zap.Logger
	Version string
}

// Runner executes scans against a fixed configuration and plugin registry.
type Runner struct {
	cfg      *config.Config
	registry *registry.Registry
	detector target.ChangeDetector
	logger   *zap.Logger
	version  string
}

// New creates a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("plugin registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Runner{
		cfg:      opts.Config,
		registry: opts.Registry,
		detector: opts.Detector,
		logger:   opts.Logger,
		version:  opts.Version,
	}, nil
}

// Run executes one scan. The returned result always carries an exit code;
// an error return means the scan itself could not be set up.
func (r *Runner) Run(ctx context.Context, sc *types.ScanContext) (*types.ScanResult, error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scan context: %w", err)
	}

	started := time.Now()
	scanID := uuid.NewString()
	r.logger.Info("scan started",
		zap.String("scan_id", scanID),
		zap.String("root", sc.ProjectRoot),
		zap.Int("domains", len(sc.Domains)))

	resolver := target.NewResolver(sc, r.detector, r.logger)
	items := r.buildItems(ctx, sc, resolver)

	sched, err := scheduler.New(scheduler.Config{
		MaxWorkers:    sc.MaxWorkers,
		PluginTimeout: r.cfg.Pipeline.PluginTimeout,
		Logger:        r.logger,
	})
	if err != nil {
		return nil, err
	}

	results := sched.Run(ctx, sc, items)
	batch := scheduler.Aggregate(results)

	// Verdict comes from the raw batch. Enrichment below reshapes the
	// reported issues but can never change what passed or failed.
	evaluator := threshold.NewEvaluator(r.cfg.Policy(), r.logger)
	summaries := evaluator.Evaluate(batch)
	markSkippedDomains(batch, summaries)
	exitCode := threshold.ExitCode(summaries, batch.Errors)

	issues := r.enrichIssues(batch.Issues, sc)

	finished := time.Now()
	result := &types.ScanResult{
		Issues:    issues,
		Summaries: summaries,
		Errors:    batch.Errors,
		ExitCode:  exitCode,
		Metadata: types.ScanMetadata{
			ScanID:      scanID,
			Version:     r.version,
			ProjectRoot: sc.ProjectRoot,
			StartedAt:   started.UTC(),
			FinishedAt:  finished.UTC(),
			DurationMS:  finished.Sub(started).Milliseconds(),
		},
	}

	r.logger.Info("scan finished",
		zap.String("scan_id", scanID),
		zap.Int("issues", len(result.Issues)),
		zap.Int("exit_code", exitCode),
		zap.Duration("duration", finished.Sub(started)))
	return result, nil
}

// buildItems maps the requested domains to registered adapters. A configured
// tool with no registered adapter is logged and dropped; it is a
// configuration gap, not a scan failure.
func (r *Runner) buildItems(ctx context.Context, sc *types.ScanContext, resolver *target.Resolver) []scheduler.WorkItem {
	var items []scheduler.WorkItem
	for _, domain := range sc.Domains {
		for _, name := range r.cfg.ToolsFor(domain) {
			adapter, ok := r.registry.GetForDomain(name, domain)
			if !ok {
				r.logger.Warn("configured tool has no registered plugin",
					zap.String("tool", name),
					zap.String("domain", string(domain)))
				continue
			}
			desc := adapter.Descriptor()
			items = append(items, scheduler.WorkItem{
				Adapter: adapter,
				Targets: resolver.Resolve(ctx, desc),
			})
		}
	}
	return items
}

func (r *Runner) enrichIssues(issues []types.UnifiedIssue, sc *types.ScanContext) []types.UnifiedIssue {
	names := r.cfg.Pipeline.Enrichers
	if len(names) == 0 {
		names = enrich.DefaultOrder()
	}
	enrichers, err := enrich.Build(names, r.cfg.Ignore)
	if err != nil {
		// Caught earlier by config validation; losing enrichment must not
		// lose the scan.
		r.logger.Warn("enrichment disabled", zap.Error(err))
		return issues
	}
	return enrich.NewPipeline(enrichers, r.logger).Run(issues, sc)
}

// markSkippedDomains flags domains where no plugin actually ran. A clean
// working tree leaves partial-capable plugins with nothing to do; the
// summary records that the domain was skipped rather than silently passed.
func markSkippedDomains(batch *scheduler.Batch, summaries map[types.Domain]types.DomainSummary) {
	ran := make(map[types.Domain]bool)
	for _, res := range batch.Results {
		if res.State != scheduler.StateSkipped {
			ran[res.Descriptor.Domain] = true
		}
	}
	for domain, summary := range summaries {
		if !ran[domain] {
			summary.Skipped = true
			summaries[domain] = summary
		}
	}
}
