// Package scheduler runs plugin invocations under a bounded worker pool
// with per-plugin timeouts and failure isolation.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lucidscan/lucidscan/internal/plugin"
	"github.com/lucidscan/lucidscan/internal/types"
)

// ItemState tracks one work item through its lifecycle.
// Transitions: Pending -> Running -> {Succeeded, Failed, Cancelled}, or
// Pending -> Skipped when the item never starts.
type ItemState string

const (
	StatePending   ItemState = "pending"
	StateRunning   ItemState = "running"
	StateSucceeded ItemState = "succeeded"
	StateFailed    ItemState = "failed"
	StateSkipped   ItemState = "skipped"
	StateCancelled ItemState = "cancelled"
)

// IsTerminal reports whether the state is final.
func (s ItemState) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateSkipped, StateCancelled:
		return true
	}
	return false
}

// WorkItem is one (domain, plugin, targets) invocation.
type WorkItem struct {
	Adapter plugin.Adapter
	Targets types.TargetSet
}

// ItemResult pairs a finished work item with its terminal state and outcome.
type ItemResult struct {
	Descriptor types.PluginDescriptor
	State      ItemState
	Outcome    types.PluginOutcome
}

// Config holds scheduler configuration
type Config struct {
	// MaxWorkers bounds concurrent plugin invocations.
	MaxWorkers int

	// PluginTimeout is the per-plugin execution budget. One hung tool can
	// only occupy its pool slot for this long.
	PluginTimeout time.Duration

	// Logger for structured logging. Defaults to a nop logger.
	Logger *zap.Logger
}

// DefaultConfig returns scheduler defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:    4,
		PluginTimeout: 10 * time.Minute,
	}
}

// Scheduler executes a batch of work items for one scan.
type Scheduler struct {
	maxWorkers    int
	pluginTimeout time.Duration
	logger        *zap.Logger
}

// New creates a scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.MaxWorkers < 1 {
		return nil, fmt.Errorf("max workers must be at least 1 (got %d)", cfg.MaxWorkers)
	}
	if cfg.PluginTimeout <= 0 {
		cfg.PluginTimeout = DefaultConfig().PluginTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scheduler{
		maxWorkers:    cfg.MaxWorkers,
		pluginTimeout: cfg.PluginTimeout,
		logger:        cfg.Logger,
	}, nil
}

// Run executes all work items and returns their results in arrival order.
//
// Items with an empty concrete target set are skipped without invoking the
// adapter and report zero issues. A failed or cancelled item never blocks or
// cancels its siblings; each failure becomes exactly one PluginError in the
// item's outcome. The caller restores deterministic ordering afterwards via
// Aggregate.
//
// The collector below is the single writer of the results slice; workers
// only send on the completions channel.
func (s *Scheduler) Run(ctx context.Context, sc *types.ScanContext, items []WorkItem) []ItemResult {
	results := make([]ItemResult, 0, len(items))
	// Buffered so a finishing worker never blocks behind the submit loop
	// waiting on a pool slot.
	completions := make(chan ItemResult, len(items))

	sem := semaphore.NewWeighted(int64(s.maxWorkers))
	launched := 0

	for _, item := range items {
		desc := item.Adapter.Descriptor()

		if item.Targets.IsEmpty() {
			s.logger.Debug("skipping plugin with empty target set",
				zap.String("plugin", desc.Name),
				zap.String("domain", string(desc.Domain)))
			results = append(results, ItemResult{
				Descriptor: desc,
				State:      StateSkipped,
				Outcome:    types.SuccessOutcome(desc.Name, desc.Domain, nil),
			})
			continue
		}

		// Scan-wide cancellation: items that have not acquired a slot yet
		// go straight to Skipped.
		if err := sem.Acquire(ctx, 1); err != nil {
			results = append(results, ItemResult{
				Descriptor: desc,
				State:      StateSkipped,
				Outcome: types.ErrorOutcome(desc.Name, desc.Domain,
					types.ErrorTimeout, "scan cancelled before plugin started"),
			})
			continue
		}

		launched++
		go func(item WorkItem, desc types.PluginDescriptor) {
			defer sem.Release(1)
			completions <- s.runOne(ctx, sc, item, desc)
		}(item, desc)
	}

	// Collect completed outcomes in arrival order. Single-writer accumulation:
	// no other goroutine touches results.
	for i := 0; i < launched; i++ {
		results = append(results, <-completions)
	}

	return results
}

// runOne invokes a single adapter under the per-plugin timeout, converting
// panics and timeouts into failed outcomes.
func (s *Scheduler) runOne(ctx context.Context, sc *types.ScanContext, item WorkItem, desc types.PluginDescriptor) (res ItemResult) {
	itemCtx, cancel := context.WithTimeout(ctx, s.pluginTimeout)
	defer cancel()

	start := time.Now()
	s.logger.Debug("running plugin",
		zap.String("plugin", desc.Name),
		zap.String("domain", string(desc.Domain)),
		zap.String("targets", item.Targets.String()))

	// A panicking adapter is a failed item, not a crashed scan.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("plugin panicked",
				zap.String("plugin", desc.Name),
				zap.Any("panic", r))
			res = ItemResult{
				Descriptor: desc,
				State:      StateFailed,
				Outcome: types.ErrorOutcome(desc.Name, desc.Domain,
					types.ErrorExecution, fmt.Sprintf("adapter panic: %v", r)),
			}
		}
	}()

	// Lazy provisioning before first use: a tool that cannot be provisioned
	// fails only its own item.
	if p, ok := item.Adapter.(Provisionable); ok {
		if err := p.EnsureTool(itemCtx); err != nil {
			return ItemResult{
				Descriptor: desc,
				State:      StateFailed,
				Outcome: types.ErrorOutcome(desc.Name, desc.Domain,
					types.ErrorToolUnavailable, err.Error()),
			}
		}
	}

	outcome := item.Adapter.Execute(itemCtx, sc, item.Targets)
	outcome.Duration = time.Since(start)

	state := StateSucceeded
	if outcome.Err != nil {
		state = StateFailed
		if outcome.Err.Kind == types.ErrorTimeout {
			state = StateCancelled
		}
		s.logger.Warn("plugin failed",
			zap.String("plugin", desc.Name),
			zap.String("kind", string(outcome.Err.Kind)),
			zap.String("message", outcome.Err.Message))
	} else {
		s.logger.Debug("plugin finished",
			zap.String("plugin", desc.Name),
			zap.Int("issues", len(outcome.Issues)),
			zap.Duration("duration", outcome.Duration))
	}

	return ItemResult{Descriptor: desc, State: state, Outcome: outcome}
}

// Provisionable is implemented by adapters whose tool must be installed
// before first use. The scheduler calls EnsureTool lazily, inside the item's
// timeout, so provisioning failures isolate to the owning item.
type Provisionable interface {
	EnsureTool(ctx context.Context) error
}
