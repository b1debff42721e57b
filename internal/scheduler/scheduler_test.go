package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lucidscan/lucidscan/internal/types"
)

type fakeAdapter struct {
	desc    types.PluginDescriptor
	outcome types.PluginOutcome
	execute func(ctx context.Context) types.PluginOutcome

	calls        atomic.Int32
	provisionErr error
	provisioned  atomic.Int32
}

func (f *fakeAdapter) Descriptor() types.PluginDescriptor { return f.desc }

func (f *fakeAdapter) Execute(ctx context.Context, sc *types.ScanContext, targets types.TargetSet) types.PluginOutcome {
	f.calls.Add(1)
	if f.execute != nil {
		return f.execute(ctx)
	}
	return f.outcome
}

type provisionableAdapter struct {
	fakeAdapter
}

func (p *provisionableAdapter) EnsureTool(ctx context.Context) error {
	p.provisioned.Add(1)
	return p.provisionErr
}

func testScanContext() *types.ScanContext {
	return &types.ScanContext{
		ProjectRoot: "/tmp/project",
		Domains:     []types.Domain{types.DomainLinting},
		MaxWorkers:  4,
	}
}

func desc(name string, domain types.Domain) types.PluginDescriptor {
	return types.PluginDescriptor{Name: name, Domain: domain, SupportsPartialScan: true}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{MaxWorkers: 0}); err == nil {
		t.Error("expected error for zero workers")
	}
	s, err := New(Config{MaxWorkers: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.pluginTimeout != DefaultConfig().PluginTimeout {
		t.Errorf("timeout default not applied: %v", s.pluginTimeout)
	}
}

func TestRunSkipsEmptyTargetSets(t *testing.T) {
	adapter := &fakeAdapter{desc: desc("ruff", types.DomainLinting)}
	s, _ := New(Config{MaxWorkers: 2})

	results := s.Run(context.Background(), testScanContext(), []WorkItem{
		{Adapter: adapter, Targets: types.FileTargets(nil)},
	})

	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].State != StateSkipped {
		t.Errorf("state = %s, want skipped", results[0].State)
	}
	if adapter.calls.Load() != 0 {
		t.Error("skipped adapter must not execute")
	}
	if results[0].Outcome.Err != nil {
		t.Error("skipped item reports success with zero issues")
	}
}

func TestRunFailureIsolation(t *testing.T) {
	ok := &fakeAdapter{
		desc: desc("ruff", types.DomainLinting),
		outcome: types.SuccessOutcome("ruff", types.DomainLinting, []types.UnifiedIssue{
			{ID: "a", Domain: types.DomainLinting, SourceTool: "ruff", Severity: types.SeverityLow, Title: "x"},
		}),
	}
	failing := &fakeAdapter{
		desc:    desc("trivy", types.DomainIaC),
		outcome: types.ErrorOutcome("trivy", types.DomainIaC, types.ErrorExecution, "boom"),
	}
	panicking := &fakeAdapter{
		desc:    desc("duplo", types.DomainDuplication),
		execute: func(ctx context.Context) types.PluginOutcome { panic("adapter bug") },
	}

	s, _ := New(Config{MaxWorkers: 4})
	results := s.Run(context.Background(), testScanContext(), []WorkItem{
		{Adapter: ok, Targets: types.ProjectWideTargets()},
		{Adapter: failing, Targets: types.ProjectWideTargets()},
		{Adapter: panicking, Targets: types.ProjectWideTargets()},
	})

	states := make(map[string]ItemState)
	for _, res := range results {
		states[res.Descriptor.Name] = res.State
	}
	if states["ruff"] != StateSucceeded {
		t.Errorf("ruff state = %s", states["ruff"])
	}
	if states["trivy"] != StateFailed {
		t.Errorf("trivy state = %s", states["trivy"])
	}
	if states["duplo"] != StateFailed {
		t.Errorf("panicking adapter state = %s, want failed", states["duplo"])
	}
}

func TestRunTimeoutBecomesCancelled(t *testing.T) {
	slow := &fakeAdapter{
		desc: desc("slow", types.DomainLinting),
		execute: func(ctx context.Context) types.PluginOutcome {
			<-ctx.Done()
			return types.ErrorOutcome("slow", types.DomainLinting, types.ErrorTimeout, "timed out")
		},
	}

	s, _ := New(Config{MaxWorkers: 1, PluginTimeout: 20 * time.Millisecond})
	results := s.Run(context.Background(), testScanContext(), []WorkItem{
		{Adapter: slow, Targets: types.ProjectWideTargets()},
	})

	if results[0].State != StateCancelled {
		t.Errorf("state = %s, want cancelled", results[0].State)
	}
}

func TestRunProvisioningFailure(t *testing.T) {
	adapter := &provisionableAdapter{
		fakeAdapter: fakeAdapter{desc: desc("trivy", types.DomainIaC)},
	}
	adapter.provisionErr = errors.New("download failed")

	s, _ := New(Config{MaxWorkers: 1})
	results := s.Run(context.Background(), testScanContext(), []WorkItem{
		{Adapter: adapter, Targets: types.ProjectWideTargets()},
	})

	if results[0].State != StateFailed {
		t.Fatalf("state = %s", results[0].State)
	}
	if results[0].Outcome.Err.Kind != types.ErrorToolUnavailable {
		t.Errorf("kind = %s, want tool_unavailable", results[0].Outcome.Err.Kind)
	}
	if adapter.calls.Load() != 0 {
		t.Error("adapter must not execute after provisioning failure")
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	makeAdapter := func(name string) *fakeAdapter {
		return &fakeAdapter{
			desc: desc(name, types.DomainLinting),
			execute: func(ctx context.Context) types.PluginOutcome {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return types.SuccessOutcome(name, types.DomainLinting, nil)
			},
		}
	}

	items := []WorkItem{
		{Adapter: makeAdapter("a"), Targets: types.ProjectWideTargets()},
		{Adapter: makeAdapter("b"), Targets: types.ProjectWideTargets()},
		{Adapter: makeAdapter("c"), Targets: types.ProjectWideTargets()},
		{Adapter: makeAdapter("d"), Targets: types.ProjectWideTargets()},
	}

	s, _ := New(Config{MaxWorkers: 2})
	results := s.Run(context.Background(), testScanContext(), items)

	if len(results) != 4 {
		t.Fatalf("got %d results", len(results))
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d exceeded pool size 2", peak.Load())
	}
}

func TestRunCancelledScanSkipsPendingItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapter := &fakeAdapter{desc: desc("ruff", types.DomainLinting)}
	s, _ := New(Config{MaxWorkers: 1})
	results := s.Run(ctx, testScanContext(), []WorkItem{
		{Adapter: adapter, Targets: types.ProjectWideTargets()},
	})

	if results[0].State != StateSkipped {
		t.Errorf("state = %s, want skipped", results[0].State)
	}
}

func TestRunOverlapsMixedDurations(t *testing.T) {
	sleeper := func(name string, domain types.Domain, d time.Duration) *fakeAdapter {
		return &fakeAdapter{
			desc: desc(name, domain),
			execute: func(ctx context.Context) types.PluginOutcome {
				time.Sleep(d)
				return types.SuccessOutcome(name, domain, nil)
			},
		}
	}
	crashing := &fakeAdapter{
		desc: desc("trivy", types.DomainIaC),
		execute: func(ctx context.Context) types.PluginOutcome {
			time.Sleep(80 * time.Millisecond)
			return types.ErrorOutcome("trivy", types.DomainIaC, types.ErrorExecution, "scanner crashed")
		},
	}

	s, _ := New(Config{MaxWorkers: 2})
	start := time.Now()
	results := s.Run(context.Background(), testScanContext(), []WorkItem{
		{Adapter: sleeper("ruff", types.DomainLinting, 40*time.Millisecond), Targets: types.ProjectWideTargets()},
		{Adapter: sleeper("govet", types.DomainTypeChecking, 40*time.Millisecond), Targets: types.ProjectWideTargets()},
		{Adapter: sleeper("duplo", types.DomainDuplication, 200*time.Millisecond), Targets: types.ProjectWideTargets()},
		{Adapter: crashing, Targets: types.ProjectWideTargets()},
	})
	elapsed := time.Since(start)

	var succeeded, failed int
	for _, res := range results {
		switch res.State {
		case StateSucceeded:
			succeeded++
		case StateFailed:
			failed++
			if res.Outcome.Err == nil || res.Outcome.Err.Kind != types.ErrorExecution {
				t.Errorf("failed item outcome = %+v, want execution error", res.Outcome.Err)
			}
		default:
			t.Errorf("unexpected state %s for %s", res.State, res.Descriptor.Name)
		}
	}
	if succeeded != 3 {
		t.Errorf("succeeded = %d, want 3", succeeded)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	// Two pool slots: one lane runs 40ms+200ms, the other 40ms+80ms, so the
	// batch finishes near 240ms. Running the items back to back would take
	// 360ms; the ceiling catches a scheduler that stopped overlapping.
	if elapsed >= 320*time.Millisecond {
		t.Errorf("elapsed = %v, items did not run concurrently", elapsed)
	}
}

func TestItemStateIsTerminal(t *testing.T) {
	for _, s := range []ItemState{StateSucceeded, StateFailed, StateSkipped, StateCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []ItemState{StatePending, StateRunning} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
