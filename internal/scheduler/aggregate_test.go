package scheduler

import (
	"reflect"
	"testing"

	"github.com/lucidscan/lucidscan/internal/types"
)

func issue(id string, domain types.Domain, tool string) types.UnifiedIssue {
	return types.UnifiedIssue{
		ID:         id,
		Domain:     domain,
		SourceTool: tool,
		Severity:   types.SeverityLow,
		Title:      "issue " + id,
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	a := ItemResult{
		Descriptor: desc("ruff", types.DomainLinting),
		State:      StateSucceeded,
		Outcome: types.SuccessOutcome("ruff", types.DomainLinting, []types.UnifiedIssue{
			issue("lint-1", types.DomainLinting, "ruff"),
			issue("lint-2", types.DomainLinting, "ruff"),
		}),
	}
	b := ItemResult{
		Descriptor: desc("trivy", types.DomainSAST),
		State:      StateSucceeded,
		Outcome: types.SuccessOutcome("trivy", types.DomainSAST, []types.UnifiedIssue{
			issue("sast-1", types.DomainSAST, "trivy"),
		}),
	}
	c := ItemResult{
		Descriptor: desc("govet", types.DomainTypeChecking),
		State:      StateSucceeded,
		Outcome: types.SuccessOutcome("govet", types.DomainTypeChecking, []types.UnifiedIssue{
			issue("tc-1", types.DomainTypeChecking, "govet"),
		}),
	}

	first := Aggregate([]ItemResult{b, c, a})
	second := Aggregate([]ItemResult{c, a, b})

	wantIDs := []string{"lint-1", "lint-2", "tc-1", "sast-1"}
	ids := func(batch *Batch) []string {
		out := make([]string, 0, len(batch.Issues))
		for _, is := range batch.Issues {
			out = append(out, is.ID)
		}
		return out
	}
	if got := ids(first); !reflect.DeepEqual(got, wantIDs) {
		t.Errorf("issue order = %v, want %v", got, wantIDs)
	}
	if !reflect.DeepEqual(ids(first), ids(second)) {
		t.Error("aggregation depends on completion order")
	}
}

func TestAggregateSamePluginNameSortsByDomain(t *testing.T) {
	iac := ItemResult{
		Descriptor: desc("trivy", types.DomainIaC),
		State:      StateSucceeded,
		Outcome: types.SuccessOutcome("trivy", types.DomainIaC,
			[]types.UnifiedIssue{issue("iac-1", types.DomainIaC, "trivy")}),
	}
	sca := ItemResult{
		Descriptor: desc("trivy", types.DomainSCA),
		State:      StateSucceeded,
		Outcome: types.SuccessOutcome("trivy", types.DomainSCA,
			[]types.UnifiedIssue{issue("sca-1", types.DomainSCA, "trivy")}),
	}

	batch := Aggregate([]ItemResult{iac, sca})
	if batch.Issues[0].ID != "sca-1" || batch.Issues[1].ID != "iac-1" {
		t.Errorf("got order %s, %s; want sca before iac", batch.Issues[0].ID, batch.Issues[1].ID)
	}
}

func TestAggregateDisambiguatesDuplicateIDs(t *testing.T) {
	res := ItemResult{
		Descriptor: desc("ruff", types.DomainLinting),
		State:      StateSucceeded,
		Outcome: types.SuccessOutcome("ruff", types.DomainLinting, []types.UnifiedIssue{
			issue("dup", types.DomainLinting, "ruff"),
			issue("dup", types.DomainLinting, "ruff"),
			issue("dup", types.DomainLinting, "ruff"),
		}),
	}

	batch := Aggregate([]ItemResult{res})
	got := []string{batch.Issues[0].ID, batch.Issues[1].ID, batch.Issues[2].ID}
	want := []string{"dup", "dup-2", "dup-3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
}

func TestAggregateFirstMetricPerDomainWins(t *testing.T) {
	primary := ItemResult{
		Descriptor: desc("gocover", types.DomainCoverage),
		State:      StateSucceeded,
		Outcome:    types.MetricOutcome("gocover", types.DomainCoverage, nil, 83.5),
	}
	secondary := ItemResult{
		Descriptor: desc("zcover", types.DomainCoverage),
		State:      StateSucceeded,
		Outcome:    types.MetricOutcome("zcover", types.DomainCoverage, nil, 12.0),
	}

	batch := Aggregate([]ItemResult{secondary, primary})
	if got := batch.Metrics[types.DomainCoverage]; got != 83.5 {
		t.Errorf("coverage metric = %v, want 83.5 from first plugin in name order", got)
	}
}

func TestAggregateCollectsErrorsAndEvaluatedDomains(t *testing.T) {
	failed := ItemResult{
		Descriptor: desc("trivy", types.DomainIaC),
		State:      StateFailed,
		Outcome:    types.ErrorOutcome("trivy", types.DomainIaC, types.ErrorExecution, "boom"),
	}
	skipped := ItemResult{
		Descriptor: desc("ruff", types.DomainLinting),
		State:      StateSkipped,
		Outcome:    types.SuccessOutcome("ruff", types.DomainLinting, nil),
	}

	batch := Aggregate([]ItemResult{failed, skipped})

	if len(batch.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(batch.Errors))
	}
	if batch.Errors[0].Plugin != "trivy" {
		t.Errorf("error plugin = %s", batch.Errors[0].Plugin)
	}
	if !batch.Evaluated[types.DomainIaC] || !batch.Evaluated[types.DomainLinting] {
		t.Error("both scheduled domains should be marked evaluated")
	}
	if batch.Evaluated[types.DomainSAST] {
		t.Error("unscheduled domain must not be evaluated")
	}
	if got := batch.FailuresByDomain()[types.DomainIaC]; got != 1 {
		t.Errorf("iac failures = %d, want 1", got)
	}
}

func TestIssuesByDomainPreservesOrder(t *testing.T) {
	res := ItemResult{
		Descriptor: desc("ruff", types.DomainLinting),
		State:      StateSucceeded,
		Outcome: types.SuccessOutcome("ruff", types.DomainLinting, []types.UnifiedIssue{
			issue("a", types.DomainLinting, "ruff"),
			issue("b", types.DomainLinting, "ruff"),
		}),
	}

	grouped := Aggregate([]ItemResult{res}).IssuesByDomain()
	lint := grouped[types.DomainLinting]
	if len(lint) != 2 || lint[0].ID != "a" || lint[1].ID != "b" {
		t.Errorf("grouped issues = %v", lint)
	}
}
