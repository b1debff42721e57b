package threshold

import (
	"strings"
	"testing"

	"github.com/lucidscan/lucidscan/internal/scheduler"
	"github.com/lucidscan/lucidscan/internal/types"
)

func batchWith(domain types.Domain, severities ...types.Severity) *scheduler.Batch {
	batch := &scheduler.Batch{
		Metrics:   make(map[types.Domain]float64),
		Evaluated: map[types.Domain]bool{domain: true},
	}
	for i, sev := range severities {
		batch.Issues = append(batch.Issues, types.UnifiedIssue{
			ID:       "i" + string(rune('a'+i)),
			Domain:   domain,
			Severity: sev,
			Title:    "x",
		})
	}
	return batch
}

func metricBatch(domain types.Domain, metric float64) *scheduler.Batch {
	return &scheduler.Batch{
		Metrics:   map[types.Domain]float64{domain: metric},
		Evaluated: map[types.Domain]bool{domain: true},
	}
}

func evaluateOne(t *testing.T, policy Policy, batch *scheduler.Batch, domain types.Domain) types.DomainSummary {
	t.Helper()
	summaries := NewEvaluator(policy, nil).Evaluate(batch)
	summary, ok := summaries[domain]
	if !ok {
		t.Fatalf("no summary for %s", domain)
	}
	return summary
}

func TestSecuritySeverityFloor(t *testing.T) {
	tests := []struct {
		name       string
		failOn     string
		severities []types.Severity
		passed     bool
	}{
		{"high floor passes medium", "high", []types.Severity{types.SeverityMedium}, true},
		{"high floor fails high", "high", []types.Severity{types.SeverityHigh}, false},
		{"high floor fails critical", "high", []types.Severity{types.SeverityCritical}, false},
		{"critical floor passes high", "critical", []types.Severity{types.SeverityHigh}, true},
		{"low floor fails info-free low", "low", []types.Severity{types.SeverityLow}, false},
		{"none passes everything", "none", []types.Severity{types.SeverityCritical}, true},
		{"no issues passes", "high", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := DefaultPolicy()
			policy.FailOn["security"] = tt.failOn
			summary := evaluateOne(t, policy, batchWith(types.DomainSAST, tt.severities...), types.DomainSAST)
			if summary.Passed != tt.passed {
				t.Errorf("passed = %v, want %v", summary.Passed, tt.passed)
			}
		})
	}
}

func TestSecurityPolicyCoversAllSubdomains(t *testing.T) {
	policy := DefaultPolicy()
	for _, domain := range []types.Domain{types.DomainSCA, types.DomainSAST, types.DomainIaC, types.DomainContainer} {
		summary := evaluateOne(t, policy, batchWith(domain, types.SeverityHigh), domain)
		if summary.Passed {
			t.Errorf("%s should fail on high with default policy", domain)
		}
	}
}

func TestLintingRules(t *testing.T) {
	tests := []struct {
		name       string
		failOn     string
		severities []types.Severity
		passed     bool
	}{
		{"error passes warnings", "error", []types.Severity{types.SeverityMedium, types.SeverityLow}, true},
		{"error fails high", "error", []types.Severity{types.SeverityHigh}, false},
		{"any fails single info", "any", []types.Severity{types.SeverityInfo}, false},
		{"any passes clean", "any", nil, true},
		{"severity floor accepted", "medium", []types.Severity{types.SeverityMedium}, false},
		{"none ignores everything", "none", []types.Severity{types.SeverityCritical}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := DefaultPolicy()
			policy.FailOn["linting"] = tt.failOn
			summary := evaluateOne(t, policy, batchWith(types.DomainLinting, tt.severities...), types.DomainLinting)
			if summary.Passed != tt.passed {
				t.Errorf("passed = %v, want %v", summary.Passed, tt.passed)
			}
		})
	}
}

func TestTestingFailsOnAnyFailure(t *testing.T) {
	policy := DefaultPolicy()
	summary := evaluateOne(t, policy, batchWith(types.DomainTesting, types.SeverityHigh), types.DomainTesting)
	if summary.Passed {
		t.Error("a test failure must fail the testing domain")
	}

	summary = evaluateOne(t, policy, batchWith(types.DomainTesting), types.DomainTesting)
	if !summary.Passed {
		t.Error("zero failures should pass")
	}
}

func TestCoverageThreshold(t *testing.T) {
	policy := DefaultPolicy()
	policy.CoverageThreshold = 80

	summary := evaluateOne(t, policy, metricBatch(types.DomainCoverage, 85.2), types.DomainCoverage)
	if !summary.Passed {
		t.Error("85.2%% should pass an 80%% floor")
	}
	if summary.Metric == nil || *summary.Metric != 85.2 {
		t.Errorf("metric = %v, want 85.2", summary.Metric)
	}

	summary = evaluateOne(t, policy, metricBatch(types.DomainCoverage, 79.9), types.DomainCoverage)
	if summary.Passed {
		t.Error("79.9%% should fail an 80%% floor")
	}

	// Exactly at threshold passes.
	summary = evaluateOne(t, policy, metricBatch(types.DomainCoverage, 80), types.DomainCoverage)
	if !summary.Passed {
		t.Error("coverage equal to the floor should pass")
	}
}

func TestCoverageWithoutMeasurement(t *testing.T) {
	policy := DefaultPolicy()
	summary := evaluateOne(t, policy, batchWith(types.DomainCoverage), types.DomainCoverage)
	if !summary.Passed {
		t.Error("no metric and no issues should pass")
	}
}

func TestDuplicationThreshold(t *testing.T) {
	policy := DefaultPolicy()
	policy.DuplicationThreshold = 10

	summary := evaluateOne(t, policy, metricBatch(types.DomainDuplication, 4.5), types.DomainDuplication)
	if !summary.Passed {
		t.Error("4.5%% duplication should pass a 10%% ceiling")
	}

	summary = evaluateOne(t, policy, metricBatch(types.DomainDuplication, 12.1), types.DomainDuplication)
	if summary.Passed {
		t.Error("12.1%% duplication should fail a 10%% ceiling")
	}
}

func TestDuplicationLiteralPercentRule(t *testing.T) {
	policy := DefaultPolicy()
	policy.FailOn["duplication"] = "5%"

	summary := evaluateOne(t, policy, metricBatch(types.DomainDuplication, 7), types.DomainDuplication)
	if summary.Passed {
		t.Error("7%% should fail an inline 5%% ceiling")
	}

	summary = evaluateOne(t, policy, metricBatch(types.DomainDuplication, 3), types.DomainDuplication)
	if !summary.Passed {
		t.Error("3%% should pass an inline 5%% ceiling")
	}
}

func TestUnknownRuleNeverFailsDomain(t *testing.T) {
	policy := DefaultPolicy()
	policy.FailOn["coverage"] = "sideways"
	summary := evaluateOne(t, policy, metricBatch(types.DomainCoverage, 1), types.DomainCoverage)
	if !summary.Passed {
		t.Error("unrecognized rule must not fail the domain at evaluation time")
	}
}

func TestExitCodePriority(t *testing.T) {
	passed := map[types.Domain]types.DomainSummary{
		types.DomainLinting: {Domain: types.DomainLinting, Passed: true},
	}
	failed := map[types.Domain]types.DomainSummary{
		types.DomainLinting: {Domain: types.DomainLinting, Passed: false},
	}
	execErr := []types.PluginError{{Plugin: "ruff", Kind: types.ErrorExecution}}
	bootErr := []types.PluginError{{Plugin: "trivy", Kind: types.ErrorToolUnavailable}}

	if got := ExitCode(passed, nil); got != ExitSuccess {
		t.Errorf("clean run exit = %d", got)
	}
	if got := ExitCode(failed, nil); got != ExitThresholdFailed {
		t.Errorf("threshold failure exit = %d", got)
	}
	if got := ExitCode(failed, execErr); got != ExitPluginError {
		t.Errorf("plugin error must outrank threshold failure, got %d", got)
	}
	if got := ExitCode(failed, append(execErr, bootErr...)); got != ExitBootstrapFailure {
		t.Errorf("bootstrap failure must outrank plugin error, got %d", got)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}

	tests := []struct {
		group, rule, wantSubstr string
	}{
		{"security", "severe", "security fail_on"},
		{"testing", "error", "testing fail_on"},
		{"coverage", "under", "coverage fail_on"},
		{"duplication", "lots", "duplication fail_on"},
		{"linting", "sideways", "linting fail_on"},
		{"widgets", "any", "unknown fail_on domain"},
	}
	for _, tt := range tests {
		policy := DefaultPolicy()
		policy.FailOn[tt.group] = tt.rule
		err := policy.Validate()
		if err == nil {
			t.Errorf("%s=%s: expected error", tt.group, tt.rule)
			continue
		}
		if !strings.Contains(err.Error(), tt.wantSubstr) {
			t.Errorf("%s=%s: error %q missing %q", tt.group, tt.rule, err, tt.wantSubstr)
		}
	}

	for _, rule := range []string{"none", "", "5%", "above_threshold"} {
		policy := DefaultPolicy()
		policy.FailOn["duplication"] = rule
		if err := policy.Validate(); err != nil {
			t.Errorf("duplication=%q should validate: %v", rule, err)
		}
	}
}
