// Package threshold decides per-domain pass/fail and the overall exit code
// from the pre-enrichment outcome snapshot.
package threshold

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/scheduler"
	"github.com/lucidscan/lucidscan/internal/types"
)

// Exit codes. The contract is bit-exact; automation depends on it.
const (
	ExitSuccess          = 0 // all domains passed
	ExitThresholdFailed  = 1 // at least one domain threshold failed
	ExitPluginError      = 2 // at least one plugin failed to execute
	ExitConfigError      = 3 // configuration error, scan not attempted
	ExitBootstrapFailure = 4 // tool provisioning failure
)

// Policy holds the declarative per-domain failure rules from configuration.
// Values are consumed as opaque strings; the grammar per policy group:
//
//	security:      severity name (floor) or "none"
//	linting:       "error", "any", "none"
//	type_checking: "error", "any", "none"
//	testing:       "any", "none"
//	coverage:      "below_threshold", "none"
//	duplication:   "above_threshold", a literal "NN%", or "none"
type Policy struct {
	// FailOn maps policy group names to threshold values. The four
	// security subdomains share the "security" entry.
	FailOn map[string]string

	// CoverageThreshold is the minimum acceptable coverage percentage.
	CoverageThreshold float64

	// DuplicationThreshold is the maximum acceptable duplication percentage.
	DuplicationThreshold float64
}

// DefaultPolicy mirrors the documented defaults: security fails from high
// up, linting and type checking fail on errors, testing fails on any
// failure, coverage floor 80%, duplication ceiling 10%.
func DefaultPolicy() Policy {
	return Policy{
		FailOn: map[string]string{
			"security":      string(types.SeverityHigh),
			"linting":       "error",
			"type_checking": "error",
			"testing":       "any",
			"coverage":      "below_threshold",
			"duplication":   "above_threshold",
		},
		CoverageThreshold:    80.0,
		DuplicationThreshold: 10.0,
	}
}

// Evaluator computes domain verdicts from raw plugin outcomes.
type Evaluator struct {
	policy Policy
	logger *zap.Logger
}

// NewEvaluator creates an evaluator for one policy.
func NewEvaluator(policy Policy, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.FailOn == nil {
		policy.FailOn = DefaultPolicy().FailOn
	}
	return &Evaluator{policy: policy, logger: logger}
}

// Evaluate builds per-domain summaries from the aggregated batch. The input
// is the snapshot taken immediately after scheduling, before any enricher
// runs; each domain's decision is independent.
func (e *Evaluator) Evaluate(batch *scheduler.Batch) map[types.Domain]types.DomainSummary {
	summaries := make(map[types.Domain]types.DomainSummary)

	grouped := batch.IssuesByDomain()
	failures := batch.FailuresByDomain()

	for domain := range batch.Evaluated {
		issues := grouped[domain]

		counts := make(map[types.Severity]int)
		for _, issue := range issues {
			counts[issue.Severity]++
		}

		summary := types.DomainSummary{
			Domain:   domain,
			Counts:   counts,
			Total:    len(issues),
			Failures: failures[domain],
		}
		if metric, ok := batch.Metrics[domain]; ok {
			m := metric
			summary.Metric = &m
		}

		summary.Passed = e.domainPassed(domain, &summary)
		if !summary.Passed {
			e.logger.Debug("domain failed threshold",
				zap.String("domain", string(domain)),
				zap.Int("issues", summary.Total))
		}
		summaries[domain] = summary
	}

	return summaries
}

// ExitCode computes the overall exit code from summaries and recorded
// plugin errors. Priority, highest wins: config error (3, handled upstream
// before any scan) > bootstrap failure (4) > plugin execution error (2) >
// threshold failure (1) > success (0). A tool crash is therefore reported
// distinctly from "issues found" even when no threshold was crossed.
func ExitCode(summaries map[types.Domain]types.DomainSummary, pluginErrors []types.PluginError) int {
	for _, pe := range pluginErrors {
		if pe.Kind == types.ErrorToolUnavailable {
			return ExitBootstrapFailure
		}
	}
	if len(pluginErrors) > 0 {
		return ExitPluginError
	}
	for _, s := range summaries {
		if !s.Passed {
			return ExitThresholdFailed
		}
	}
	return ExitSuccess
}

// domainPassed applies the policy group's rule to one domain summary.
func (e *Evaluator) domainPassed(domain types.Domain, summary *types.DomainSummary) bool {
	rule, ok := e.policy.FailOn[domain.PolicyGroup()]
	if !ok || rule == "" || rule == "none" {
		return true
	}

	switch domain {
	case types.DomainCoverage:
		return e.coveragePassed(rule, summary)
	case types.DomainDuplication:
		return e.duplicationPassed(rule, summary)
	}

	if domain.IsSecurity() {
		return e.severityFloorPassed(rule, summary)
	}

	// linting, type_checking, testing
	switch rule {
	case "any":
		return summary.Total == 0
	case "error":
		// Errors map to high and critical on the unified scale.
		return summary.Counts[types.SeverityCritical] == 0 &&
			summary.Counts[types.SeverityHigh] == 0
	}

	// Unknown rules for these domains fall back to the severity floor
	// interpretation so a configured "medium" still means something.
	return e.severityFloorPassed(rule, summary)
}

func (e *Evaluator) severityFloorPassed(rule string, summary *types.DomainSummary) bool {
	floor, err := types.ParseSeverity(rule)
	if err != nil {
		e.logger.Warn("unrecognized fail_on value, domain passes",
			zap.String("domain", string(summary.Domain)),
			zap.String("fail_on", rule))
		return true
	}
	for sev, n := range summary.Counts {
		if n > 0 && sev.AtLeast(floor) {
			return false
		}
	}
	return true
}

func (e *Evaluator) coveragePassed(rule string, summary *types.DomainSummary) bool {
	if rule != "below_threshold" {
		e.logger.Warn("unrecognized coverage fail_on value, domain passes",
			zap.String("fail_on", rule))
		return true
	}
	if summary.Metric == nil {
		// No measurement (e.g. the coverage tool was skipped): nothing to
		// compare, issue-free coverage passes.
		return summary.Total == 0
	}
	return *summary.Metric >= e.policy.CoverageThreshold
}

func (e *Evaluator) duplicationPassed(rule string, summary *types.DomainSummary) bool {
	limit := e.policy.DuplicationThreshold
	switch {
	case rule == "above_threshold":
	case strings.HasSuffix(rule, "%"):
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(rule, "%"), 64)
		if err != nil {
			e.logger.Warn("invalid duplication percentage threshold",
				zap.String("fail_on", rule))
			return true
		}
		limit = parsed
	default:
		e.logger.Warn("unrecognized duplication fail_on value, domain passes",
			zap.String("fail_on", rule))
		return true
	}
	if summary.Metric == nil {
		return summary.Total == 0
	}
	return *summary.Metric <= limit
}

// Validate checks a policy's fail_on grammar up front so bad configuration
// surfaces as a configuration error instead of a silently passing domain.
func (p Policy) Validate() error {
	for group, rule := range p.FailOn {
		if rule == "" || rule == "none" {
			continue
		}
		switch group {
		case "security":
			if _, err := types.ParseSeverity(rule); err != nil {
				return fmt.Errorf("security fail_on: %w", err)
			}
		case "linting", "type_checking":
			if rule != "error" && rule != "any" {
				if _, err := types.ParseSeverity(rule); err != nil {
					return fmt.Errorf("%s fail_on must be error, any, none, or a severity (got %q)", group, rule)
				}
			}
		case "testing":
			if rule != "any" {
				return fmt.Errorf("testing fail_on must be any or none (got %q)", rule)
			}
		case "coverage":
			if rule != "below_threshold" {
				return fmt.Errorf("coverage fail_on must be below_threshold or none (got %q)", rule)
			}
		case "duplication":
			if rule != "above_threshold" && !strings.HasSuffix(rule, "%") {
				return fmt.Errorf("duplication fail_on must be above_threshold, a percentage, or none (got %q)", rule)
			}
		default:
			return fmt.Errorf("unknown fail_on domain: %q", group)
		}
	}
	return nil
}
