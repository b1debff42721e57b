package types

import (
	"fmt"
	"time"
)

// ErrorKind classifies why a plugin invocation failed.
type ErrorKind string

const (
	// ErrorToolUnavailable means provisioning could not produce a runnable binary.
	ErrorToolUnavailable ErrorKind = "tool_unavailable"
	// ErrorExecution means the tool ran but crashed or returned an error the
	// adapter recognizes as a real failure.
	ErrorExecution ErrorKind = "execution_failure"
	// ErrorParse means the tool produced output the adapter could not parse.
	ErrorParse ErrorKind = "parse_failure"
	// ErrorTimeout means the plugin exceeded its allotted duration or the
	// scan was cancelled while it ran.
	ErrorTimeout ErrorKind = "timeout"
)

// PluginError is the structured record of one failed plugin invocation.
// Failures never abort sibling plugins; they surface in the final report.
type PluginError struct {
	Plugin  string    `json:"plugin"`
	Domain  Domain    `json:"domain"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("%s (%s): %s: %s", e.Plugin, e.Domain, e.Kind, e.Message)
}

// PluginOutcome is the tagged result of exactly one plugin invocation:
// either a list of issues (success, possibly empty) or a PluginError.
type PluginOutcome struct {
	Plugin string
	Domain Domain
	Issues []UnifiedIssue
	Err    *PluginError

	// Metric holds the measured percentage for metric domains
	// (coverage, duplication). Nil for other domains.
	Metric *float64

	// Duration of the adapter call, recorded by the scheduler.
	Duration time.Duration
}

// Succeeded reports whether the invocation completed without a plugin error.
func (o PluginOutcome) Succeeded() bool { return o.Err == nil }

// SuccessOutcome builds a successful outcome for a plugin.
func SuccessOutcome(plugin string, domain Domain, issues []UnifiedIssue) PluginOutcome {
	return PluginOutcome{Plugin: plugin, Domain: domain, Issues: issues}
}

// MetricOutcome builds a successful outcome carrying a measured percentage.
func MetricOutcome(plugin string, domain Domain, issues []UnifiedIssue, metric float64) PluginOutcome {
	return PluginOutcome{Plugin: plugin, Domain: domain, Issues: issues, Metric: &metric}
}

// ErrorOutcome builds a failed outcome.
func ErrorOutcome(plugin string, domain Domain, kind ErrorKind, msg string) PluginOutcome {
	return PluginOutcome{
		Plugin: plugin,
		Domain: domain,
		Err:    &PluginError{Plugin: plugin, Domain: domain, Kind: kind, Message: msg},
	}
}

// DomainSummary captures one domain's pre-enrichment verdict: severity
// counts, optional metric, and the pass/fail decision. The decision is fixed
// before enrichers run, so an enricher can never suppress a failing build.
type DomainSummary struct {
	Domain   Domain           `json:"domain"`
	Counts   map[Severity]int `json:"counts"`
	Total    int              `json:"total"`
	Metric   *float64         `json:"metric,omitempty"`
	Passed   bool             `json:"passed"`
	Skipped  bool             `json:"skipped,omitempty"`
	Failures int              `json:"plugin_failures,omitempty"`
}

// HighestSeverity returns the most severe level present, or "" when the
// domain produced no issues.
func (s *DomainSummary) HighestSeverity() Severity {
	var highest Severity
	for sev, n := range s.Counts {
		if n == 0 {
			continue
		}
		if highest == "" || sev.AtLeast(highest) {
			highest = sev
		}
	}
	return highest
}

// ScanMetadata records provenance for one scan.
type ScanMetadata struct {
	ScanID      string    `json:"scan_id"`
	Version     string    `json:"version"`
	ProjectRoot string    `json:"project_root"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// ScanResult is the aggregated, post-enrichment output of one scan. Built
// once at the end of a scan; reporters treat it as read-only.
type ScanResult struct {
	Issues    []UnifiedIssue           `json:"issues"`
	Summaries map[Domain]DomainSummary `json:"summaries"`
	Errors    []PluginError            `json:"errors,omitempty"`
	ExitCode  int                      `json:"exit_code"`
	Metadata  ScanMetadata             `json:"metadata"`
}

// CountBySeverity tallies post-enrichment issues per severity level.
func (r *ScanResult) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, issue := range r.Issues {
		counts[issue.Severity]++
	}
	return counts
}

// Passed reports whether every evaluated domain passed and no plugin failed.
func (r *ScanResult) Passed() bool {
	return r.ExitCode == 0
}
