package types

import (
	"fmt"
	"sort"
	"strings"
)

// Domain identifies one check category. The set is closed: every issue,
// descriptor, and policy refers to one of these values.
type Domain string

const (
	DomainLinting      Domain = "linting"
	DomainTypeChecking Domain = "type_checking"
	DomainSCA          Domain = "sca"
	DomainSAST         Domain = "sast"
	DomainIaC          Domain = "iac"
	DomainContainer    Domain = "container"
	DomainTesting      Domain = "testing"
	DomainCoverage     Domain = "coverage"
	DomainDuplication  Domain = "duplication"
)

// AllDomains lists every domain in canonical order. The scheduler and
// aggregator use this ordering to keep results deterministic.
var AllDomains = []Domain{
	DomainLinting,
	DomainTypeChecking,
	DomainSCA,
	DomainSAST,
	DomainIaC,
	DomainContainer,
	DomainTesting,
	DomainCoverage,
	DomainDuplication,
}

// IsValid checks if the domain value is part of the closed set
func (d Domain) IsValid() bool {
	for _, known := range AllDomains {
		if d == known {
			return true
		}
	}
	return false
}

// IsSecurity reports whether the domain is one of the security subdomains
// (sca, sast, iac, container). Security domains share the severity-floor
// threshold semantics.
func (d Domain) IsSecurity() bool {
	switch d {
	case DomainSCA, DomainSAST, DomainIaC, DomainContainer:
		return true
	}
	return false
}

// Order returns the domain's position in canonical ordering. Unknown domains
// sort last.
func (d Domain) Order() int {
	for i, known := range AllDomains {
		if d == known {
			return i
		}
	}
	return len(AllDomains)
}

// PolicyGroup maps the domain to its threshold-policy key. All four security
// subdomains share the "security" policy group.
func (d Domain) PolicyGroup() string {
	if d.IsSecurity() {
		return "security"
	}
	return string(d)
}

// ParseDomain converts a user-supplied domain name, accepting the short
// aliases the CLI and MCP tools use.
func ParseDomain(s string) (Domain, error) {
	switch strings.ToLower(s) {
	case "lint", "linting":
		return DomainLinting, nil
	case "typecheck", "type_checking":
		return DomainTypeChecking, nil
	case "sca":
		return DomainSCA, nil
	case "sast", "security":
		return DomainSAST, nil
	case "iac":
		return DomainIaC, nil
	case "container":
		return DomainContainer, nil
	case "test", "testing":
		return DomainTesting, nil
	case "coverage":
		return DomainCoverage, nil
	case "duplication":
		return DomainDuplication, nil
	}
	return "", fmt.Errorf("unknown domain: %q", s)
}

// Severity is the unified severity scale shared by every tool.
// Ordering: critical > high > medium > low > info.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityRank gives lower numbers to more severe values, matching the
// comparison direction of fail_on floors.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s is as severe or more severe than floor.
func (s Severity) AtLeast(floor Severity) bool {
	sr, ok1 := severityRank[s]
	fr, ok2 := severityRank[floor]
	return ok1 && ok2 && sr <= fr
}

// Rank returns the numeric rank used for ordering (0 = critical).
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// ParseSeverity validates a severity string from config or CLI flags.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(s))
	if !sev.IsValid() {
		return "", fmt.Errorf("unknown severity: %q", s)
	}
	return sev, nil
}

// PluginDescriptor describes one registered tool adapter. Descriptors are
// built once at process start by the capability registry and never mutated.
type PluginDescriptor struct {
	Name                string `json:"name"`
	Domain              Domain `json:"domain"`
	SupportsPartialScan bool   `json:"supports_partial_scan"`
	SupportsFix         bool   `json:"supports_fix"`
}

// Validate checks descriptor fields before registration
func (d PluginDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("plugin name is required")
	}
	if !d.Domain.IsValid() {
		return fmt.Errorf("invalid domain for plugin %s: %s", d.Name, d.Domain)
	}
	return nil
}

// UnifiedIssue is the normalized finding record shared across all tools.
// Adapters create issues; enrichers may drop them or add metadata but never
// change severity.
type UnifiedIssue struct {
	ID          string   `json:"id"`
	Domain      Domain   `json:"domain"`
	SourceTool  string   `json:"source_tool"`
	Severity    Severity `json:"severity"`
	RuleID      string   `json:"rule_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`

	FilePath  string `json:"file_path,omitempty"`
	LineStart int    `json:"line_start,omitempty"`
	LineEnd   int    `json:"line_end,omitempty"`
	Column    int    `json:"column,omitempty"`

	Fixable      bool   `json:"fixable,omitempty"`
	SuggestedFix string `json:"suggested_fix,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks required issue fields
func (i *UnifiedIssue) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("issue id is required")
	}
	if !i.Domain.IsValid() {
		return fmt.Errorf("invalid domain: %s", i.Domain)
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", i.Severity)
	}
	if i.Title == "" {
		return fmt.Errorf("issue title is required")
	}
	return nil
}

// SetMetadata attaches an enricher-provided annotation, allocating the map
// on first use.
func (i *UnifiedIssue) SetMetadata(key, value string) {
	if i.Metadata == nil {
		i.Metadata = make(map[string]string)
	}
	i.Metadata[key] = value
}

// SortIssues orders issues canonically: domain order, then source tool, then
// file path, line, and rule id. Two runs over identical inputs produce
// byte-identical ordering.
func SortIssues(issues []UnifiedIssue) {
	sort.SliceStable(issues, func(a, b int) bool {
		ia, ib := issues[a], issues[b]
		if ia.Domain != ib.Domain {
			return ia.Domain.Order() < ib.Domain.Order()
		}
		if ia.SourceTool != ib.SourceTool {
			return ia.SourceTool < ib.SourceTool
		}
		if ia.FilePath != ib.FilePath {
			return ia.FilePath < ib.FilePath
		}
		if ia.LineStart != ib.LineStart {
			return ia.LineStart < ib.LineStart
		}
		return ia.RuleID < ib.RuleID
	})
}
