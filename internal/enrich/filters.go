package enrich

import (
	"fmt"
	"path"
	"strings"

	"github.com/lucidscan/lucidscan/internal/types"
)

// IgnoreRule suppresses issues matching a rule id and optional path glob.
// An empty RuleID matches any rule; an empty Path matches any file.
type IgnoreRule struct {
	RuleID string `koanf:"rule" json:"rule,omitempty"`
	Path   string `koanf:"path" json:"path,omitempty"`
	Tool   string `koanf:"tool" json:"tool,omitempty"`
	Reason string `koanf:"reason" json:"reason,omitempty"`
}

// Matches reports whether the rule suppresses the issue.
func (r IgnoreRule) Matches(issue *types.UnifiedIssue) bool {
	if r.RuleID != "" && !strings.EqualFold(r.RuleID, issue.RuleID) {
		return false
	}
	if r.Tool != "" && !strings.EqualFold(r.Tool, issue.SourceTool) {
		return false
	}
	if r.Path != "" {
		p := strings.ToLower(issue.FilePath)
		glob := strings.ToLower(r.Path)
		if ok, err := path.Match(glob, p); err != nil || !ok {
			if !strings.HasPrefix(p, strings.TrimSuffix(glob, "/**")+"/") {
				return false
			}
		}
	}
	return true
}

// IgnoreFilter drops issues matching any configured ignore rule. A rule
// with neither rule id, tool, nor path is rejected at construction so a
// typo cannot silently suppress everything.
type IgnoreFilter struct {
	rules []IgnoreRule
}

// NewIgnoreFilter creates the ignore enricher.
func NewIgnoreFilter(rules []IgnoreRule) *IgnoreFilter {
	return &IgnoreFilter{rules: rules}
}

// Name implements Enricher.
func (f *IgnoreFilter) Name() string { return "ignore" }

// Enrich implements Enricher.
func (f *IgnoreFilter) Enrich(issues []types.UnifiedIssue, _ *types.ScanContext) ([]types.UnifiedIssue, error) {
	for _, r := range f.rules {
		if r.RuleID == "" && r.Path == "" && r.Tool == "" {
			return nil, fmt.Errorf("ignore rule must set at least one of rule, path, tool")
		}
	}

	kept := make([]types.UnifiedIssue, 0, len(issues))
	for _, issue := range issues {
		suppressed := false
		for _, r := range f.rules {
			if r.Matches(&issue) {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, issue)
		}
	}
	return kept, nil
}

// riskWeights biases the static risk score toward domains whose findings
// are directly exploitable.
var riskWeights = map[types.Domain]float64{
	types.DomainSCA:       1.5,
	types.DomainSAST:      1.5,
	types.DomainIaC:       1.3,
	types.DomainContainer: 1.3,
}

// RiskScorer annotates every issue with a deterministic risk score derived
// from severity and domain. Augmentation only: no issue is added, dropped,
// or re-scored in severity terms.
type RiskScorer struct{}

// NewRiskScorer creates the risk score enricher.
func NewRiskScorer() *RiskScorer { return &RiskScorer{} }

// Name implements Enricher.
func (s *RiskScorer) Name() string { return "risk_score" }

// Enrich implements Enricher.
func (s *RiskScorer) Enrich(issues []types.UnifiedIssue, _ *types.ScanContext) ([]types.UnifiedIssue, error) {
	out := make([]types.UnifiedIssue, len(issues))
	copy(out, issues)
	for i := range out {
		base := float64(10 - 2*out[i].Severity.Rank())
		weight := riskWeights[out[i].Domain]
		if weight == 0 {
			weight = 1.0
		}
		out[i].SetMetadata("risk_score", fmt.Sprintf("%.1f", base*weight))
	}
	return out, nil
}

// CanonicalOrder restores the canonical issue ordering after stages that
// may have disturbed it. Pure reordering.
type CanonicalOrder struct{}

// NewCanonicalOrder creates the ordering enricher.
func NewCanonicalOrder() *CanonicalOrder { return &CanonicalOrder{} }

// Name implements Enricher.
func (c *CanonicalOrder) Name() string { return "canonical_order" }

// Enrich implements Enricher.
func (c *CanonicalOrder) Enrich(issues []types.UnifiedIssue, _ *types.ScanContext) ([]types.UnifiedIssue, error) {
	out := make([]types.UnifiedIssue, len(issues))
	copy(out, issues)
	types.SortIssues(out)
	return out, nil
}
