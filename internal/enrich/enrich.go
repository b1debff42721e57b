// Package enrich post-processes the merged issue list through an ordered,
// strictly sequential chain of enrichers.
//
// Enrichers may drop issues, attach metadata, or reorder; they never change
// a surviving issue's severity, and they run after the threshold snapshot
// has been taken, so nothing here can flip a domain's pass/fail decision.
package enrich

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/types"
)

// Enricher is one sequential stage: the previous stage's output is the
// next stage's input. Implementations must be deterministic and must not
// mutate the scan context.
type Enricher interface {
	// Name identifies the enricher in config and logs.
	Name() string

	// Enrich transforms the issue list.
	Enrich(issues []types.UnifiedIssue, sc *types.ScanContext) ([]types.UnifiedIssue, error)
}

// Pipeline applies enrichers in configured order.
type Pipeline struct {
	enrichers []Enricher
	logger    *zap.Logger
}

// NewPipeline builds a pipeline from the ordered enricher list.
func NewPipeline(enrichers []Enricher, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{enrichers: enrichers, logger: logger}
}

// Run applies each enricher in turn. A failing enricher is skipped and the
// previous stage's issues carry forward, matching the recovery policy for
// plugin failures: one bad stage never loses the scan's findings.
func (p *Pipeline) Run(issues []types.UnifiedIssue, sc *types.ScanContext) []types.UnifiedIssue {
	current := issues
	for _, e := range p.enrichers {
		next, err := e.Enrich(current, sc)
		if err != nil {
			p.logger.Warn("enricher failed, continuing with previous issues",
				zap.String("enricher", e.Name()),
				zap.Error(err))
			continue
		}
		p.logger.Debug("enricher applied",
			zap.String("enricher", e.Name()),
			zap.Int("in", len(current)),
			zap.Int("out", len(next)))
		current = next
	}
	return current
}

// Build constructs the named enrichers in order. Unknown names are a
// configuration error.
func Build(names []string, ignoreRules []IgnoreRule) ([]Enricher, error) {
	var out []Enricher
	for _, name := range names {
		switch name {
		case "dedup":
			out = append(out, NewDeduplicator())
		case "ignore":
			out = append(out, NewIgnoreFilter(ignoreRules))
		case "risk_score":
			out = append(out, NewRiskScorer())
		case "canonical_order":
			out = append(out, NewCanonicalOrder())
		default:
			return nil, fmt.Errorf("unknown enricher: %q", name)
		}
	}
	return out, nil
}

// DefaultOrder is the enricher chain used when config does not specify one.
func DefaultOrder() []string {
	return []string{"ignore", "dedup", "risk_score", "canonical_order"}
}
