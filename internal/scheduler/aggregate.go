package scheduler

import (
	"fmt"
	"sort"

	"github.com/lucidscan/lucidscan/internal/types"
)

// Batch is the deterministic merge of all plugin outcomes from one scan,
// captured before enrichment. The threshold evaluator reads this snapshot,
// so later enrichment can never change a domain's pass/fail decision.
type Batch struct {
	// Results in deterministic (domain order, plugin name) order.
	Results []ItemResult

	// Issues is the merged raw issue list: outcomes ordered by (domain,
	// plugin), issues within one outcome in adapter order, ids unique.
	Issues []types.UnifiedIssue

	// Errors holds one entry per failed or cancelled item.
	Errors []types.PluginError

	// Metrics carries the measured percentage per metric domain.
	Metrics map[types.Domain]float64

	// Evaluated marks domains that had at least one item (including
	// skipped ones); domains never scheduled do not appear in summaries.
	Evaluated map[types.Domain]bool
}

// Aggregate merges item results independent of completion order: two runs
// with identical inputs produce byte-identical issue ordering and content.
func Aggregate(results []ItemResult) *Batch {
	ordered := make([]ItemResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		di, dj := ordered[i].Descriptor, ordered[j].Descriptor
		if di.Domain != dj.Domain {
			return di.Domain.Order() < dj.Domain.Order()
		}
		return di.Name < dj.Name
	})

	batch := &Batch{
		Results:   ordered,
		Metrics:   make(map[types.Domain]float64),
		Evaluated: make(map[types.Domain]bool),
	}

	seenIDs := make(map[string]int)
	for _, res := range ordered {
		domain := res.Descriptor.Domain
		batch.Evaluated[domain] = true

		if res.Outcome.Err != nil {
			batch.Errors = append(batch.Errors, *res.Outcome.Err)
			continue
		}

		if res.Outcome.Metric != nil {
			// First metric per domain wins; plugin order is already
			// deterministic.
			if _, exists := batch.Metrics[domain]; !exists {
				batch.Metrics[domain] = *res.Outcome.Metric
			}
		}

		for _, issue := range res.Outcome.Issues {
			issue.ID = uniqueID(seenIDs, issue.ID)
			batch.Issues = append(batch.Issues, issue)
		}
	}

	return batch
}

// IssuesByDomain groups the merged issues per domain, preserving order.
func (b *Batch) IssuesByDomain() map[types.Domain][]types.UnifiedIssue {
	grouped := make(map[types.Domain][]types.UnifiedIssue)
	for _, issue := range b.Issues {
		grouped[issue.Domain] = append(grouped[issue.Domain], issue)
	}
	return grouped
}

// FailuresByDomain counts failed items per domain.
func (b *Batch) FailuresByDomain() map[types.Domain]int {
	failures := make(map[types.Domain]int)
	for _, res := range b.Results {
		if res.Outcome.Err != nil {
			failures[res.Descriptor.Domain]++
		}
	}
	return failures
}

// uniqueID disambiguates colliding issue ids with a deterministic ordinal
// suffix, keeping ids unique across the whole result.
func uniqueID(seen map[string]int, id string) string {
	n := seen[id]
	seen[id] = n + 1
	if n == 0 {
		return id
	}
	return fmt.Sprintf("%s-%d", id, n+1)
}
