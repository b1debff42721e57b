package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/lucidscan/lucidscan/internal/types"
)

// ruleFamilies maps tool-specific rule identifiers onto a shared family so
// the same underlying finding reported by two tools collapses into one
// issue. Identifiers not listed here form their own single-member family
// after prefix normalization.
var ruleFamilies = map[string]string{
	// Unused code.
	"f401":            "unused-import",
	"unused-import":   "unused-import",
	"f841":            "unused-variable",
	"no-unused-vars":  "unused-variable",
	"unused-variable": "unused-variable",
	// Undefined names.
	"f821":     "undefined-name",
	"no-undef": "undefined-name",
	// Line length.
	"e501":        "line-too-long",
	"max-len":     "line-too-long",
	"line-length": "line-too-long",
	// Hardcoded credentials, reported by most SAST tools under their own ids.
	"s105":               "hardcoded-secret",
	"s106":               "hardcoded-secret",
	"hardcoded-password": "hardcoded-secret",
	"generic-api-key":    "hardcoded-secret",
}

// Deduplicator collapses issues sharing a fingerprint of normalized file
// path, line, and rule family. The surviving copy is the most severe one
// (first seen on ties); the other tools are recorded in its metadata under
// "also_reported_by".
type Deduplicator struct{}

// NewDeduplicator creates the dedup enricher.
func NewDeduplicator() *Deduplicator { return &Deduplicator{} }

// Name implements Enricher.
func (d *Deduplicator) Name() string { return "dedup" }

// Enrich implements Enricher.
func (d *Deduplicator) Enrich(issues []types.UnifiedIssue, _ *types.ScanContext) ([]types.UnifiedIssue, error) {
	kept := make([]types.UnifiedIssue, 0, len(issues))
	byFingerprint := make(map[string]int) // fingerprint -> index in kept

	for _, issue := range issues {
		fp := Fingerprint(&issue)
		idx, seen := byFingerprint[fp]
		if !seen {
			byFingerprint[fp] = len(kept)
			kept = append(kept, issue)
			continue
		}

		winner := &kept[idx]
		if issue.Severity.AtLeast(winner.Severity) && issue.Severity != winner.Severity {
			// The duplicate is more severe: it becomes the surviving copy.
			reporter := winner.SourceTool
			issue.Metadata = mergeMetadata(winner.Metadata, issue.Metadata)
			kept[idx] = issue
			winner = &kept[idx]
			appendReporter(winner, reporter)
			continue
		}
		appendReporter(winner, issue.SourceTool)
	}

	return kept, nil
}

// Fingerprint computes the dedup identity of an issue: SHA-256 over the
// normalized relative path, start line, and rule family. Issues without a
// file span fingerprint on tool and rule instead, so project-level findings
// from different tools are never merged.
func Fingerprint(issue *types.UnifiedIssue) string {
	var key string
	if issue.FilePath != "" {
		key = fmt.Sprintf("%s|%d|%s",
			path.Clean(strings.ToLower(filepathToSlash(issue.FilePath))),
			issue.LineStart,
			ruleFamily(issue.RuleID))
	} else {
		key = fmt.Sprintf("%s|%s|%s", issue.SourceTool, issue.RuleID, issue.Title)
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:12])
}

// ruleFamily normalizes a rule id: lowercase, tool prefixes stripped, then
// mapped through the alias table.
func ruleFamily(ruleID string) string {
	id := strings.ToLower(ruleID)
	// Strip hierarchical prefixes like "python.lang.security.audit.xyz"
	// or "eslint/no-undef" down to the final component.
	for _, sep := range []string{"/", "."} {
		if i := strings.LastIndex(id, sep); i >= 0 && i < len(id)-1 {
			id = id[i+1:]
		}
	}
	if family, ok := ruleFamilies[id]; ok {
		return family
	}
	return id
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func appendReporter(issue *types.UnifiedIssue, tool string) {
	if tool == "" || tool == issue.SourceTool {
		return
	}
	existing := issue.Metadata["also_reported_by"]
	for _, t := range strings.Split(existing, ",") {
		if t == tool {
			return
		}
	}
	if existing == "" {
		issue.SetMetadata("also_reported_by", tool)
	} else {
		issue.SetMetadata("also_reported_by", existing+","+tool)
	}
}

func mergeMetadata(older, newer map[string]string) map[string]string {
	if len(older) == 0 {
		return newer
	}
	merged := make(map[string]string, len(older)+len(newer))
	for k, v := range older {
		merged[k] = v
	}
	for k, v := range newer {
		merged[k] = v
	}
	return merged
}
