package types

import (
	"fmt"
	"path/filepath"
	"sort"
)

// ScanContext carries the read-only inputs for one scan invocation. It is
// constructed once, shared by reference across all concurrent plugin calls,
// and must not be mutated after construction.
type ScanContext struct {
	// ProjectRoot is the absolute path to the scanned project.
	ProjectRoot string

	// Domains are the requested domains for this scan.
	Domains []Domain

	// Files is the explicit file list supplied by the user, relative to
	// ProjectRoot. When non-empty it overrides git-delta resolution for
	// every domain.
	Files []string

	// AllFiles forces a project-wide scan for every domain.
	AllFiles bool

	// Excludes are glob patterns removed from any concrete target set.
	Excludes []string

	// DomainExcludes are additional per-domain exclude patterns.
	DomainExcludes map[Domain][]string

	// MaxWorkers bounds scheduler concurrency.
	MaxWorkers int

	// Fix requests automatic fixes from adapters that support them.
	Fix bool
}

// Validate checks the context before a scan starts
func (c *ScanContext) Validate() error {
	if c.ProjectRoot == "" {
		return fmt.Errorf("project root is required")
	}
	if !filepath.IsAbs(c.ProjectRoot) {
		return fmt.Errorf("project root must be absolute: %s", c.ProjectRoot)
	}
	if len(c.Domains) == 0 {
		return fmt.Errorf("at least one domain is required")
	}
	for _, d := range c.Domains {
		if !d.IsValid() {
			return fmt.Errorf("invalid domain: %s", d)
		}
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be at least 1 (got %d)", c.MaxWorkers)
	}
	return nil
}

// ExcludesFor returns the combined global and per-domain exclude patterns.
func (c *ScanContext) ExcludesFor(domain Domain) []string {
	patterns := make([]string, 0, len(c.Excludes))
	patterns = append(patterns, c.Excludes...)
	if c.DomainExcludes != nil {
		patterns = append(patterns, c.DomainExcludes[domain]...)
	}
	return patterns
}

// TargetSet is the resolved file scope for one domain in one scan: either
// the whole project or a concrete ordered set of relative paths. Computed
// exactly once per domain before scheduling and never recomputed mid-scan.
type TargetSet struct {
	projectWide bool
	files       []string
}

// ProjectWideTargets returns the sentinel project-wide target set.
func ProjectWideTargets() TargetSet {
	return TargetSet{projectWide: true}
}

// FileTargets builds a concrete target set. Paths are deduplicated and
// sorted so equal inputs always produce the same set.
func FileTargets(paths []string) TargetSet {
	seen := make(map[string]struct{}, len(paths))
	files := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		clean := filepath.ToSlash(filepath.Clean(p))
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		files = append(files, clean)
	}
	sort.Strings(files)
	return TargetSet{files: files}
}

// IsProjectWide reports whether the set is the project-wide sentinel.
func (t TargetSet) IsProjectWide() bool { return t.projectWide }

// IsEmpty reports whether the set is a concrete set with no files. An empty
// set means the plugin must be skipped, not invoked without arguments.
func (t TargetSet) IsEmpty() bool { return !t.projectWide && len(t.files) == 0 }

// Files returns the concrete file list. Nil for project-wide sets.
func (t TargetSet) Files() []string {
	if t.projectWide {
		return nil
	}
	out := make([]string, len(t.files))
	copy(out, t.files)
	return out
}

// Len returns the number of concrete files (0 for project-wide).
func (t TargetSet) Len() int { return len(t.files) }

func (t TargetSet) String() string {
	if t.projectWide {
		return "project-wide"
	}
	return fmt.Sprintf("%d files", len(t.files))
}
