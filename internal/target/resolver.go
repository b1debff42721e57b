// Package target computes the effective file scope for each domain in a
// scan: explicit files, a git working-tree delta, or the whole project.
package target

import (
	"context"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/types"
)

// ChangeDetector abstracts git change detection so the resolver can be
// tested without a real repository.
type ChangeDetector interface {
	// IsRepo checks whether path is inside a git work tree.
	IsRepo(ctx context.Context, path string) bool

	// ChangedFiles returns uncommitted changes as repo-relative paths.
	ChangedFiles(ctx context.Context, path string) ([]string, error)
}

// Resolver resolves target sets for one scan. The git delta is computed at
// most once per scan and reused across domains; a TargetSet is never
// recomputed mid-scan.
type Resolver struct {
	sc       *types.ScanContext
	detector ChangeDetector
	logger   *zap.Logger

	deltaOnce sync.Once
	delta     []string
	deltaOK   bool
}

// NewResolver creates a resolver for one scan invocation. detector may be
// nil when git is unavailable; resolution then falls back to project-wide.
func NewResolver(sc *types.ScanContext, detector ChangeDetector, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{sc: sc, detector: detector, logger: logger}
}

// Resolve returns the target set for one plugin. Resolution order, first
// match wins:
//
//  1. Explicit files in the scan context — user override for every domain,
//     regardless of partial-scan capability.
//  2. AllFiles — project-wide for every domain.
//  3. Git working-tree delta, filtered by exclude patterns. Not a repo or
//     git failed: project-wide.
//  4. Plugins without partial-scan support are forced project-wide even
//     when the delta is concrete.
//
// A clean tree with a partial-capable plugin yields an empty concrete set;
// the scheduler skips that plugin entirely.
func (r *Resolver) Resolve(ctx context.Context, desc types.PluginDescriptor) types.TargetSet {
	if len(r.sc.Files) > 0 {
		return types.FileTargets(filterExcluded(r.sc.Files, r.sc.ExcludesFor(desc.Domain)))
	}

	if r.sc.AllFiles {
		return types.ProjectWideTargets()
	}

	if !desc.SupportsPartialScan {
		return types.ProjectWideTargets()
	}

	delta, ok := r.changedFiles(ctx)
	if !ok {
		return types.ProjectWideTargets()
	}
	return types.FileTargets(filterExcluded(delta, r.sc.ExcludesFor(desc.Domain)))
}

// changedFiles computes the git delta once per scan.
func (r *Resolver) changedFiles(ctx context.Context) ([]string, bool) {
	r.deltaOnce.Do(func() {
		if r.detector == nil || !r.detector.IsRepo(ctx, r.sc.ProjectRoot) {
			r.logger.Debug("not a git repository, using project-wide targets",
				zap.String("root", r.sc.ProjectRoot))
			return
		}
		files, err := r.detector.ChangedFiles(ctx, r.sc.ProjectRoot)
		if err != nil {
			r.logger.Warn("git change detection failed, using project-wide targets",
				zap.Error(err))
			return
		}
		r.delta = files
		r.deltaOK = true
		r.logger.Debug("resolved git delta", zap.Int("files", len(files)))
	})
	return r.delta, r.deltaOK
}

// filterExcluded drops paths matching any exclude pattern.
func filterExcluded(paths, patterns []string) []string {
	if len(patterns) == 0 {
		return paths
	}
	var kept []string
	for _, p := range paths {
		if !matchesAny(p, patterns) {
			kept = append(kept, p)
		}
	}
	return kept
}

// matchesAny implements the exclude pattern grammar: exact or glob match on
// the full relative path, directory prefixes ("vendor/" or "vendor/**"),
// and basename globs ("**/*.min.js", "*.gen.go").
func matchesAny(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchPattern(p, pattern) {
			return true
		}
	}
	return false
}

func matchPattern(p, pattern string) bool {
	pattern = strings.TrimSuffix(pattern, "/**")
	pattern = strings.TrimSuffix(pattern, "/")

	if p == pattern {
		return true
	}
	if strings.HasPrefix(p, pattern+"/") {
		return true
	}
	if ok, err := path.Match(pattern, p); err == nil && ok {
		return true
	}

	// "**/x" and bare globs also match against the basename.
	base := p
	if i := strings.LastIndex(p, "/"); i >= 0 {
		base = p[i+1:]
	}
	trimmed := strings.TrimPrefix(pattern, "**/")
	if ok, err := path.Match(trimmed, base); err == nil && ok {
		return true
	}
	return false
}
