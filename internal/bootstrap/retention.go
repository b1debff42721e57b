package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// RetentionPolicy bounds how much the lucidscan home directory accumulates
// across scans: diagnostic logs age out, and superseded tool versions are
// removed once enough newer installs exist.
type RetentionPolicy struct {
	// LogAgeDays is how old a log file must be before deletion (in days).
	// Default: 30, Range: 0-365
	// 0 = keep logs forever
	LogAgeDays int

	// KeepToolVersions is the number of installed versions to keep per tool,
	// newest first. The version the manifest records as current is always
	// kept regardless of age.
	// Default: 2, Range: 1-50
	KeepToolVersions int
}

// DefaultRetentionPolicy returns the default retention policy.
//
// These defaults are chosen to:
// - Keep a month of diagnostic logs for debugging
// - Keep the current and one previous version of each tool so a pinned
//   downgrade does not re-download
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		LogAgeDays:       30,
		KeepToolVersions: 2,
	}
}

// Validate checks if the policy has valid values
func (p RetentionPolicy) Validate() error {
	if p.LogAgeDays < 0 || p.LogAgeDays > 365 {
		return fmt.Errorf("log_age_days must be between 0 and 365 (got %d)", p.LogAgeDays)
	}
	if p.KeepToolVersions < 1 || p.KeepToolVersions > 50 {
		return fmt.Errorf("keep_tool_versions must be between 1 and 50 (got %d)", p.KeepToolVersions)
	}
	return nil
}

// LogAge returns the log age threshold as a time.Duration
func (p RetentionPolicy) LogAge() time.Duration {
	return time.Duration(p.LogAgeDays) * 24 * time.Hour
}

// CleanupReport summarizes one retention pass.
type CleanupReport struct {
	LogsRemoved     int
	VersionsRemoved int
}

// CleanStale applies the retention policy to the home directory: log files
// older than the threshold are deleted, and for each tool only the newest
// KeepToolVersions installs survive. The manifest's current version for a
// tool is never removed. Individual removal failures are logged and skipped
// so one stuck file cannot abort the pass.
func CleanStale(ctx context.Context, paths Paths, manifest *Manifest, policy RetentionPolicy, logger *zap.Logger) (CleanupReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := policy.Validate(); err != nil {
		return CleanupReport{}, err
	}

	var report CleanupReport

	current := make(map[string]string)
	if manifest != nil {
		tools, err := manifest.List(ctx)
		if err != nil {
			return report, fmt.Errorf("failed to read tool manifest: %w", err)
		}
		for _, t := range tools {
			current[t.Tool] = t.Version
		}
	}

	report.LogsRemoved = cleanLogs(paths.LogsDir(), policy, logger)
	removed, err := cleanVersions(paths.BinDir(), current, policy, logger)
	if err != nil {
		return report, err
	}
	report.VersionsRemoved = removed
	return report, nil
}

func cleanLogs(dir string, policy RetentionPolicy, logger *zap.Logger) int {
	if policy.LogAgeDays == 0 {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-policy.LogAge())
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn("failed to remove stale log", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}

func cleanVersions(binDir string, current map[string]string, policy RetentionPolicy, logger *zap.Logger) (int, error) {
	toolDirs, err := os.ReadDir(binDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read bin directory: %w", err)
	}

	removed := 0
	for _, toolDir := range toolDirs {
		if !toolDir.IsDir() {
			continue
		}
		tool := toolDir.Name()
		versions, err := os.ReadDir(filepath.Join(binDir, tool))
		if err != nil {
			logger.Warn("failed to read tool directory", zap.String("tool", tool), zap.Error(err))
			continue
		}

		type versionDir struct {
			name    string
			modTime time.Time
		}
		dirs := make([]versionDir, 0, len(versions))
		for _, v := range versions {
			if !v.IsDir() {
				continue
			}
			info, err := v.Info()
			if err != nil {
				continue
			}
			dirs = append(dirs, versionDir{name: v.Name(), modTime: info.ModTime()})
		}
		sort.Slice(dirs, func(i, j int) bool { return dirs[i].modTime.After(dirs[j].modTime) })

		for i, v := range dirs {
			if i < policy.KeepToolVersions || v.name == current[tool] {
				continue
			}
			path := filepath.Join(binDir, tool, v.name)
			if err := os.RemoveAll(path); err != nil {
				logger.Warn("failed to remove stale tool version", zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Debug("removed superseded tool version",
				zap.String("tool", tool), zap.String("version", v.name))
			removed++
		}
	}
	return removed, nil
}
