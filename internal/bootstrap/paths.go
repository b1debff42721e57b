// Package bootstrap provisions external tool binaries into the on-disk
// cache under the lucidscan home directory.
//
// Layout:
//
//	~/.lucidscan/
//	    bin/{tool}/{version}/{tool}   installed binaries
//	    cache/{tool}/                 per-tool scratch (vuln DBs etc.)
//	    logs/
//	    manifest.db                   installed-tool inventory
package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides the default home directory.
const HomeEnv = "LUCIDSCAN_HOME"

const defaultHomeDirName = ".lucidscan"

// Paths resolves locations inside the lucidscan home directory.
type Paths struct {
	Home string
}

// DefaultPaths resolves the home directory: LUCIDSCAN_HOME if set,
// otherwise ~/.lucidscan.
func DefaultPaths() (Paths, error) {
	if env := os.Getenv(HomeEnv); env != "" {
		return Paths{Home: env}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return Paths{Home: filepath.Join(home, defaultHomeDirName)}, nil
}

// BinDir is the root of installed binaries.
func (p Paths) BinDir() string { return filepath.Join(p.Home, "bin") }

// CacheDir is the root of per-tool scratch space.
func (p Paths) CacheDir() string { return filepath.Join(p.Home, "cache") }

// LogsDir holds diagnostic logs.
func (p Paths) LogsDir() string { return filepath.Join(p.Home, "logs") }

// ManifestPath is the installed-tool inventory database.
func (p Paths) ManifestPath() string { return filepath.Join(p.Home, "manifest.db") }

// ToolBinDir is the version-specific install directory for one tool.
func (p Paths) ToolBinDir(tool, version string) string {
	return filepath.Join(p.BinDir(), tool, version)
}

// ToolCacheDir is the scratch directory for one tool.
func (p Paths) ToolCacheDir(tool string) string {
	return filepath.Join(p.CacheDir(), tool)
}

// EnsureDirectories creates the home directory tree.
func (p Paths) EnsureDirectories() error {
	for _, dir := range []string{p.Home, p.BinDir(), p.CacheDir(), p.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// IsInitialized reports whether any tool has been installed.
func (p Paths) IsInitialized() bool {
	entries, err := os.ReadDir(p.BinDir())
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			return true
		}
	}
	return false
}
