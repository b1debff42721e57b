package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// DownloadURLFunc builds the download URL for a tool release. It receives
// the tool name, version, GOOS, and GOARCH.
type DownloadURLFunc func(tool, version, goos, goarch string) (string, error)

// CacheConfig holds settings for creating a CacheManager.
type CacheConfig struct {
	Paths      Paths
	Manifest   *Manifest
	HTTPClient *http.Client
	URLFor     DownloadURLFunc
	Logger     *zap.Logger
}

// CacheManager downloads tool binaries into the cache on first use.
// Installs are atomic: binaries are fetched into a temp directory and
// renamed into place, so a crashed install never leaves a half-written
// binary where EnsureBinary would find it.
type CacheManager struct {
	paths    Paths
	manifest *Manifest
	client   *http.Client
	urlFor   DownloadURLFunc
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCacheManager creates a CacheManager.
func NewCacheManager(cfg CacheConfig) (*CacheManager, error) {
	if cfg.URLFor == nil {
		return nil, fmt.Errorf("download URL function is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &CacheManager{
		paths:    cfg.Paths,
		manifest: cfg.Manifest,
		client:   cfg.HTTPClient,
		urlFor:   cfg.URLFor,
		logger:   cfg.Logger,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// EnsureBinary returns the path to the requested tool binary, downloading
// it into the cache if it is not already installed.
func (c *CacheManager) EnsureBinary(ctx context.Context, tool, version string) (string, error) {
	binPath := filepath.Join(c.paths.ToolBinDir(tool, version), binaryName(tool))
	if installed(binPath) {
		return binPath, nil
	}

	// Serialize concurrent installs of the same (tool, version).
	lock := c.installLock(tool, version)
	lock.Lock()
	defer lock.Unlock()

	if installed(binPath) {
		return binPath, nil
	}

	c.logger.Info("installing tool",
		zap.String("tool", tool),
		zap.String("version", version))

	if err := c.install(ctx, tool, version, binPath); err != nil {
		return "", err
	}

	if c.manifest != nil {
		if err := c.manifest.Record(ctx, tool, version, binPath); err != nil {
			c.logger.Warn("failed to record install", zap.Error(err))
		}
	}
	return binPath, nil
}

func (c *CacheManager) install(ctx context.Context, tool, version, binPath string) error {
	url, err := c.urlFor(tool, version, runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return fmt.Errorf("no download available for %s@%s: %w", tool, version, err)
	}

	destDir := filepath.Dir(binPath)
	if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
		return fmt.Errorf("failed to create tool directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(destDir), ".install-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpBin := filepath.Join(tmpDir, filepath.Base(binPath))
	if err := c.download(ctx, url, tmpBin); err != nil {
		return fmt.Errorf("failed to download %s@%s: %w", tool, version, err)
	}
	if err := os.Chmod(tmpBin, 0o755); err != nil {
		return fmt.Errorf("failed to mark binary executable: %w", err)
	}

	if err := os.Rename(tmpDir, destDir); err != nil {
		// Another process won the rename race.
		if installed(binPath) {
			return nil
		}
		return fmt.Errorf("failed to install %s@%s: %w", tool, version, err)
	}
	return nil
}

func (c *CacheManager) download(ctx context.Context, url, dest string) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("download not found: %s", url))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		}

		f, err := os.Create(dest)
		if err != nil {
			return backoff.Permanent(err)
		}
		if _, err := io.Copy(f, resp.Body); err != nil {
			f.Close()
			os.Remove(dest)
			return err
		}
		return f.Close()
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(op, policy)
}

func (c *CacheManager) installLock(tool, version string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := tool + "@" + version
	if l, ok := c.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	c.locks[key] = l
	return l
}

func installed(binPath string) bool {
	info, err := os.Stat(binPath)
	return err == nil && info.Mode().IsRegular()
}

func binaryName(tool string) string {
	if runtime.GOOS == "windows" {
		return tool + ".exe"
	}
	return tool
}
