package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/bootstrap"
	"github.com/lucidscan/lucidscan/internal/config"
	"github.com/lucidscan/lucidscan/internal/git"
	"github.com/lucidscan/lucidscan/internal/logging"
	"github.com/lucidscan/lucidscan/internal/pipeline"
	"github.com/lucidscan/lucidscan/internal/plugins"
	"github.com/lucidscan/lucidscan/internal/registry"
	"github.com/lucidscan/lucidscan/internal/target"
	"github.com/lucidscan/lucidscan/internal/threshold"
)

// runtime carries everything a command needs to run scans.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	root     string
	paths    bootstrap.Paths
	registry *registry.Registry
	runner   *pipeline.Runner
	manifest *bootstrap.Manifest
	cache    *bootstrap.CacheManager
}

// exitConfigError terminates the process with the configuration error code.
func exitConfigError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(threshold.ExitConfigError)
}

// exitBootstrapError terminates the process with the provisioning failure code.
func exitBootstrapError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(threshold.ExitBootstrapFailure)
}

// newRuntime loads configuration and wires the scan pipeline. Configuration
// problems terminate with exit code 3 before any tool runs.
func newRuntime(ctx context.Context, projectDir string) (*runtime, error) {
	root, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{Level: flagLogLevel, Format: flagLogFormat})
	if err != nil {
		exitConfigError(err)
	}

	cfg, err := config.LoadOrDefault(root, flagConfig)
	if err != nil {
		exitConfigError(err)
	}

	paths, err := bootstrap.DefaultPaths()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to prepare home directory: %w", err)
	}

	var manifest *bootstrap.Manifest
	if m, err := bootstrap.OpenManifest(paths.ManifestPath()); err != nil {
		logger.Warn("tool manifest unavailable", zap.Error(err))
	} else {
		manifest = m
	}

	cache, err := bootstrap.NewCacheManager(bootstrap.CacheConfig{
		Paths:    paths,
		Manifest: manifest,
		URLFor:   bootstrap.ReleaseURL,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	if err := plugins.RegisterAll(reg, plugins.Options{
		Provisioner:   cache,
		Logger:        logger,
		DuploMinLines: cfg.Pipeline.Duplication.MinLines,
	}); err != nil {
		return nil, err
	}

	var detector target.ChangeDetector
	if g, err := git.New(ctx); err != nil {
		logger.Debug("git unavailable, partial scans disabled", zap.Error(err))
	} else {
		detector = g
	}

	runner, err := pipeline.New(pipeline.Options{
		Config:   cfg,
		Registry: reg,
		Detector: detector,
		Logger:   logger,
		Version:  version,
	})
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		root:     root,
		paths:    paths,
		registry: reg,
		runner:   runner,
		manifest: manifest,
		cache:    cache,
	}, nil
}

func (r *runtime) close() {
	if r.manifest != nil {
		if err := r.manifest.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			r.logger.Warn("failed to close tool manifest", zap.Error(err))
		}
	}
	_ = r.logger.Sync()
}
