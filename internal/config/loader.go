package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// maxConfigFileSize guards against a malformed multi-megabyte config.
const maxConfigFileSize = 1024 * 1024

// envPrefix namespaces environment overrides. Double underscore separates
// nesting levels because key names themselves contain underscores:
// LUCIDSCAN_PIPELINE__MAX_WORKERS maps to pipeline.max_workers.
const envPrefix = "LUCIDSCAN_"

// ErrNotFound is returned by Load when no config file exists at the
// resolved path. Callers normally fall back to Default().
var ErrNotFound = errors.New("config file not found")

// Load reads configuration for a project root.
//
// Precedence, highest first: environment variables, the YAML file, built-in
// defaults. When path is empty, <projectRoot>/.lucidscan.yml is used.
func Load(projectRoot, path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(projectRoot, FileName)
	}

	content, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := loadEnv(k); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the project config, falling back to defaults (plus
// environment overrides) when no file exists.
func LoadOrDefault(projectRoot, path string) (*Config, error) {
	cfg, err := Load(projectRoot, path)
	if errors.Is(err, ErrNotFound) {
		cfg = Default()
		k := koanf.New(".")
		if err := loadEnv(k); err != nil {
			return nil, err
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

func loadEnv(k *koanf.Koanf) error {
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return fmt.Errorf("failed to load environment overrides: %w", err)
	}
	return nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
