// Package plugins holds the built-in tool adapters. Each adapter wraps one
// external tool, normalizes its output into unified issues, and owns its
// tool's exit-code semantics.
package plugins

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/lucidscan/lucidscan/internal/plugin"
	"github.com/lucidscan/lucidscan/internal/registry"
	"github.com/lucidscan/lucidscan/internal/types"
)

// Options configures adapter construction.
type Options struct {
	// Provisioner installs tool binaries on first use. Adapters for tools
	// expected on PATH ignore it.
	Provisioner plugin.Provisioner
	Logger      *zap.Logger

	// DuploMinLines overrides duplo's minimum duplicate block size when
	// at least 2.
	DuploMinLines int
}

// RegisterAll registers every built-in adapter.
func RegisterAll(reg *registry.Registry, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	duplo := NewDuplo(opts.Provisioner, opts.Logger)
	duplo.SetMinLines(opts.DuploMinLines)

	adapters := []plugin.Adapter{
		NewRuff(opts.Provisioner, opts.Logger),
		NewGoVet(opts.Logger),
		NewDepAudit(opts.Logger),
		NewTrivy(types.DomainIaC, opts.Provisioner, opts.Logger),
		NewTrivy(types.DomainSCA, opts.Provisioner, opts.Logger),
		NewTrivy(types.DomainContainer, opts.Provisioner, opts.Logger),
		duplo,
		NewGoTest(opts.Logger),
		NewGoCover(opts.Logger),
	}
	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			return fmt.Errorf("failed to register plugin: %w", err)
		}
	}
	return nil
}

// issueID builds a stable issue identifier from the issue's identity
// fields. Two runs over the same input produce the same ids, which keeps
// full results byte-identical across runs.
func issueID(tool, rule, path string, line int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", tool, rule, path, line)))
	return tool + "-" + hex.EncodeToString(sum[:])[:12]
}
