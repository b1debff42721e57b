// Package plugin defines the uniform contract every tool adapter satisfies
// and the subprocess helpers adapters share.
//
// Adapters must be safe to invoke concurrently with any other adapter; the
// only state shared between concurrent adapter calls is the tool binary
// cache, which serializes first-install per (tool, version) internally.
package plugin

import (
	"context"

	"github.com/lucidscan/lucidscan/internal/types"
)

// Adapter wraps one external tool. Execute runs the tool against the
// resolved target set and returns exactly one outcome.
//
// A nonzero process exit code is not by itself a failure: each adapter
// interprets its tool's exit-code semantics and distinguishes "ran and found
// issues" from "failed to run". On context cancellation the adapter must
// terminate its child process group and return a timeout outcome promptly.
type Adapter interface {
	// Descriptor returns the immutable capability descriptor for this adapter.
	Descriptor() types.PluginDescriptor

	// Execute runs the tool. The context carries the per-plugin timeout and
	// scan-wide cancellation.
	Execute(ctx context.Context, sc *types.ScanContext, targets types.TargetSet) types.PluginOutcome
}

// Provisioner supplies tool binaries on demand. EnsureBinary is idempotent
// and safe under concurrent calls for the same (tool, version) pair.
type Provisioner interface {
	EnsureBinary(ctx context.Context, tool, version string) (string, error)
}
