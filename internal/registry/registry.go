// Package registry holds the static capability table of tool adapters.
//
// All registration happens at process start; after that the registry is
// read-only and safe for concurrent lookups.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lucidscan/lucidscan/internal/plugin"
	"github.com/lucidscan/lucidscan/internal/types"
)

// Registry maps plugin names to adapters and exposes capability lookups
// for policy decisions. One tool may register an adapter per domain: the
// security scanners cover several subdomains with distinct instances that
// share a name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[registryKey]plugin.Adapter
}

type registryKey struct {
	name   string
	domain types.Domain
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		adapters: make(map[registryKey]plugin.Adapter),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a plugin.Adapter) error {
	desc := a.Descriptor()
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("invalid descriptor: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{name: desc.Name, domain: desc.Domain}
	if _, exists := r.adapters[key]; exists {
		return fmt.Errorf("plugin %q already registered for domain %s", desc.Name, desc.Domain)
	}
	r.adapters[key] = a
	return nil
}

// Get returns a registered adapter by name. When a tool registered under
// several domains, the instance for the earliest domain wins.
func (r *Registry) Get(name string) (plugin.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found plugin.Adapter
	for key, a := range r.adapters {
		if key.name != name {
			continue
		}
		if found == nil || key.domain.Order() < found.Descriptor().Domain.Order() {
			found = a
		}
	}
	return found, found != nil
}

// GetForDomain returns the adapter registered under (name, domain).
func (r *Registry) GetForDomain(name string, domain types.Domain) (plugin.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.adapters[registryKey{name: name, domain: domain}]
	return a, exists
}

// ForDomain returns the adapters registered for one domain, sorted by name
// so callers iterate deterministically.
func (r *Registry) ForDomain(domain types.Domain) []plugin.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []plugin.Adapter
	for _, a := range r.adapters {
		if a.Descriptor().Domain == domain {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Descriptor().Name < out[j].Descriptor().Name
	})
	return out
}

// Descriptors returns every registered descriptor in (domain order, name)
// order. Used by the scanners listing and MCP tool output.
func (r *Registry) Descriptors() []types.PluginDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.PluginDescriptor, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain.Order() < out[j].Domain.Order()
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SupportsPartialScan reports whether the named plugin can scan a subset of
// files. Unknown plugins report false, forcing project-wide resolution.
func (r *Registry) SupportsPartialScan(name string) bool {
	a, ok := r.Get(name)
	return ok && a.Descriptor().SupportsPartialScan
}
