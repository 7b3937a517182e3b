// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"fmt"
)

// Registry holds the active plugin set, built once at startup from the
// plugins that have configuration present. Read-only after
// construction.
type Registry struct {
	ordered []Plugin
	byName  map[string]Plugin
	byTool  map[string]Plugin
}

// NewRegistry builds a registry, verifying that plugin names are
// unique and tool-name sets are pairwise disjoint.
func NewRegistry(plugins ...Plugin) (*Registry, error) {
	registry := &Registry{
		byName: make(map[string]Plugin, len(plugins)),
		byTool: make(map[string]Plugin),
	}
	for _, p := range plugins {
		name := p.Name()
		if _, exists := registry.byName[name]; exists {
			return nil, fmt.Errorf("plugin %q registered twice", name)
		}
		registry.byName[name] = p
		for _, tool := range p.Tools() {
			if owner, exists := registry.byTool[tool]; exists {
				return nil, fmt.Errorf("tool %q claimed by both %q and %q", tool, owner.Name(), name)
			}
			registry.byTool[tool] = p
		}
		registry.ordered = append(registry.ordered, p)
	}
	return registry, nil
}

// ByName looks a plugin up by its configuration key.
func (r *Registry) ByName(name string) (Plugin, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// ByTool looks a plugin up by a CLI tool name.
func (r *Registry) ByTool(tool string) (Plugin, bool) {
	p, ok := r.byTool[tool]
	return p, ok
}

// All returns the plugins in registration order. Callers must not
// mutate the returned slice.
func (r *Registry) All() []Plugin {
	return r.ordered
}

// TokenPrefixes collects every plugin's declared token prefixes for
// the masking engine.
func (r *Registry) TokenPrefixes() []string {
	var prefixes []string
	for _, p := range r.ordered {
		prefixes = append(prefixes, p.TokenPrefixes()...)
	}
	return prefixes
}
