package config

import (
	"fmt"
	"sync"

	"github.com/conductor-run/conductor/pkg/model"
)

// ToolRegistry stores the tool catalog in memory with thread-safe access,
// grounded on the teacher's LLMProviderRegistry pattern.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]model.ToolDefinition
}

// NewToolRegistry builds a registry from catalog entries, defensively
// copying the input so later caller mutation can't reach the registry.
func NewToolRegistry(entries map[string]ToolCatalogEntry) *ToolRegistry {
	tools := make(map[string]model.ToolDefinition, len(entries))
	for name, e := range entries {
		tools[name] = e.ToDefinition()
	}
	return &ToolRegistry{tools: tools}
}

// Get retrieves a tool definition by name.
func (r *ToolRegistry) Get(name string) (model.ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return model.ToolDefinition{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Has reports whether name is a registered tool.
func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// All returns a defensive copy of every registered tool.
func (r *ToolRegistry) All() map[string]model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.ToolDefinition, len(r.tools))
	for k, v := range r.tools {
		out[k] = v
	}
	return out
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ProviderRegistry stores configured LLM providers in memory.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]model.ProviderConfig
}

// NewProviderRegistry builds a registry from catalog entries.
func NewProviderRegistry(entries map[string]ProviderCatalogEntry) *ProviderRegistry {
	providers := make(map[string]model.ProviderConfig, len(entries))
	for name, e := range entries {
		providers[name] = e.ToProviderConfig()
	}
	return &ProviderRegistry{providers: providers}
}

// Get retrieves a provider configuration by name.
func (r *ProviderRegistry) Get(name string) (model.ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return model.ProviderConfig{}, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Has reports whether name is a configured provider.
func (r *ProviderRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// All returns a defensive copy of every configured provider.
func (r *ProviderRegistry) All() map[string]model.ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.ProviderConfig, len(r.providers))
	for k, v := range r.providers {
		out[k] = v
	}
	return out
}

// ChainRegistry stores fallback chains in memory.
type ChainRegistry struct {
	mu     sync.RWMutex
	chains map[string]model.FallbackChain
}

// NewChainRegistry builds a registry from catalog entries.
func NewChainRegistry(entries map[string]FallbackChainEntry) *ChainRegistry {
	chains := make(map[string]model.FallbackChain, len(entries))
	for name, e := range entries {
		chains[name] = e.ToFallbackChain()
	}
	return &ChainRegistry{chains: chains}
}

// Get retrieves a fallback chain by name.
func (r *ChainRegistry) Get(name string) (model.FallbackChain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chains[name]
	if !ok {
		return model.FallbackChain{}, fmt.Errorf("%w: %s", ErrChainNotFound, name)
	}
	return c, nil
}

// All returns a defensive copy of every fallback chain.
func (r *ChainRegistry) All() map[string]model.FallbackChain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.FallbackChain, len(r.chains))
	for k, v := range r.chains {
		out[k] = v
	}
	return out
}
