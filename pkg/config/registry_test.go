package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRegistryGet(t *testing.T) {
	reg := NewToolRegistry(map[string]ToolCatalogEntry{
		"shell_exec": {Name: "shell_exec", Category: "shell"},
	})

	tool, err := reg.Get("shell_exec")
	require.NoError(t, err)
	assert.Equal(t, "shell_exec", tool.Name)

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestToolRegistryAllIsDefensiveCopy(t *testing.T) {
	reg := NewToolRegistry(map[string]ToolCatalogEntry{
		"shell_exec": {Name: "shell_exec", Category: "shell"},
	})

	all := reg.All()
	delete(all, "shell_exec")

	assert.True(t, reg.Has("shell_exec"), "mutating the returned map must not affect the registry")
}

func TestProviderRegistryGet(t *testing.T) {
	reg := NewProviderRegistry(map[string]ProviderCatalogEntry{
		"gemini-flash": {Name: "gemini-flash", Kind: "google", Model: "gemini-2.5-flash"},
	})

	p, err := reg.Get("gemini-flash")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", p.Model)

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestChainRegistryGet(t *testing.T) {
	reg := NewChainRegistry(map[string]FallbackChainEntry{
		"default": {Name: "default", Providers: []string{"a", "b"}},
	})

	chain, err := reg.Get("default")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, chain.Providers)

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, ErrChainNotFound)
}
