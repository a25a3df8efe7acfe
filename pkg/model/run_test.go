package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatusIsTerminal(t *testing.T) {
	terminal := []RunStatus{RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusTimeout}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}

	nonTerminal := []RunStatus{RunStatusPending, RunStatusQueued, RunStatusPlanning, RunStatusExecuting, RunStatusPaused, RunStatusWaitingUser}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "expected %s to not be terminal", s)
	}
}

func TestRunCreditsRemaining(t *testing.T) {
	r := &Run{CreditsReserved: 100, CreditsConsumed: 30}
	assert.Equal(t, int64(70), r.CreditsRemaining())

	overConsumed := &Run{CreditsReserved: 10, CreditsConsumed: 25}
	assert.Equal(t, int64(0), overConsumed.CreditsRemaining())
}

func TestDefaultRunConfig(t *testing.T) {
	cfg := DefaultRunConfig()
	assert.Equal(t, 50, cfg.MaxSteps)
	assert.Equal(t, 3600, cfg.MaxDurationSeconds)
	assert.Equal(t, int64(100), cfg.MaxCredits)
	assert.True(t, cfg.IsToolEnabled("anything"), "nil ToolsEnabled should allow all tools")
}

func TestRunConfigIsToolEnabled(t *testing.T) {
	cfg := RunConfig{ToolsEnabled: map[string]bool{"shell_exec": true, "browser_open": false}}
	assert.True(t, cfg.IsToolEnabled("shell_exec"))
	assert.False(t, cfg.IsToolEnabled("browser_open"))
	assert.False(t, cfg.IsToolEnabled("never_listed"))
}

func TestRunConfigMerge(t *testing.T) {
	base := DefaultRunConfig()
	override := RunConfig{MaxSteps: 10, Model: "claude-opus-4"}

	merged := base.Merge(override)

	assert.Equal(t, 10, merged.MaxSteps)
	assert.Equal(t, "claude-opus-4", merged.Model)
	// untouched fields fall back to base
	assert.Equal(t, base.MaxDurationSeconds, merged.MaxDurationSeconds)
	assert.Equal(t, base.MaxCredits, merged.MaxCredits)
}
