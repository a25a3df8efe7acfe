// Package model defines the orchestrator's core data types: Run, Plan,
// Phase, Step, ToolDefinition, ProviderConfig, FallbackChain, ModelHealth,
// Artifact, and CreditReservation, per spec §3.
package model

import "time"

// RunStatus is one of the ten named run lifecycle states.
type RunStatus string

// Run lifecycle states.
const (
	RunStatusPending     RunStatus = "pending"
	RunStatusQueued      RunStatus = "queued"
	RunStatusPlanning    RunStatus = "planning"
	RunStatusExecuting   RunStatus = "executing"
	RunStatusPaused      RunStatus = "paused"
	RunStatusWaitingUser RunStatus = "waiting_user"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusFailed      RunStatus = "failed"
	RunStatusCancelled   RunStatus = "cancelled"
	RunStatusTimeout     RunStatus = "timeout"
)

// IsTerminal reports whether the status has no outgoing transitions.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusTimeout:
		return true
	default:
		return false
	}
}

// StructuredRunError is the persisted form of an orcherr.StructuredError.
type StructuredRunError struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Recoverable bool           `json:"recoverable"`
	Details     map[string]any `json:"details,omitempty"`
}

// Run is the unit of work described in spec §3.
type Run struct {
	ID         string
	ExternalID string
	TenantID   string
	UserID     string

	Status RunStatus

	Prompt     string
	PromptHash string
	Config     RunConfig
	Plan       *Plan // nil until planning succeeds

	CurrentPhaseID string
	CurrentStepID  string
	StepCount      int
	RetryCount     int
	MaxRetries     int

	// PendingUserInput holds the text supplied to the "resume" ingress
	// operation while a run sits in waiting_user; the Supervisor folds it
	// into the next phase's message history and clears it.
	PendingUserInput string

	CreditsReserved int64
	CreditsConsumed int64

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	TimeoutAt   *time.Time

	Error   *StructuredRunError
	Version int64

	// WorkerID and LeaseExpiresAt are set by the Dispatcher (spec §4.2) and
	// are not part of the caller-visible contract but travel with the Run
	// record because the lease is state, not a side-channel.
	WorkerID       string
	LeaseExpiresAt *time.Time
}

// CreditsRemaining returns the unused portion of the active reservation.
func (r *Run) CreditsRemaining() int64 {
	remaining := r.CreditsReserved - r.CreditsConsumed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RunConfig is the caller-supplied bounds described in spec §3.
type RunConfig struct {
	MaxSteps           int            `json:"max_steps"`
	MaxDurationSeconds int            `json:"max_duration_seconds"`
	MaxCredits         int64          `json:"max_credits"`
	ToolsEnabled       map[string]bool `json:"tools_enabled"`
	Model              string         `json:"model"`
	Temperature        float64        `json:"temperature"`
	CheckpointInterval int            `json:"checkpoint_interval"`
}

// DefaultRunConfig returns the spec §3 documented defaults. ToolsEnabled is
// left nil, which IsToolEnabled treats as every tool in the catalog enabled.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxSteps:           50,
		MaxDurationSeconds: 3600,
		MaxCredits:         100,
		ToolsEnabled:       nil, // nil means "all tools" — see IsToolEnabled
		Model:              "gemini-2.5-flash",
		Temperature:        0.7,
		CheckpointInterval: 5,
	}
}

// IsToolEnabled reports whether the named tool may be used under this config.
// A nil or empty ToolsEnabled set means all tools are allowed (the default).
func (c RunConfig) IsToolEnabled(name string) bool {
	if len(c.ToolsEnabled) == 0 {
		return true
	}
	return c.ToolsEnabled[name]
}

// Merge overlays non-zero fields of other on top of c, returning the result.
// Used to apply DefaultRunConfig() under a caller-supplied partial config.
func (c RunConfig) Merge(other RunConfig) RunConfig {
	result := c
	if other.MaxSteps != 0 {
		result.MaxSteps = other.MaxSteps
	}
	if other.MaxDurationSeconds != 0 {
		result.MaxDurationSeconds = other.MaxDurationSeconds
	}
	if other.MaxCredits != 0 {
		result.MaxCredits = other.MaxCredits
	}
	if other.ToolsEnabled != nil {
		result.ToolsEnabled = other.ToolsEnabled
	}
	if other.Model != "" {
		result.Model = other.Model
	}
	if other.Temperature != 0 {
		result.Temperature = other.Temperature
	}
	if other.CheckpointInterval != 0 {
		result.CheckpointInterval = other.CheckpointInterval
	}
	return result
}
