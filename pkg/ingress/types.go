package ingress

import "github.com/conductor-run/conductor/pkg/model"

// CreateRunRequest is the body of POST /runs (spec §6 "create").
type CreateRunRequest struct {
	Prompt string `json:"prompt" binding:"required"`

	// ExternalID is the caller-chosen idempotency token (spec §3's
	// Run.external_id); a second create with the same tenant+ExternalID
	// returns the existing Run instead of creating a duplicate.
	ExternalID string `json:"external_id,omitempty"`

	// ProjectID, when set, overrides the tenant resolved from the bearer
	// token. The override is applied for any authenticated caller; no
	// check is made of the token's issuer.
	ProjectID string `json:"project_id,omitempty"`

	// ConnectorIDs restricts the run to this tool allowlist, folded into
	// RunConfig.ToolsEnabled.
	ConnectorIDs []string `json:"connector_ids,omitempty"`

	Config *RunConfigOverrides `json:"config,omitempty"`
}

// RunConfigOverrides is the caller-facing, all-optional shape of
// model.RunConfig (spec §3); zero values mean "use the default".
type RunConfigOverrides struct {
	MaxSteps           int      `json:"max_steps,omitempty"`
	MaxDurationSeconds int      `json:"max_duration_seconds,omitempty"`
	MaxCredits         int64    `json:"max_credits,omitempty"`
	ToolsEnabled       []string `json:"tools_enabled,omitempty"`
	Model              string   `json:"model,omitempty"`
	Temperature        float64  `json:"temperature,omitempty"`
	CheckpointInterval int      `json:"checkpoint_interval,omitempty"`
}

func (o *RunConfigOverrides) toRunConfig() model.RunConfig {
	if o == nil {
		return model.RunConfig{}
	}
	var tools map[string]bool
	if len(o.ToolsEnabled) > 0 {
		tools = make(map[string]bool, len(o.ToolsEnabled))
		for _, name := range o.ToolsEnabled {
			tools[name] = true
		}
	}
	return model.RunConfig{
		MaxSteps:           o.MaxSteps,
		MaxDurationSeconds: o.MaxDurationSeconds,
		MaxCredits:         o.MaxCredits,
		ToolsEnabled:       tools,
		Model:              o.Model,
		Temperature:        o.Temperature,
		CheckpointInterval: o.CheckpointInterval,
	}
}

// CreateRunResponse is returned by create; Status is always the literal
// "created" per spec §6, independent of the Run's actual persisted status
// (pending), matching the table's documented result shape.
type CreateRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// ResumeRunRequest is the body of POST /runs/:id/resume.
type ResumeRunRequest struct {
	UserInput string `json:"user_input,omitempty"`
}

// RunStatusResponse is the "current Run + derived progress" result of the
// status action.
type RunStatusResponse struct {
	RunID           string                    `json:"run_id"`
	ExternalID      string                    `json:"external_id,omitempty"`
	Status          model.RunStatus           `json:"status"`
	CreditsReserved int64                     `json:"credits_reserved"`
	CreditsConsumed int64                     `json:"credits_consumed"`
	StepCount       int                       `json:"step_count"`
	RetryCount      int                       `json:"retry_count"`
	CreatedAt       string                    `json:"created_at"`
	StartedAt       string                    `json:"started_at,omitempty"`
	CompletedAt     string                    `json:"completed_at,omitempty"`
	Error           *model.StructuredRunError `json:"error,omitempty"`
	Plan            *PlanSummary              `json:"plan,omitempty"`
	CurrentStep     *StepSummary              `json:"current_step,omitempty"`
}

// StepSummary renders the Step currently in flight, if any.
type StepSummary struct {
	ID       string                    `json:"id"`
	ToolName string                    `json:"tool_name"`
	Status   model.StepStatus          `json:"status"`
	Error    *model.StructuredRunError `json:"error,omitempty"`
}

// PlanSummary renders a Plan's progress without exposing internal fields
// irrelevant to a caller (Plan.Metadata's token counts, etc. are omitted).
type PlanSummary struct {
	Goal           string         `json:"goal"`
	CurrentPhaseID string         `json:"current_phase_id,omitempty"`
	Phases         []PhaseSummary `json:"phases"`
}

// PhaseSummary renders one Phase's progress.
type PhaseSummary struct {
	ID             int                `json:"id"`
	Title          string             `json:"title"`
	Status         model.PhaseStatus  `json:"status"`
	StepsCompleted int                `json:"steps_completed"`
	EstimatedSteps int                `json:"estimated_steps"`
}

// ackResponse is the generic acknowledgement for start/stop/resume.
type ackResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}
