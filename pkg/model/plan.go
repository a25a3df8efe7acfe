package model

import "time"

// Capability is one of the fixed vocabulary tags a Phase may carry.
type Capability string

// Recognized capabilities (spec §3).
const (
	CapabilityWebBrowsing      Capability = "web_browsing"
	CapabilityCodeExecution    Capability = "code_execution"
	CapabilityFileOperations   Capability = "file_operations"
	CapabilityDocumentGenerate Capability = "document_generation"
	CapabilityWebSearch        Capability = "web_search"
	CapabilityImageGeneration  Capability = "image_generation"
)

// AllCapabilities lists every capability in the fixed vocabulary.
var AllCapabilities = []Capability{
	CapabilityWebBrowsing,
	CapabilityCodeExecution,
	CapabilityFileOperations,
	CapabilityDocumentGenerate,
	CapabilityWebSearch,
	CapabilityImageGeneration,
}

// IsValidCapability reports whether c is drawn from the fixed vocabulary.
func IsValidCapability(c Capability) bool {
	for _, known := range AllCapabilities {
		if known == c {
			return true
		}
	}
	return false
}

// PlanMetadata carries synthesis provenance for a Plan.
type PlanMetadata struct {
	Attempt          int    `json:"attempt"`
	Model            string `json:"model"`
	TokensInput      int    `json:"tokens_input"`
	TokensOutput     int    `json:"tokens_output"`
	GenerationTimeMs int64  `json:"generation_time_ms"`
}

// Plan is the ordered set of phases synthesized by the Planner (spec §3/§4.4).
// Immutable once accepted: phases are appended during construction, never
// mutated in place after the Plan is attached to a Run (status/timestamps on
// individual Phase values are the sole exception — see Phase).
type Plan struct {
	Version        int64
	Goal           string
	Phases         []*Phase
	CurrentPhaseID string
	Metadata       PlanMetadata
}

// PhaseStatus is the lifecycle state of a Phase.
type PhaseStatus string

// Phase lifecycle states.
const (
	PhaseStatusPending   PhaseStatus = "pending"
	PhaseStatusExecuting PhaseStatus = "executing"
	PhaseStatusCompleted PhaseStatus = "completed"
	PhaseStatusFailed    PhaseStatus = "failed"
	PhaseStatusSkipped   PhaseStatus = "skipped"
)

// Phase is a sequential unit within a Plan (spec §3).
type Phase struct {
	ID             int // 1-based
	Title          string
	Description    string
	Capabilities   []Capability
	EstimatedSteps int
	Status         PhaseStatus
	StartedAt      *time.Time
	CompletedAt    *time.Time
	StepsCompleted int
}

// HasCapability reports whether the phase declares capability c.
func (p *Phase) HasCapability(c Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// FirstActivePhase returns the first phase in pending or executing status,
// or nil if none remain (meaning the plan is exhausted).
func (p *Plan) FirstActivePhase() *Phase {
	for _, phase := range p.Phases {
		if phase.Status == PhaseStatusPending || phase.Status == PhaseStatusExecuting {
			return phase
		}
	}
	return nil
}

// AllPhasesDone reports whether every phase is completed or skipped.
func (p *Plan) AllPhasesDone() bool {
	for _, phase := range p.Phases {
		if phase.Status != PhaseStatusCompleted && phase.Status != PhaseStatusSkipped {
			return false
		}
	}
	return true
}

// ExecutingPhaseCount returns the number of phases currently in "executing"
// status. The invariant from spec §8.2 is that this is never more than 1.
func (p *Plan) ExecutingPhaseCount() int {
	count := 0
	for _, phase := range p.Phases {
		if phase.Status == PhaseStatusExecuting {
			count++
		}
	}
	return count
}

// OrderedAndGapless reports whether Phases are numbered 1..n with no gaps,
// the invariant required by spec §8.2.
func (p *Plan) OrderedAndGapless() bool {
	for i, phase := range p.Phases {
		if phase.ID != i+1 {
			return false
		}
	}
	return true
}
