package planner

import (
	"encoding/json"
	"fmt"

	"github.com/conductor-run/conductor/pkg/model"
)

// planDocument is the wire shape the LLM is asked to produce. It is decoded
// independently of model.Plan/model.Phase so validation can run against the
// raw response before anything is committed to the domain type.
type planDocument struct {
	Goal   string      `json:"goal"`
	Phases []phaseDoc `json:"phases"`
}

type phaseDoc struct {
	ID             int      `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Capabilities   []string `json:"capabilities"`
	EstimatedSteps int      `json:"estimated_steps"`
	IsDelivery     bool     `json:"is_delivery"`
}

// decodePlanDocument unmarshals a candidate JSON object into a planDocument.
func decodePlanDocument(raw string) (*planDocument, error) {
	var doc planDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode plan JSON: %w", err)
	}
	return &doc, nil
}

// validatePlanDocument enforces spec §4.4's invariants: phase count within
// bounds, ordered and gapless starting at 1, the last phase marked for
// delivery, and every capability drawn from the fixed vocabulary.
func validatePlanDocument(doc *planDocument, minPhases, maxPhases int) error {
	if doc.Goal == "" {
		return fmt.Errorf("plan is missing a goal")
	}

	n := len(doc.Phases)
	if n < minPhases || n > maxPhases {
		return fmt.Errorf("plan has %d phases, must have between %d and %d", n, minPhases, maxPhases)
	}

	for i, phase := range doc.Phases {
		if phase.ID != i+1 {
			return fmt.Errorf("phase %d has id %d, phases must be ordered 1..n with no gaps", i+1, phase.ID)
		}
		if phase.Title == "" {
			return fmt.Errorf("phase %d is missing a title", phase.ID)
		}
		for _, c := range phase.Capabilities {
			if !model.IsValidCapability(model.Capability(c)) {
				return fmt.Errorf("phase %d names unknown capability %q", phase.ID, c)
			}
		}
	}

	last := doc.Phases[n-1]
	if !last.IsDelivery {
		return fmt.Errorf("the last phase (id %d) must be marked is_delivery=true", last.ID)
	}

	return nil
}

// toPlan converts a validated planDocument into the domain model.Plan, with
// every phase starting pending.
func toPlan(doc *planDocument) *model.Plan {
	phases := make([]*model.Phase, 0, len(doc.Phases))
	for _, p := range doc.Phases {
		caps := make([]model.Capability, 0, len(p.Capabilities))
		for _, c := range p.Capabilities {
			caps = append(caps, model.Capability(c))
		}
		phases = append(phases, &model.Phase{
			ID:             p.ID,
			Title:          p.Title,
			Description:    p.Description,
			Capabilities:   caps,
			EstimatedSteps: p.EstimatedSteps,
			Status:         model.PhaseStatusPending,
		})
	}
	return &model.Plan{
		Version: 1,
		Goal:    doc.Goal,
		Phases:  phases,
	}
}
