package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildPlan(statuses ...PhaseStatus) *Plan {
	p := &Plan{Goal: "test goal"}
	for i, s := range statuses {
		p.Phases = append(p.Phases, &Phase{ID: i + 1, Status: s})
	}
	return p
}

func TestPlanFirstActivePhase(t *testing.T) {
	p := buildPlan(PhaseStatusCompleted, PhaseStatusExecuting, PhaseStatusPending)
	active := p.FirstActivePhase()
	assert.NotNil(t, active)
	assert.Equal(t, 2, active.ID)
}

func TestPlanFirstActivePhaseNoneLeft(t *testing.T) {
	p := buildPlan(PhaseStatusCompleted, PhaseStatusSkipped)
	assert.Nil(t, p.FirstActivePhase())
}

func TestPlanAllPhasesDone(t *testing.T) {
	assert.True(t, buildPlan(PhaseStatusCompleted, PhaseStatusSkipped).AllPhasesDone())
	assert.False(t, buildPlan(PhaseStatusCompleted, PhaseStatusExecuting).AllPhasesDone())
}

func TestPlanExecutingPhaseCount(t *testing.T) {
	p := buildPlan(PhaseStatusExecuting, PhaseStatusPending, PhaseStatusCompleted)
	assert.Equal(t, 1, p.ExecutingPhaseCount())
}

func TestPlanOrderedAndGapless(t *testing.T) {
	ok := &Plan{Phases: []*Phase{{ID: 1}, {ID: 2}, {ID: 3}}}
	assert.True(t, ok.OrderedAndGapless())

	gap := &Plan{Phases: []*Phase{{ID: 1}, {ID: 3}}}
	assert.False(t, gap.OrderedAndGapless())
}

func TestPhaseHasCapability(t *testing.T) {
	p := &Phase{Capabilities: []Capability{CapabilityWebSearch, CapabilityFileOperations}}
	assert.True(t, p.HasCapability(CapabilityWebSearch))
	assert.False(t, p.HasCapability(CapabilityImageGeneration))
}

func TestIsValidCapability(t *testing.T) {
	assert.True(t, IsValidCapability(CapabilityCodeExecution))
	assert.False(t, IsValidCapability(Capability("not_a_real_capability")))
}
