package runstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/orcherr"
)

func TestCanTransitionKnownEdges(t *testing.T) {
	assert.True(t, CanTransition(model.RunStatusPending, model.RunStatusQueued))
	assert.True(t, CanTransition(model.RunStatusExecuting, model.RunStatusCompleted))
	assert.False(t, CanTransition(model.RunStatusPending, model.RunStatusExecuting))
	assert.False(t, CanTransition(model.RunStatusCompleted, model.RunStatusExecuting))
}

func TestValidateRejectsTerminalOrigin(t *testing.T) {
	r := &model.Run{Status: model.RunStatusCompleted}
	err := Validate(r, model.RunStatusExecuting)

	require.Error(t, err)
	se, ok := orcherr.AsStructured(err)
	require.True(t, ok)
	assert.Equal(t, orcherr.CodeInvalidTransition, se.Code)
}

func TestValidatePendingToQueuedRequiresCredits(t *testing.T) {
	r := &model.Run{Status: model.RunStatusPending, CreditsReserved: 0}
	err := Validate(r, model.RunStatusQueued)

	require.Error(t, err)
	se, _ := orcherr.AsStructured(err)
	assert.Equal(t, orcherr.CodeInsufficientCredit, se.Code)

	r.CreditsReserved = 100
	assert.NoError(t, Validate(r, model.RunStatusQueued))
}

func TestValidatePlanningToExecutingRequiresPlan(t *testing.T) {
	r := &model.Run{Status: model.RunStatusPlanning}
	err := Validate(r, model.RunStatusExecuting)
	require.Error(t, err)

	r.Plan = &model.Plan{Phases: []*model.Phase{{ID: 1, Status: model.PhaseStatusPending}}}
	assert.NoError(t, Validate(r, model.RunStatusExecuting))
}

func TestValidateExecutingToCompletedRequiresAllPhasesDone(t *testing.T) {
	r := &model.Run{
		Status: model.RunStatusExecuting,
		Plan: &model.Plan{Phases: []*model.Phase{
			{ID: 1, Status: model.PhaseStatusCompleted},
			{ID: 2, Status: model.PhaseStatusExecuting},
		}},
	}
	assert.Error(t, Validate(r, model.RunStatusCompleted))

	r.Plan.Phases[1].Status = model.PhaseStatusSkipped
	assert.NoError(t, Validate(r, model.RunStatusCompleted))
}

type recordingHooks struct {
	queuedCalled   bool
	terminalCalled bool
	queuedErr      error
}

func (h *recordingHooks) OnQueued(*model.Run) error   { h.queuedCalled = true; return h.queuedErr }
func (h *recordingHooks) OnTerminal(*model.Run) error { h.terminalCalled = true; return nil }

func TestApplyIncrementsVersionAndRunsHooks(t *testing.T) {
	r := &model.Run{Status: model.RunStatusPending, CreditsReserved: 10, Version: 5}
	hooks := &recordingHooks{}

	err := Apply(r, model.RunStatusQueued, hooks, time.Now())

	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, r.Status)
	assert.Equal(t, int64(6), r.Version)
	assert.True(t, hooks.queuedCalled)
	assert.False(t, hooks.terminalCalled)
}

func TestApplyTerminalSetsCompletedAtAndRunsHook(t *testing.T) {
	r := &model.Run{
		Status: model.RunStatusExecuting,
		Plan:   &model.Plan{Phases: []*model.Phase{{ID: 1, Status: model.PhaseStatusCompleted}}},
	}
	hooks := &recordingHooks{}

	err := Apply(r, model.RunStatusCompleted, hooks, time.Now())

	require.NoError(t, err)
	assert.NotNil(t, r.CompletedAt)
	assert.True(t, hooks.terminalCalled)
}

func TestApplyRejectsIllegalTransition(t *testing.T) {
	r := &model.Run{Status: model.RunStatusPending}
	err := Apply(r, model.RunStatusExecuting, NoopHooks{}, time.Now())
	assert.Error(t, err)
	assert.Equal(t, model.RunStatusPending, r.Status, "rejected transition must not mutate the run")
}

func TestCompositeHooksFansOutInOrderAndStopsOnError(t *testing.T) {
	first := &recordingHooks{}
	failing := &recordingHooks{queuedErr: assert.AnError}
	third := &recordingHooks{}
	composite := CompositeHooks{first, failing, third}

	err := composite.OnQueued(&model.Run{})

	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, first.queuedCalled)
	assert.True(t, failing.queuedCalled)
	assert.False(t, third.queuedCalled, "a hook after a failing one must not run")
}

func TestResumeTransitionsRequeueRatherThanExecute(t *testing.T) {
	assert.True(t, CanTransition(model.RunStatusPaused, model.RunStatusQueued))
	assert.True(t, CanTransition(model.RunStatusWaitingUser, model.RunStatusQueued))
}

func TestSuspendedStatusesCanTimeOut(t *testing.T) {
	assert.True(t, CanTransition(model.RunStatusPaused, model.RunStatusTimeout))
	assert.True(t, CanTransition(model.RunStatusWaitingUser, model.RunStatusTimeout))
}

func TestApplyExecutingSelfTransitionSetsStartedAtOnce(t *testing.T) {
	r := &model.Run{
		Status: model.RunStatusPlanning,
		Plan:   &model.Plan{Phases: []*model.Phase{{ID: 1, Status: model.PhaseStatusPending}}},
	}
	require.NoError(t, Apply(r, model.RunStatusExecuting, NoopHooks{}, time.Now()))
	started := r.StartedAt
	require.NotNil(t, started)

	time.Sleep(time.Millisecond)
	require.NoError(t, Apply(r, model.RunStatusExecuting, NoopHooks{}, time.Now()))
	assert.Equal(t, started, r.StartedAt, "re-entering executing must not reset StartedAt")
}
