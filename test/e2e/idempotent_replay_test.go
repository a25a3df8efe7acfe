package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/ingress"
	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/toolrouter"
)

// TestIdempotentToolReplay seeds a completed Step under the idempotency key
// the Supervisor would compute for the run's very first step, simulating a
// worker that already executed the tool before a crash. The dispatch loop
// must recognize the existing terminal step and replay its recorded output
// rather than invoking the handler (and paying its cost) a second time.
func TestIdempotentToolReplay(t *testing.T) {
	app := NewTestApp(t)

	var researchCalls int
	app.Tools.Unregister("research")
	require.True(t, app.Tools.Register("research", func(ctx context.Context, call toolrouter.ToolCall) (map[string]any, error) {
		researchCalls++
		return map[string]any{"tool": "research"}, nil
	}))

	runID := app.Create(t, ingress.CreateRunRequest{Prompt: "answer with a replayed step", ExternalID: "replay-1"})

	seededKey := model.IdempotencyKey(runID, 1, "research")
	require.NoError(t, app.Store.Steps.Create(context.Background(), &model.Step{
		ID:              seededKey,
		RunID:           runID,
		PhaseID:         "1",
		Sequence:        1,
		ToolName:        "research",
		ToolOutput:      map[string]any{"tool": "research", "replayed": true},
		Status:          model.StepStatusCompleted,
		CreatedAt:       time.Now(),
		IdempotencyKey:  seededKey,
		CreditsConsumed: 10,
	}))

	app.LLM.Queue(primaryProviderName, planContent(t, scriptedPlan{
		Goal: "answer with a replayed step",
		Phases: []scriptedPlanPhase{
			{ID: 1, Title: "work", Description: "research then deliver", Capabilities: []string{}, EstimatedSteps: 2, IsDelivery: true},
		},
	}))
	app.LLM.Queue(primaryProviderName, actionContent(t, toolAction("research", map[string]any{"query": "q"})))
	app.LLM.Queue(primaryProviderName, actionContent(t, toolAction("deliver", map[string]any{"channel": "email"})))
	app.LLM.Queue(primaryProviderName, actionContent(t, taskCompleteAction("done")))

	app.Start(t, runID)

	status := app.WaitForStatus(t, runID, 5*time.Second, "completed", "failed", "timeout")
	require.Equal(t, model.RunStatusCompleted, status.Status)

	assert.Zero(t, researchCalls, "the seeded terminal step should have been replayed, not re-executed")
	assert.Equal(t, int64(4), status.CreditsConsumed, "only deliver's own cost should be consumed; the replayed research step's cost was already settled")
}
