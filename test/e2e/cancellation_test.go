package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/ingress"
	"github.com/conductor-run/conductor/pkg/model"
)

// TestCancellationMidPhase stops a run while a long_running tool call is
// in flight and checks only Run-level guarantees: the run ends cancelled
// (never failed) and consumes no credits. The in-flight step's own terminal sub-status is not asserted:
// a step interrupted by a parent cancellation is indistinguishable, from
// the tool router's point of view, from one that hit its own deadline.
func TestCancellationMidPhase(t *testing.T) {
	app := NewTestApp(t)

	app.LLM.Queue(primaryProviderName, planContent(t, scriptedPlan{
		Goal: "do something slow",
		Phases: []scriptedPlanPhase{
			{ID: 1, Title: "work", Description: "run the slow tool", Capabilities: []string{}, EstimatedSteps: 1, IsDelivery: true},
		},
	}))
	app.LLM.Queue(primaryProviderName, actionContent(t, toolAction("long_running", map[string]any{})))

	runID := app.Create(t, ingress.CreateRunRequest{Prompt: "do something slow", ExternalID: "cancel-1"})
	app.Start(t, runID)

	app.WaitForStatus(t, runID, 5*time.Second, "executing", "waiting_user", "completed", "failed", "timeout", "cancelled")

	require.Eventually(t, func() bool {
		steps, err := app.Store.Steps.ListByRun(context.Background(), runID)
		return err == nil && len(steps) > 0
	}, 2*time.Second, 10*time.Millisecond, "expected the long_running step to be recorded before cancelling")

	app.Stop(t, runID)

	status := app.WaitForStatus(t, runID, 5*time.Second, "cancelled", "completed", "failed", "timeout")
	require.Equal(t, model.RunStatusCancelled, status.Status)
	assert.Zero(t, status.CreditsConsumed, "long_running is zero-cost and was never completed")
}
