package e2e

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/ingress"
	"github.com/conductor-run/conductor/pkg/model"
)

// TestHardTimeout caps a run at a single step via MaxSteps and checks the
// decision loop ends the run at timeout rather than looping forever or
// reporting a generic failure.
func TestHardTimeout(t *testing.T) {
	app := NewTestApp(t)

	app.LLM.Queue(primaryProviderName, planContent(t, scriptedPlan{
		Goal: "never actually finish",
		Phases: []scriptedPlanPhase{
			{ID: 1, Title: "work", Description: "keep going", Capabilities: []string{}, EstimatedSteps: 5, IsDelivery: true},
		},
	}))
	app.LLM.Queue(primaryProviderName, actionContent(t, toolAction("research", map[string]any{"query": "q"})))

	runID := app.Create(t, ingress.CreateRunRequest{
		Prompt:     "never actually finish",
		ExternalID: "timeout-1",
		Config:     &ingress.RunConfigOverrides{MaxSteps: 1},
	})
	app.Start(t, runID)

	status := app.WaitForStatus(t, runID, 5*time.Second, "timeout", "completed", "failed", "cancelled")
	require.Equal(t, model.RunStatusTimeout, status.Status)
	assert.Equal(t, 1, status.StepCount)
}
