package e2e

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/ingress"
	"github.com/conductor-run/conductor/pkg/model"
)

// TestProviderFallback fails the primary provider on both calls it would
// normally serve (plan synthesis, then the single decision) and checks the
// fallback chain's second entry carries the run to completion, leaving the
// primary's recorded health at degraded rather than unhealthy (the circuit
// breaker trips at three consecutive failures, not two).
func TestProviderFallback(t *testing.T) {
	app := NewTestApp(t)

	app.LLM.QueueError(primaryProviderName, errors.New("primary unavailable"))
	app.LLM.Queue(fallbackProviderName, planContent(t, scriptedPlan{
		Goal: "answer via fallback",
		Phases: []scriptedPlanPhase{
			{ID: 1, Title: "deliver", Description: "hand it off", Capabilities: []string{}, EstimatedSteps: 1, IsDelivery: true},
		},
	}))

	app.LLM.QueueError(primaryProviderName, errors.New("primary unavailable"))
	app.LLM.Queue(fallbackProviderName, actionContent(t, taskCompleteAction("done via fallback")))

	runID := app.Create(t, ingress.CreateRunRequest{Prompt: "answer via fallback", ExternalID: "fallback-1"})
	app.Start(t, runID)

	status := app.WaitForStatus(t, runID, 5*time.Second, "completed", "failed", "timeout")
	require.Equal(t, model.RunStatusCompleted, status.Status)

	assert.GreaterOrEqual(t, app.LLM.CallCount(primaryProviderName), 2)
	assert.GreaterOrEqual(t, app.LLM.CallCount(fallbackProviderName), 2)

	health := app.Router.Health()
	primary, ok := health[primaryProviderName]
	require.True(t, ok, "expected health recorded for the primary provider")
	assert.Equal(t, model.HealthStatusDegraded, primary.Status)
	assert.Equal(t, 2, primary.FailureCount)
}
