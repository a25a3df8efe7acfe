// Package deployment implements deployment_trigger: kick off a deployment
// pipeline run against an operator-configured CI/CD webhook and report
// back whatever identifier it returns.
package deployment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/conductor-run/conductor/pkg/toolrouter"
)

// Handler builds the deployment_trigger Handler. webhookURL receives a POST
// with the call's input as its JSON body (e.g. {"environment": "staging",
// "ref": "main"}).
func Handler(httpClient *http.Client, webhookURL, authToken string) toolrouter.Handler {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return func(ctx context.Context, call toolrouter.ToolCall) (map[string]any, error) {
		body, err := json.Marshal(call.Input)
		if err != nil {
			return nil, fmt.Errorf("deployment_trigger: encoding input: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("deployment_trigger: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if authToken != "" {
			req.Header.Set("Authorization", "Bearer "+authToken)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("deployment_trigger: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("deployment_trigger: pipeline returned status %d", resp.StatusCode)
		}

		var pipeline struct {
			DeploymentID string `json:"deployment_id"`
			Status       string `json:"status"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&pipeline)

		return map[string]any{
			"deployment_id": pipeline.DeploymentID,
			"status":        pipeline.Status,
		}, nil
	}
}
