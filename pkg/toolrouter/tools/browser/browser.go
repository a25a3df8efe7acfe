// Package browser implements browser_open: fetch a URL and return its
// rendered text. A minimal HTTP fetch stands in for a full headless
// browser backend, which an operator wires in via httpClient's Transport
// (e.g. pointing at a rendering proxy) without changing this handler.
package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/conductor-run/conductor/pkg/toolrouter"
)

const maxBodyBytes = 2 << 20 // 2 MiB, enough for rendered page text without risking runaway memory

// Handler builds the browser_open Handler.
func Handler(httpClient *http.Client) toolrouter.Handler {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return func(ctx context.Context, call toolrouter.ToolCall) (map[string]any, error) {
		target, _ := call.Input["url"].(string)
		if target == "" {
			return nil, fmt.Errorf("browser_open: \"url\" input is required")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("browser_open: %w", err)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("browser_open: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("browser_open: reading response: %w", err)
		}

		return map[string]any{
			"url":         target,
			"status_code": resp.StatusCode,
			"content":     string(body),
		}, nil
	}
}
