// Package search implements the web_search tool body over a pluggable
// HTTP-backed search API, so the concrete provider (SerpAPI, Bing, a
// self-hosted index) is an operator choice rather than baked in here.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/conductor-run/conductor/pkg/toolrouter"
)

// Handler builds the web_search Handler, calling endpoint with the query
// string appended as a "q" parameter and apiKey as a bearer token.
func Handler(httpClient *http.Client, endpoint, apiKey string) toolrouter.Handler {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return func(ctx context.Context, call toolrouter.ToolCall) (map[string]any, error) {
		query, _ := call.Input["query"].(string)
		if query == "" {
			return nil, fmt.Errorf("web_search: \"query\" input is required")
		}

		reqURL := endpoint + "?q=" + url.QueryEscape(query)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("web_search: %w", err)
		}
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("web_search: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("web_search: provider returned status %d", resp.StatusCode)
		}

		var results any
		if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
			return nil, fmt.Errorf("web_search: decoding provider response: %w", err)
		}

		return map[string]any{"query": query, "results": results}, nil
	}
}
