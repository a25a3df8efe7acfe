package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/events"
	"github.com/conductor-run/conductor/pkg/ingress"
)

// do issues an authenticated request against the TestApp's server and
// decodes the JSON response into out when out is non-nil, the same shape
// conductorctl's client.do uses against a real conductord.
func (a *TestApp) do(method, path string, body, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, a.Server.URL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Create posts a new run and returns its id.
func (a *TestApp) Create(t *testing.T, req ingress.CreateRunRequest) string {
	t.Helper()
	var resp ingress.CreateRunResponse
	httpResp, err := a.do(http.MethodPost, "/v1/runs", req, &resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, httpResp.StatusCode)
	return resp.RunID
}

// Start moves a pending run to queued.
func (a *TestApp) Start(t *testing.T, runID string) {
	t.Helper()
	httpResp, err := a.do(http.MethodPost, "/v1/runs/"+runID+"/start", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
}

// Stop cancels a run.
func (a *TestApp) Stop(t *testing.T, runID string) {
	t.Helper()
	httpResp, err := a.do(http.MethodPost, "/v1/runs/"+runID+"/stop", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
}

// Resume feeds userInput back into a waiting_user (or paused) run.
func (a *TestApp) Resume(t *testing.T, runID, userInput string) {
	t.Helper()
	httpResp, err := a.do(http.MethodPost, "/v1/runs/"+runID+"/resume",
		ingress.ResumeRunRequest{UserInput: userInput}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
}

// Retry creates a new run from a failed one's prompt and returns its id.
func (a *TestApp) Retry(t *testing.T, runID string) string {
	t.Helper()
	var resp ingress.CreateRunResponse
	httpResp, err := a.do(http.MethodPost, "/v1/runs/"+runID+"/retry", nil, &resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, httpResp.StatusCode)
	return resp.RunID
}

// Status fetches a run's current status response.
func (a *TestApp) Status(t *testing.T, runID string) ingress.RunStatusResponse {
	t.Helper()
	var resp ingress.RunStatusResponse
	httpResp, err := a.do(http.MethodGet, "/v1/runs/"+runID, nil, &resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	return resp
}

// WaitForStatus polls Status until the run reaches one of the wanted
// statuses or timeout elapses, failing the test otherwise.
func (a *TestApp) WaitForStatus(t *testing.T, runID string, timeout time.Duration, wanted ...string) ingress.RunStatusResponse {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last ingress.RunStatusResponse
	for time.Now().Before(deadline) {
		last = a.Status(t, runID)
		for _, w := range wanted {
			if string(last.Status) == w {
				return last
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach status %v within %s, last status %q", runID, wanted, timeout, last.Status)
	return last
}

// sseEvent is the e2e package's decoded view of one SSE frame: the event:
// line as Type, the data: line parsed as an events.Event.
type sseEvent struct {
	Type string
	Event events.Event
}

// StreamEvents opens /v1/runs/:id/events and returns a channel of decoded
// events plus a function to stop the stream. The reader goroutine parses
// the wire format line by line (blank line terminates one frame), the
// same minimal approach conductorctl's events command uses, rather than
// depending on a specific SSE client library's framing assumptions.
func (a *TestApp) StreamEvents(t *testing.T, runID string, since int64) (<-chan sseEvent, func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	path := fmt.Sprintf("/v1/runs/%s/events", runID)
	if since > 0 {
		path += fmt.Sprintf("?since=%d", since)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.Server.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := make(chan sseEvent, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var current sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				current.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				_ = json.Unmarshal([]byte(data), &current.Event)
			case line == "":
				if current.Type == "" {
					continue
				}
				select {
				case out <- current:
				case <-ctx.Done():
					return
				}
				current = sseEvent{}
			}
		}
	}()

	return out, cancel
}
