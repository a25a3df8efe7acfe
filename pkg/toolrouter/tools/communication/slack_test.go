package communication

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/toolrouter"
)

func TestHandlerPostsMessage(t *testing.T) {
	var posted bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posted = true
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true, "channel": "C123", "ts": "1234.5678"}`))
	}))
	defer server.Close()

	client := NewClientWithAPIURL("xoxb-test", "C123", server.URL+"/")
	h := Handler(client)

	result, err := h(context.Background(), toolrouter.ToolCall{
		Input: map[string]any{"message": "hello team"},
	})
	require.NoError(t, err)
	assert.True(t, posted)
	assert.Equal(t, true, result["posted"])
}

func TestHandlerRequiresMessage(t *testing.T) {
	client := NewClient("xoxb-test", "C123")
	h := Handler(client)
	_, err := h(context.Background(), toolrouter.ToolCall{Input: map[string]any{}})
	require.Error(t, err)
}
