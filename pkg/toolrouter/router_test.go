package toolrouter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/toolrouter/limiter"
)

func testCatalog() *config.ToolRegistry {
	return config.NewToolRegistry(map[string]config.ToolCatalogEntry{
		"echo": {Name: "echo", Category: "file", TimeoutMs: 1000},
		"slow": {Name: "slow", Category: "file", TimeoutMs: 20},
		"limited": {
			Name: "limited", Category: "file", TimeoutMs: 1000,
			RateLimit: &config.RateLimitConfig{RequestsPerMinute: 1},
		},
	})
}

func TestRouterRegisterUnregisterHasList(t *testing.T) {
	r := New(testCatalog(), limiter.NewMemoryLimiter())
	assert.False(t, r.Has("echo"))

	ok := r.Register("echo", func(ctx context.Context, call ToolCall) (map[string]any, error) {
		return map[string]any{"echoed": call.Input["text"]}, nil
	})
	assert.True(t, ok)
	assert.True(t, r.Has("echo"))

	ok = r.Register("echo", func(ctx context.Context, call ToolCall) (map[string]any, error) { return nil, nil })
	assert.False(t, ok, "re-registering an existing name must fail")

	assert.Equal(t, []string{"echo"}, r.List())

	assert.True(t, r.Unregister("echo"))
	assert.False(t, r.Has("echo"))
	assert.False(t, r.Unregister("echo"))
}

func TestRouterExecuteSuccess(t *testing.T) {
	r := New(testCatalog(), limiter.NewMemoryLimiter())
	r.Register("echo", func(ctx context.Context, call ToolCall) (map[string]any, error) {
		return map[string]any{"echoed": call.Input["text"]}, nil
	})

	result, err := r.Execute(context.Background(), ToolCall{Name: "echo", TenantID: "t1", Input: map[string]any{"text": "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(result.Status))
	assert.Equal(t, "hi", result.Output["echoed"])
}

func TestRouterExecuteUnknownTool(t *testing.T) {
	r := New(testCatalog(), limiter.NewMemoryLimiter())
	_, err := r.Execute(context.Background(), ToolCall{Name: "missing"})
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestRouterExecuteHandlerError(t *testing.T) {
	r := New(testCatalog(), limiter.NewMemoryLimiter())
	r.Register("echo", func(ctx context.Context, call ToolCall) (map[string]any, error) {
		return nil, errors.New("boom")
	})

	result, err := r.Execute(context.Background(), ToolCall{Name: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "error", string(result.Status))
	assert.Equal(t, "TOOL_FAILED", result.Error.Code)
}

func TestRouterExecuteHandlerPanicBecomesHandlerException(t *testing.T) {
	r := New(testCatalog(), limiter.NewMemoryLimiter())
	r.Register("echo", func(ctx context.Context, call ToolCall) (map[string]any, error) {
		panic("unexpected")
	})

	result, err := r.Execute(context.Background(), ToolCall{Name: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "error", string(result.Status))
	assert.Contains(t, result.Error.Message, "HANDLER_EXCEPTION")
}

func TestRouterExecuteTimeout(t *testing.T) {
	r := New(testCatalog(), limiter.NewMemoryLimiter())
	r.Register("slow", func(ctx context.Context, call ToolCall) (map[string]any, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return map[string]any{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	result, err := r.Execute(context.Background(), ToolCall{Name: "slow"})
	require.NoError(t, err)
	assert.Equal(t, "timeout", string(result.Status))
	assert.Equal(t, "TOOL_TIMEOUT", result.Error.Code)
}

func TestRouterExecuteRateLimited(t *testing.T) {
	r := New(testCatalog(), limiter.NewMemoryLimiter())
	r.Register("limited", func(ctx context.Context, call ToolCall) (map[string]any, error) {
		return map[string]any{}, nil
	})

	first, err := r.Execute(context.Background(), ToolCall{Name: "limited", TenantID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(first.Status))

	second, err := r.Execute(context.Background(), ToolCall{Name: "limited", TenantID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "error", string(second.Status))
	assert.Equal(t, "RATE_LIMITED", second.Error.Code)

	// A different tenant has its own window.
	third, err := r.Execute(context.Background(), ToolCall{Name: "limited", TenantID: "t2"})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(third.Status))
}

func TestRouterExecuteBatchPreservesOrder(t *testing.T) {
	r := New(testCatalog(), limiter.NewMemoryLimiter())
	r.Register("echo", func(ctx context.Context, call ToolCall) (map[string]any, error) {
		return map[string]any{"echoed": call.Input["n"]}, nil
	})

	calls := make([]ToolCall, 10)
	for i := range calls {
		calls[i] = ToolCall{Name: "echo", Input: map[string]any{"n": i}}
	}

	results, err := r.ExecuteBatch(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, res := range results {
		assert.Equal(t, i, res.Output["echoed"])
	}
}
