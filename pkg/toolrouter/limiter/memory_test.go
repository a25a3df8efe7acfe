package limiter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterAllowsUpToPerMinute(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := l.Allow(ctx, "t1", "echo", 3, 0)
		require.NoError(t, err)
		assert.True(t, allowed, "call %d should be allowed", i)
	}

	allowed, retryAfterMs, err := l.Allow(ctx, "t1", "echo", 3, 0)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfterMs, int64(0))
}

func TestMemoryLimiterIsolatesByTenantAndTool(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	allowed, _, err := l.Allow(ctx, "t1", "echo", 1, 0)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = l.Allow(ctx, "t1", "echo", 1, 0)
	require.NoError(t, err)
	assert.False(t, allowed, "second call for the same tenant+tool should be limited")

	allowed, _, err = l.Allow(ctx, "t2", "echo", 1, 0)
	require.NoError(t, err)
	assert.True(t, allowed, "a different tenant has its own window")

	allowed, _, err = l.Allow(ctx, "t1", "shell", 1, 0)
	require.NoError(t, err)
	assert.True(t, allowed, "a different tool has its own window")
}

func TestMemoryLimiterEnforcesHourlyCeilingBelowMinuteLimit(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	allowed, _, err := l.Allow(ctx, "t1", "echo", 100, 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = l.Allow(ctx, "t1", "echo", 100, 1)
	require.NoError(t, err)
	assert.False(t, allowed, "hourly ceiling trips even though minute limit has room")
}

func TestMemoryLimiterZeroLimitMeansUnbounded(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		allowed, _, err := l.Allow(ctx, "t1", "echo", 0, 0)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}
