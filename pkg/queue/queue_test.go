package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/store"
	"github.com/conductor-run/conductor/pkg/store/memstore"
)

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount:             2,
		MaxConcurrentRuns:       5,
		PollInterval:            10 * time.Millisecond,
		PollIntervalJitter:      5 * time.Millisecond,
		LeaseDuration:           50 * time.Millisecond,
		OrphanDetectionInterval: 20 * time.Millisecond,
		OrphanThreshold:         10 * time.Millisecond,
	}
}

// fakeExecutor records every run it's handed and optionally fails or hangs.
type fakeExecutor struct {
	mu      sync.Mutex
	seen    []string
	err     error
	block   chan struct{} // if non-nil, Execute waits for this or ctx.Done()
	onExec  func(run *model.Run)
}

func (f *fakeExecutor) Execute(ctx context.Context, run *model.Run) error {
	f.mu.Lock()
	f.seen = append(f.seen, run.ID)
	f.mu.Unlock()

	if f.onExec != nil {
		f.onExec(run)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return f.err
}

func (f *fakeExecutor) runIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.seen))
	copy(out, f.seen)
	return out
}

func TestWorkerPollIntervalWithinJitterRange(t *testing.T) {
	w := newWorker("w1", "node-1", nil, testQueueConfig(), nil, nil, nil)
	for i := 0; i < 100; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, 5*time.Millisecond)
		assert.LessOrEqual(t, d, 15*time.Millisecond)
	}
}

func TestWorkerPollIntervalNoJitter(t *testing.T) {
	cfg := testQueueConfig()
	cfg.PollIntervalJitter = 0
	w := newWorker("w1", "node-1", nil, cfg, nil, nil, nil)
	assert.Equal(t, cfg.PollInterval, w.pollInterval())
}

func TestWorkerHealthTracksStatus(t *testing.T) {
	w := newWorker("w1", "node-1", nil, testQueueConfig(), nil, nil, nil)

	h := w.Health()
	assert.Equal(t, WorkerStatusIdle, h.Status)
	assert.Equal(t, "", h.CurrentRunID)

	w.setStatus(WorkerStatusWorking, "run-1")
	h = w.Health()
	assert.Equal(t, WorkerStatusWorking, h.Status)
	assert.Equal(t, "run-1", h.CurrentRunID)
}

func TestPoolClaimsAndProcessesQueuedRun(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	run := &model.Run{Status: model.RunStatusQueued, CreatedAt: time.Now(), MaxRetries: 3}
	require.NoError(t, s.Runs.Create(ctx, run))

	exec := &fakeExecutor{onExec: func(r *model.Run) {
		r.Plan = &model.Plan{}
		_ = runApplyCompleted(s.Runs, r)
	}}

	pool := NewWorkerPool("node-1", s.Runs, testQueueConfig(), exec, nil)
	runCtx, cancel := context.WithCancel(ctx)
	pool.Start(runCtx)

	require.Eventually(t, func() bool {
		return len(exec.runIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	pool.Stop()

	assert.Equal(t, []string{run.ID}, exec.runIDs())
}

func TestWorkerFailsRunDefensivelyOnExecutorError(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	run := &model.Run{Status: model.RunStatusQueued, CreatedAt: time.Now(), MaxRetries: 3}
	require.NoError(t, s.Runs.Create(ctx, run))

	exec := &fakeExecutor{err: errors.New("boom")}
	pool := NewWorkerPool("node-1", s.Runs, testQueueConfig(), exec, nil)
	runCtx, cancel := context.WithCancel(ctx)
	pool.Start(runCtx)

	require.Eventually(t, func() bool {
		got, err := s.Runs.Get(ctx, run.ID)
		return err == nil && got.Status == model.RunStatusFailed
	}, time.Second, 5*time.Millisecond)

	cancel()
	pool.Stop()

	got, err := s.Runs.Get(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Error)
	assert.Equal(t, "EXECUTOR_ERROR", got.Error.Code)
}

func TestPoolRespectsCapacity(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	cfg := testQueueConfig()
	cfg.MaxConcurrentRuns = 1
	cfg.WorkerCount = 1

	blocking := make(chan struct{})
	run1 := &model.Run{Status: model.RunStatusQueued, CreatedAt: time.Now().Add(-time.Minute), MaxRetries: 3}
	run2 := &model.Run{Status: model.RunStatusQueued, CreatedAt: time.Now(), MaxRetries: 3}
	require.NoError(t, s.Runs.Create(ctx, run1))
	require.NoError(t, s.Runs.Create(ctx, run2))

	exec := &fakeExecutor{block: blocking}
	pool := NewWorkerPool("node-1", s.Runs, cfg, exec, nil)
	runCtx, cancel := context.WithCancel(ctx)
	pool.Start(runCtx)

	require.Eventually(t, func() bool { return len(exec.runIDs()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, exec.runIDs(), 1, "second run must wait for capacity")

	close(blocking)
	cancel()
	pool.Stop()
}

func TestPoolCancelRun(t *testing.T) {
	s := memstore.New()
	pool := NewWorkerPool("node-1", s.Runs, testQueueConfig(), &fakeExecutor{}, nil)

	cancelled := false
	pool.RegisterRun("run-1", func() { cancelled = true })
	assert.True(t, pool.CancelRun("run-1"))
	assert.True(t, cancelled)

	pool.UnregisterRun("run-1")
	assert.False(t, pool.CancelRun("run-1"), "an unregistered run can no longer be cancelled")
}

func TestOrphanReaperRequeuesExpiredLease(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	expiredLease := time.Now().Add(-time.Hour)
	run := &model.Run{
		Status: model.RunStatusExecuting, MaxRetries: 3, RetryCount: 0,
		LeaseExpiresAt: &expiredLease, WorkerID: "dead-worker",
	}
	require.NoError(t, s.Runs.Create(ctx, run))

	cfg := testQueueConfig()
	cfg.WorkerCount = 0
	pool := NewWorkerPool("node-1", s.Runs, cfg, &fakeExecutor{}, nil)

	require.NoError(t, pool.detectAndRecoverOrphans(ctx))

	got, err := s.Runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Empty(t, got.WorkerID)
}

func TestOrphanReaperFailsRunAfterMaxRetries(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	expiredLease := time.Now().Add(-time.Hour)
	run := &model.Run{
		Status: model.RunStatusExecuting, MaxRetries: 1, RetryCount: 1,
		LeaseExpiresAt: &expiredLease,
	}
	require.NoError(t, s.Runs.Create(ctx, run))

	pool := NewWorkerPool("node-1", s.Runs, testQueueConfig(), &fakeExecutor{}, nil)
	require.NoError(t, pool.detectAndRecoverOrphans(ctx))

	got, err := s.Runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "LEASE_EXPIRED_EXCEEDED", got.Error.Code)
}

func TestReapTimedOutRunsTransitionsWaitingUserToTimeout(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	pastDeadline := time.Now().Add(-time.Minute)
	run := &model.Run{Status: model.RunStatusWaitingUser, TimeoutAt: &pastDeadline}
	require.NoError(t, s.Runs.Create(ctx, run))

	pool := NewWorkerPool("node-1", s.Runs, testQueueConfig(), &fakeExecutor{}, nil)
	require.NoError(t, pool.reapTimedOutRuns(ctx))

	got, err := s.Runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusTimeout, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "RUN_TIMEOUT", got.Error.Code)
}

func TestReapTimedOutRunsLeavesLiveDeadlineAlone(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	futureDeadline := time.Now().Add(time.Minute)
	run := &model.Run{Status: model.RunStatusWaitingUser, TimeoutAt: &futureDeadline}
	require.NoError(t, s.Runs.Create(ctx, run))

	pool := NewWorkerPool("node-1", s.Runs, testQueueConfig(), &fakeExecutor{}, nil)
	require.NoError(t, pool.reapTimedOutRuns(ctx))

	got, err := s.Runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusWaitingUser, got.Status)
}

// runApplyCompleted is a tiny test helper that transitions a run straight
// from executing to completed the way a real Supervisor would once every
// phase reports done — queue_test.go doesn't exercise the Supervisor
// itself, only the worker's claim/execute/fallback plumbing around it.
func runApplyCompleted(runs store.RunStore, r *model.Run) error {
	r.Status = model.RunStatusCompleted
	now := time.Now()
	r.CompletedAt = &now
	r.Version++
	return runs.UpdateVersioned(context.Background(), r, r.Version-1)
}
