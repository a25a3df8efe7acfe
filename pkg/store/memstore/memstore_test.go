package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/store"
)

func TestRunRepoCreateAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := &model.Run{TenantID: "t1", ExternalID: "ext-1", Status: model.RunStatusPending}
	require.NoError(t, s.Runs.Create(ctx, r))
	assert.NotEmpty(t, r.ID)

	got, err := s.Runs.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	byExt, err := s.Runs.GetByExternalID(ctx, "t1", "ext-1")
	require.NoError(t, err)
	assert.Equal(t, r.ID, byExt.ID)
}

func TestRunRepoGetNotFound(t *testing.T) {
	s := New()
	_, err := s.Runs.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunRepoUpdateVersionedConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := &model.Run{Status: model.RunStatusPending, Version: 1}
	require.NoError(t, s.Runs.Create(ctx, r))

	r.Status = model.RunStatusQueued
	r.Version = 2
	err := s.Runs.UpdateVersioned(ctx, r, 99)
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	require.NoError(t, s.Runs.UpdateVersioned(ctx, r, 1))
	got, _ := s.Runs.Get(ctx, r.ID)
	assert.Equal(t, model.RunStatusQueued, got.Status)
}

func TestRunRepoClaimNextOrdersByCreatedAt(t *testing.T) {
	s := New()
	ctx := context.Background()

	older := &model.Run{Status: model.RunStatusQueued, CreatedAt: time.Now().Add(-time.Hour)}
	newer := &model.Run{Status: model.RunStatusQueued, CreatedAt: time.Now()}
	require.NoError(t, s.Runs.Create(ctx, newer))
	require.NoError(t, s.Runs.Create(ctx, older))

	claimed, err := s.Runs.ClaimNext(ctx, "worker-1", 60_000)
	require.NoError(t, err)
	assert.Equal(t, older.ID, claimed.ID)
	assert.Equal(t, model.RunStatusPlanning, claimed.Status)
	assert.Equal(t, "worker-1", claimed.WorkerID)
	assert.NotNil(t, claimed.LeaseExpiresAt)
}

func TestRunRepoClaimNextNoneAvailable(t *testing.T) {
	s := New()
	_, err := s.Runs.ClaimNext(context.Background(), "worker-1", 60_000)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunRepoListExpiredLeases(t *testing.T) {
	s := New()
	ctx := context.Background()

	expiredLease := time.Now().Add(-time.Minute)
	r := &model.Run{Status: model.RunStatusExecuting, LeaseExpiresAt: &expiredLease}
	require.NoError(t, s.Runs.Create(ctx, r))

	liveLease := time.Now().Add(time.Minute)
	live := &model.Run{Status: model.RunStatusExecuting, LeaseExpiresAt: &liveLease}
	require.NoError(t, s.Runs.Create(ctx, live))

	expired, err := s.Runs.ListExpiredLeases(ctx, time.Now().UnixMilli())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, r.ID, expired[0].ID)
}

func TestRunRepoListTimedOut(t *testing.T) {
	s := New()
	ctx := context.Background()

	pastDeadline := time.Now().Add(-time.Minute)
	waiting := &model.Run{Status: model.RunStatusWaitingUser, TimeoutAt: &pastDeadline}
	require.NoError(t, s.Runs.Create(ctx, waiting))

	futureDeadline := time.Now().Add(time.Minute)
	stillWaiting := &model.Run{Status: model.RunStatusWaitingUser, TimeoutAt: &futureDeadline}
	require.NoError(t, s.Runs.Create(ctx, stillWaiting))

	noDeadline := &model.Run{Status: model.RunStatusWaitingUser}
	require.NoError(t, s.Runs.Create(ctx, noDeadline))

	executing := &model.Run{Status: model.RunStatusExecuting, TimeoutAt: &pastDeadline}
	require.NoError(t, s.Runs.Create(ctx, executing))

	timedOut, err := s.Runs.ListTimedOut(ctx, time.Now().UnixMilli())
	require.NoError(t, err)
	require.Len(t, timedOut, 1)
	assert.Equal(t, waiting.ID, timedOut[0].ID)
}

func TestRunRepoCountExecuting(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Runs.Create(ctx, &model.Run{Status: model.RunStatusPlanning}))
	require.NoError(t, s.Runs.Create(ctx, &model.Run{Status: model.RunStatusExecuting}))
	require.NoError(t, s.Runs.Create(ctx, &model.Run{Status: model.RunStatusQueued}))
	require.NoError(t, s.Runs.Create(ctx, &model.Run{Status: model.RunStatusCompleted}))

	count, err := s.Runs.CountExecuting(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStepRepoIdempotencyLookup(t *testing.T) {
	s := New()
	ctx := context.Background()

	st := &model.Step{RunID: "run-1", IdempotencyKey: "abc"}
	require.NoError(t, s.Steps.Create(ctx, st))

	got, err := s.Steps.GetByIdempotencyKey(ctx, "run-1", "abc")
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)

	_, err = s.Steps.GetByIdempotencyKey(ctx, "run-1", "other")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStepRepoListByRunOrdersBySequence(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Steps.Create(ctx, &model.Step{RunID: "run-1", Sequence: 2}))
	require.NoError(t, s.Steps.Create(ctx, &model.Step{RunID: "run-1", Sequence: 1}))
	require.NoError(t, s.Steps.Create(ctx, &model.Step{RunID: "run-2", Sequence: 1}))

	steps, err := s.Steps.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].Sequence)
	assert.Equal(t, 2, steps[1].Sequence)
}

func TestArtifactRepoCreateIsContentAddressedIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	hash := model.ContentHash([]byte("hello"))
	first := &model.Artifact{RunID: "run-1", ContentHash: hash}
	require.NoError(t, s.Artifacts.Create(ctx, first))

	second := &model.Artifact{RunID: "run-1", ContentHash: hash}
	require.NoError(t, s.Artifacts.Create(ctx, second))

	assert.Equal(t, first.ID, second.ID, "duplicate content hash must return the same artifact id")
}

func TestCreditRepoActiveLookup(t *testing.T) {
	s := New()
	ctx := context.Background()

	res := &model.CreditReservation{RunID: "run-1", Status: model.ReservationStatusActive, Version: 1}
	require.NoError(t, s.Credits.Create(ctx, res))

	active, err := s.Credits.GetActiveForRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, res.ID, active.ID)

	res.Status = model.ReservationStatusConsumed
	res.Version = 2
	require.NoError(t, s.Credits.UpdateVersioned(ctx, res, 1))

	_, err = s.Credits.GetActiveForRun(ctx, "run-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
