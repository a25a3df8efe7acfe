// Package memstore is an in-memory implementation of pkg/store's
// repository interfaces, used in unit tests and local development in
// place of the postgres adapter. It is grounded on the teacher's
// WorkerPool activeSessions map: a single sync.RWMutex guarding plain Go
// maps, with defensive copies on every read.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/store"
)

// data is the shared in-memory state backing every repository view. It is
// unexported so the only way to reach it is through the four typed
// repositories below, each satisfying exactly one store interface.
type data struct {
	mu sync.RWMutex

	runs             map[string]*model.Run
	runsByExternalID map[string]string

	steps              map[string]*model.Step
	stepsByIdempotency map[string]string

	artifacts       map[string]*model.Artifact
	artifactsByHash map[string]string

	reservations map[string]*model.CreditReservation
}

func newData() *data {
	return &data{
		runs:               make(map[string]*model.Run),
		runsByExternalID:   make(map[string]string),
		steps:              make(map[string]*model.Step),
		stepsByIdempotency: make(map[string]string),
		artifacts:          make(map[string]*model.Artifact),
		artifactsByHash:    make(map[string]string),
		reservations:       make(map[string]*model.CreditReservation),
	}
}

func externalKey(tenantID, externalID string) string { return tenantID + "/" + externalID }
func idempotencyKey(runID, key string) string        { return runID + "/" + key }

// Store is a bundle of the four in-memory repositories, sharing one
// underlying map set the way a single test database backs several
// repository interfaces in the teacher's integration tests.
type Store struct {
	Runs      *RunRepo
	Steps     *StepRepo
	Artifacts *ArtifactRepo
	Credits   *CreditRepo
}

// New constructs an empty, fully wired Store.
func New() *Store {
	d := newData()
	return &Store{
		Runs:      &RunRepo{d: d},
		Steps:     &StepRepo{d: d},
		Artifacts: &ArtifactRepo{d: d},
		Credits:   &CreditRepo{d: d},
	}
}

// RunRepo implements store.RunStore.
type RunRepo struct{ d *data }

var _ store.RunStore = (*RunRepo)(nil)

func (r *RunRepo) Create(ctx context.Context, run *model.Run) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	cp := *run
	r.d.runs[run.ID] = &cp
	if run.ExternalID != "" {
		r.d.runsByExternalID[externalKey(run.TenantID, run.ExternalID)] = run.ID
	}
	return nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (*model.Run, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	run, ok := r.d.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *RunRepo) GetByExternalID(ctx context.Context, tenantID, externalID string) (*model.Run, error) {
	r.d.mu.RLock()
	id, ok := r.d.runsByExternalID[externalKey(tenantID, externalID)]
	r.d.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *RunRepo) UpdateVersioned(ctx context.Context, run *model.Run, expectedVersion int64) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	existing, ok := r.d.runs[run.ID]
	if !ok {
		return store.ErrNotFound
	}
	if existing.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	cp := *run
	r.d.runs[run.ID] = &cp
	return nil
}

// ClaimNext selects the oldest queued run and marks it planning with a
// lease, mirroring the teacher's FOR UPDATE SKIP LOCKED claim under a
// single process-wide lock instead of a database row lock.
func (r *RunRepo) ClaimNext(ctx context.Context, workerID string, leaseDurationMs int64) (*model.Run, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	var candidates []*model.Run
	for _, run := range r.d.runs {
		if run.Status == model.RunStatusQueued {
			candidates = append(candidates, run)
		}
	}
	if len(candidates) == 0 {
		return nil, store.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	claimed := candidates[0]
	claimed.Status = model.RunStatusPlanning
	claimed.WorkerID = workerID
	lease := time.Now().Add(time.Duration(leaseDurationMs) * time.Millisecond)
	claimed.LeaseExpiresAt = &lease
	claimed.Version++

	cp := *claimed
	r.d.runs[claimed.ID] = &cp
	out := cp
	return &out, nil
}

func (r *RunRepo) ListExpiredLeases(ctx context.Context, nowUnixMs int64) ([]*model.Run, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	now := time.UnixMilli(nowUnixMs)
	var expired []*model.Run
	for _, run := range r.d.runs {
		if run.Status.IsTerminal() || run.LeaseExpiresAt == nil {
			continue
		}
		if run.LeaseExpiresAt.Before(now) {
			cp := *run
			expired = append(expired, &cp)
		}
	}
	return expired, nil
}

// ListTimedOut returns runs parked in waiting_user or paused whose
// TimeoutAt has passed, for the reaper that enforces the inherited
// max_duration_seconds deadline on a suspended run (its lease was already
// released on suspension, so ListExpiredLeases never sees it again).
func (r *RunRepo) ListTimedOut(ctx context.Context, nowUnixMs int64) ([]*model.Run, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	now := time.UnixMilli(nowUnixMs)
	var timedOut []*model.Run
	for _, run := range r.d.runs {
		if run.Status != model.RunStatusWaitingUser && run.Status != model.RunStatusPaused {
			continue
		}
		if run.TimeoutAt == nil || run.TimeoutAt.After(now) {
			continue
		}
		cp := *run
		timedOut = append(timedOut, &cp)
	}
	return timedOut, nil
}

func (r *RunRepo) CountExecuting(ctx context.Context) (int, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	count := 0
	for _, run := range r.d.runs {
		if run.Status == model.RunStatusPlanning || run.Status == model.RunStatusExecuting {
			count++
		}
	}
	return count, nil
}

// StepRepo implements store.StepStore.
type StepRepo struct{ d *data }

var _ store.StepStore = (*StepRepo)(nil)

func (r *StepRepo) Create(ctx context.Context, st *model.Step) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	cp := *st
	r.d.steps[st.ID] = &cp
	if st.IdempotencyKey != "" {
		r.d.stepsByIdempotency[idempotencyKey(st.RunID, st.IdempotencyKey)] = st.ID
	}
	return nil
}

func (r *StepRepo) Update(ctx context.Context, st *model.Step) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	if _, ok := r.d.steps[st.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *st
	r.d.steps[st.ID] = &cp
	return nil
}

func (r *StepRepo) Get(ctx context.Context, id string) (*model.Step, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	st, ok := r.d.steps[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (r *StepRepo) GetByIdempotencyKey(ctx context.Context, runID, key string) (*model.Step, error) {
	r.d.mu.RLock()
	id, ok := r.d.stepsByIdempotency[idempotencyKey(runID, key)]
	r.d.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *StepRepo) ListByRun(ctx context.Context, runID string) ([]*model.Step, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	var out []*model.Step
	for _, st := range r.d.steps {
		if st.RunID == runID {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// ArtifactRepo implements store.ArtifactStore.
type ArtifactRepo struct{ d *data }

var _ store.ArtifactStore = (*ArtifactRepo)(nil)

func (r *ArtifactRepo) Create(ctx context.Context, a *model.Artifact) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	if existingID, ok := r.d.artifactsByHash[a.ContentHash]; ok {
		*a = *r.d.artifacts[existingID]
		return nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	r.d.artifacts[a.ID] = &cp
	r.d.artifactsByHash[a.ContentHash] = a.ID
	return nil
}

func (r *ArtifactRepo) Get(ctx context.Context, id string) (*model.Artifact, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	a, ok := r.d.artifacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *ArtifactRepo) GetByContentHash(ctx context.Context, contentHash string) (*model.Artifact, error) {
	r.d.mu.RLock()
	id, ok := r.d.artifactsByHash[contentHash]
	r.d.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *ArtifactRepo) ListByRun(ctx context.Context, runID string) ([]*model.Artifact, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	var out []*model.Artifact
	for _, a := range r.d.artifacts {
		if a.RunID == runID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// CreditRepo implements store.CreditStore.
type CreditRepo struct{ d *data }

var _ store.CreditStore = (*CreditRepo)(nil)

func (r *CreditRepo) Create(ctx context.Context, res *model.CreditReservation) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	cp := *res
	r.d.reservations[res.ID] = &cp
	return nil
}

func (r *CreditRepo) Get(ctx context.Context, id string) (*model.CreditReservation, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	res, ok := r.d.reservations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *res
	return &cp, nil
}

func (r *CreditRepo) GetActiveForRun(ctx context.Context, runID string) (*model.CreditReservation, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	for _, res := range r.d.reservations {
		if res.RunID == runID && res.IsActive() {
			cp := *res
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *CreditRepo) UpdateVersioned(ctx context.Context, res *model.CreditReservation, expectedVersion int64) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	existing, ok := r.d.reservations[res.ID]
	if !ok {
		return store.ErrNotFound
	}
	if existing.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	cp := *res
	r.d.reservations[res.ID] = &cp
	return nil
}
