// Package store defines the Persistence Seam (spec §1, §6): typed
// repository interfaces the rest of the orchestrator programs against,
// with the actual database treated as an external system whose interface
// is all that matters. pkg/store/memstore backs tests and local
// development; pkg/store/postgres is the production adapter over
// jackc/pgx/v5.
package store

import (
	"context"
	"errors"

	"github.com/conductor-run/conductor/pkg/model"
)

// ErrNotFound is returned by any Get when the id doesn't exist.
var ErrNotFound = errors.New("store: not found")

// ErrVersionConflict is returned by RunStore.UpdateVersioned when the
// caller's expected version doesn't match what's stored — the optimistic
// concurrency failure mode spec §4.1 requires.
var ErrVersionConflict = errors.New("store: version conflict")

// RunStore persists Run aggregates (Run + its Plan/Phases; Steps are
// tracked separately by StepStore, keyed by run_id).
type RunStore interface {
	Create(ctx context.Context, r *model.Run) error
	Get(ctx context.Context, id string) (*model.Run, error)
	GetByExternalID(ctx context.Context, tenantID, externalID string) (*model.Run, error)

	// UpdateVersioned persists r if and only if the stored version still
	// equals expectedVersion, then atomically bumps the stored version to
	// r.Version. Returns ErrVersionConflict otherwise.
	UpdateVersioned(ctx context.Context, r *model.Run, expectedVersion int64) error

	// ClaimNext selects the next queued run ordered by created_at asc and
	// atomically marks it planning with a lease, mirroring the teacher's
	// FOR UPDATE SKIP LOCKED claim. Returns store.ErrNotFound if nothing
	// is queued.
	ClaimNext(ctx context.Context, workerID string, leaseDuration int64) (*model.Run, error)

	// ListExpiredLeases returns runs whose lease has passed now (unix ms)
	// and are still in a leased, non-terminal status, for the orphan reaper.
	ListExpiredLeases(ctx context.Context, nowUnixMs int64) ([]*model.Run, error)

	// ListTimedOut returns runs parked in waiting_user or paused whose
	// TimeoutAt has passed now (unix ms), for the reaper that enforces
	// the inherited max_duration_seconds deadline on a suspended run.
	ListTimedOut(ctx context.Context, nowUnixMs int64) ([]*model.Run, error)

	// CountExecuting returns the number of runs currently in planning or
	// executing status, used by the Dispatcher's capacity gate (spec §4.2).
	CountExecuting(ctx context.Context) (int, error)
}

// StepStore persists Steps within a Run.
type StepStore interface {
	Create(ctx context.Context, s *model.Step) error
	Update(ctx context.Context, s *model.Step) error
	Get(ctx context.Context, id string) (*model.Step, error)
	GetByIdempotencyKey(ctx context.Context, runID, key string) (*model.Step, error)
	ListByRun(ctx context.Context, runID string) ([]*model.Step, error)
}

// ArtifactStore persists Artifact metadata (content bytes live behind
// pkg/artifact's blob seam; this tracks the record, not the bytes).
type ArtifactStore interface {
	Create(ctx context.Context, a *model.Artifact) error
	Get(ctx context.Context, id string) (*model.Artifact, error)
	GetByContentHash(ctx context.Context, contentHash string) (*model.Artifact, error)
	ListByRun(ctx context.Context, runID string) ([]*model.Artifact, error)
}

// CreditStore persists CreditReservations.
type CreditStore interface {
	Create(ctx context.Context, res *model.CreditReservation) error
	Get(ctx context.Context, id string) (*model.CreditReservation, error)
	GetActiveForRun(ctx context.Context, runID string) (*model.CreditReservation, error)
	UpdateVersioned(ctx context.Context, res *model.CreditReservation, expectedVersion int64) error
}
