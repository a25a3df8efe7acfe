package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/runstate"
	"github.com/conductor-run/conductor/pkg/store"
)

// Sentinel errors surfaced to callers; the Supervisor maps these onto
// orcherr codes when persisting a terminal Run.Error.
var (
	// ErrNoActiveReservation is returned by Consume when the run has no
	// active CreditReservation to act on.
	ErrNoActiveReservation = errors.New("credit: no active reservation for run")

	// ErrExhausted is returned by Consume when amount would drive
	// consumed above reserved.
	ErrExhausted = errors.New("credit: reservation exhausted")
)

// reservationStore is the subset of store.CreditStore the Manager depends
// on, named to mirror pkg/supervisor's narrowed store seams.
type reservationStore interface {
	Create(ctx context.Context, res *model.CreditReservation) error
	Get(ctx context.Context, id string) (*model.CreditReservation, error)
	GetActiveForRun(ctx context.Context, runID string) (*model.CreditReservation, error)
	UpdateVersioned(ctx context.Context, res *model.CreditReservation, expectedVersion int64) error
}

// Manager implements the reserve/consume/finalize/release protocol (spec
// §4.7) and runstate.Hooks: OnQueued reserves credits for a Run entering
// queued, OnTerminal settles the reservation depending on how the Run
// ended.
type Manager struct {
	store   reservationStore
	counter Counter

	defaultBudget int64
}

var _ runstate.Hooks = (*Manager)(nil)

// New builds a Manager. defaultBudget is used when a Run's
// config.max_credits is unset (zero).
func New(st reservationStore, counter Counter, defaultBudget int64) *Manager {
	return &Manager{store: st, counter: counter, defaultBudget: defaultBudget}
}

// OnQueued implements runstate.Hooks. It creates an active
// CreditReservation sized from r.Config.MaxCredits (falling back to the
// manager's default budget) and records the reserved amount on the Run so
// callers can read it back without a separate store round trip.
//
// A Run can re-enter queued more than once (the orphan reaper requeues a
// run whose lease expired mid-planning or mid-execution; ingress resume
// requeues a paused or waiting_user run) without ever becoming terminal in
// between, so this first checks for an already-active reservation and
// leaves it untouched rather than creating a second one, which would
// violate "a run has at most one active reservation."
func (m *Manager) OnQueued(r *model.Run) error {
	ctx := context.Background()
	if existing, err := m.store.GetActiveForRun(ctx, r.ID); err == nil {
		r.CreditsReserved = existing.AmountReserved
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("credit: check active reservation for run %s: %w", r.ID, err)
	}

	amount := r.Config.MaxCredits
	if amount <= 0 {
		amount = m.defaultBudget
	}

	res := &model.CreditReservation{
		ID:             uuid.NewString(),
		RunID:          r.ID,
		Status:         model.ReservationStatusActive,
		AmountReserved: amount,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if err := m.store.Create(ctx, res); err != nil {
		return fmt.Errorf("credit: reserve for run %s: %w", r.ID, err)
	}

	r.CreditsReserved = amount
	return nil
}

// OnTerminal implements runstate.Hooks. Completed runs finalize their
// reservation (debiting actual consumption); every other terminal status
// releases the unused balance.
func (m *Manager) OnTerminal(r *model.Run) error {
	ctx := context.Background()

	res, err := m.store.GetActiveForRun(ctx, r.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil // nothing reserved (e.g. a run that never reached queued)
	}
	if err != nil {
		return fmt.Errorf("credit: lookup active reservation for run %s: %w", r.ID, err)
	}

	reason := fmt.Sprintf("run %s terminal", r.Status)
	if r.Status == model.RunStatusCompleted {
		return m.finalize(ctx, res, reason)
	}
	return m.release(ctx, res, reason)
}

// Reserve creates a new active reservation directly, outside the OnQueued
// hook. It does not check for an existing active reservation.
func (m *Manager) Reserve(ctx context.Context, runID string, amount int64) (*model.CreditReservation, error) {
	res := &model.CreditReservation{
		ID:             uuid.NewString(),
		RunID:          runID,
		Status:         model.ReservationStatusActive,
		AmountReserved: amount,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := m.store.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("credit: reserve for run %s: %w", runID, err)
	}
	return res, nil
}

// Consume debits amount from the run's active reservation. The
// check-and-increment runs through Counter first so concurrent consumers
// never drive consumed above reserved; the durable record is then synced
// to match. Returns ErrExhausted when the reservation has no room left.
func (m *Manager) Consume(ctx context.Context, runID string, amount int64) error {
	if amount <= 0 {
		return nil
	}

	res, err := m.store.GetActiveForRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoActiveReservation
	}
	if err != nil {
		return fmt.Errorf("credit: lookup active reservation for run %s: %w", runID, err)
	}

	newTotal, ok, err := m.counter.IncrBy(ctx, res.ID, amount, res.AmountReserved)
	if err != nil {
		return fmt.Errorf("credit: incrby reservation %s: %w", res.ID, err)
	}
	if !ok {
		return ErrExhausted
	}

	// The Counter already made the ceiling check atomic; this is just
	// syncing the durable record, so a version conflict (another
	// concurrent step persisting its own consumption) is resolved by
	// re-reading and retrying rather than failing the call.
	for attempt := 0; attempt < 3; attempt++ {
		expected := res.Version
		res.AmountConsumed = newTotal
		res.UpdatedAt = time.Now()
		res.Version++

		err := m.store.UpdateVersioned(ctx, res, expected)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return fmt.Errorf("credit: persist consumption for reservation %s: %w", res.ID, err)
		}

		res, err = m.store.Get(ctx, res.ID)
		if err != nil {
			return fmt.Errorf("credit: re-read reservation %s after conflict: %w", res.ID, err)
		}
	}
	return fmt.Errorf("credit: persist consumption for reservation %s: %w", res.ID, store.ErrVersionConflict)
}

// finalize debits actual consumption and marks the reservation settled.
func (m *Manager) finalize(ctx context.Context, res *model.CreditReservation, reason string) error {
	return m.settle(ctx, res, model.ReservationStatusConsumed, reason)
}

// release returns the unused balance and marks the reservation settled.
func (m *Manager) release(ctx context.Context, res *model.CreditReservation, reason string) error {
	return m.settle(ctx, res, model.ReservationStatusReleased, reason)
}

func (m *Manager) settle(ctx context.Context, res *model.CreditReservation, to model.ReservationStatus, reason string) error {
	if !res.IsActive() {
		return nil // already settled, e.g. a retried terminal transition
	}

	expected := res.Version
	res.Status = to
	now := time.Now()
	res.UpdatedAt = now
	res.ReleasedAt = &now
	res.Version++
	if err := m.store.UpdateVersioned(ctx, res, expected); err != nil {
		return fmt.Errorf("credit: settle reservation %s as %s (%s): %w", res.ID, to, reason, err)
	}
	if err := m.counter.Reset(ctx, res.ID); err != nil {
		return fmt.Errorf("credit: reset counter for reservation %s: %w", res.ID, err)
	}
	return nil
}
