// Package runstate implements the Run lifecycle state machine (spec §4.1):
// the legal transition table, per-transition guards, and the optimistic
// concurrency check keyed on (id, version) that every mutation goes
// through. It does not persist anything itself — pkg/store applies the
// version-checked update the same way the teacher's claimNextSession does
// with FOR UPDATE SKIP LOCKED, and pkg/credit / pkg/events supply the
// terminal-transition side effects via the Hooks interface below.
package runstate

import (
	"fmt"
	"time"

	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/orcherr"
)

// Guard inspects the run and reports whether the transition may proceed.
type Guard func(r *model.Run) error

// edge is one legal (from, to) pair plus its optional guard.
type edge struct {
	to    model.RunStatus
	guard Guard
}

// transitions enumerates every legal edge in the spec §4.1 table. Anything
// not listed here is rejected with orcherr.CodeInvalidTransition.
var transitions = map[model.RunStatus][]edge{
	model.RunStatusPending: {
		{to: model.RunStatusQueued, guard: guardHasReservedCredits},
		{to: model.RunStatusCancelled},
		{to: model.RunStatusFailed},
	},
	model.RunStatusQueued: {
		{to: model.RunStatusPlanning},
		{to: model.RunStatusCancelled},
		{to: model.RunStatusTimeout},
	},
	model.RunStatusPlanning: {
		{to: model.RunStatusExecuting, guard: guardHasPlan},
		{to: model.RunStatusQueued}, // reaper: lease expired before a plan was produced
		{to: model.RunStatusFailed},
		{to: model.RunStatusCancelled},
	},
	model.RunStatusExecuting: {
		{to: model.RunStatusExecuting}, // self, on step progress
		{to: model.RunStatusPaused},
		{to: model.RunStatusWaitingUser},
		{to: model.RunStatusQueued}, // reaper: lease expired, worker presumed dead
		{to: model.RunStatusCompleted, guard: guardAllPhasesDone},
		{to: model.RunStatusFailed},
		{to: model.RunStatusCancelled},
		{to: model.RunStatusTimeout},
	},
	model.RunStatusPaused: {
		{to: model.RunStatusExecuting},
		// ingress resume re-queues rather than jumping straight back to
		// executing, since the Dispatcher only ever claims queued runs
		// (ClaimNext never looks at paused/waiting_user).
		{to: model.RunStatusQueued},
		{to: model.RunStatusCancelled},
		{to: model.RunStatusTimeout},
	},
	model.RunStatusWaitingUser: {
		{to: model.RunStatusExecuting},
		{to: model.RunStatusQueued},
		{to: model.RunStatusCancelled},
		{to: model.RunStatusTimeout},
	},
}

func guardHasReservedCredits(r *model.Run) error {
	if r.CreditsReserved <= 0 {
		return orcherr.New(orcherr.CodeInsufficientCredit, "run has no active credit reservation", true)
	}
	return nil
}

func guardHasPlan(r *model.Run) error {
	if r.Plan == nil {
		return orcherr.New(orcherr.CodePlanInvalid, "run has no accepted plan", false)
	}
	return nil
}

func guardAllPhasesDone(r *model.Run) error {
	if r.Plan == nil || !r.Plan.AllPhasesDone() {
		return orcherr.New(orcherr.CodeInvalidTransition, "not every phase is completed or skipped", false)
	}
	return nil
}

// CanTransition reports whether to is a legal next status for from, without
// evaluating guards.
func CanTransition(from, to model.RunStatus) bool {
	for _, e := range transitions[from] {
		if e.to == to {
			return true
		}
	}
	return false
}

// Validate checks that r.Status → to is legal and that any guard on that
// edge passes. It does not mutate r.
func Validate(r *model.Run, to model.RunStatus) error {
	if r.Status.IsTerminal() {
		return orcherr.New(orcherr.CodeInvalidTransition,
			fmt.Sprintf("run is in terminal state %s", r.Status), false)
	}

	for _, e := range transitions[r.Status] {
		if e.to != to {
			continue
		}
		if e.guard != nil {
			if err := e.guard(r); err != nil {
				return err
			}
		}
		return nil
	}

	return orcherr.New(orcherr.CodeInvalidTransition,
		fmt.Sprintf("%s -> %s is not a legal transition", r.Status, to), false)
}

// Hooks carries the side effects the spec attaches to particular
// transitions: queued enqueues (handled by the caller, which already holds
// the dispatcher), terminal states release or finalize the active credit
// reservation and emit a terminal event. Implementations live in
// pkg/credit and pkg/events; runstate only declares the seam so it stays
// free of their dependencies.
type Hooks interface {
	OnQueued(r *model.Run) error
	OnTerminal(r *model.Run) error
}

// NoopHooks implements Hooks with no side effects, useful in tests that
// only care about transition legality.
type NoopHooks struct{}

func (NoopHooks) OnQueued(*model.Run) error  { return nil }
func (NoopHooks) OnTerminal(*model.Run) error { return nil }

// CompositeHooks fans a single transition out to every hook in order,
// stopping at the first error. cmd/conductord wires *credit.Manager and
// *events.Publisher this way since each independently implements Hooks and
// Apply only ever calls one.
type CompositeHooks []Hooks

func (c CompositeHooks) OnQueued(r *model.Run) error {
	for _, h := range c {
		if err := h.OnQueued(r); err != nil {
			return err
		}
	}
	return nil
}

func (c CompositeHooks) OnTerminal(r *model.Run) error {
	for _, h := range c {
		if err := h.OnTerminal(r); err != nil {
			return err
		}
	}
	return nil
}

// Apply validates the transition, mutates r in place (status, timestamps,
// version), and runs the matching side-effect hook. The caller is
// responsible for persisting r with an optimistic-concurrency write keyed
// on the pre-increment version; Apply itself only increments the in-memory
// counter so the caller's compare-and-swap has the expected next value.
func Apply(r *model.Run, to model.RunStatus, hooks Hooks, now time.Time) error {
	// The queued hook is what reserves credits, and the pending→queued guard
	// checks that reservation, so on a legal edge into queued the hook runs
	// before Validate evaluates the guard.
	if to == model.RunStatusQueued && CanTransition(r.Status, to) {
		if err := hooks.OnQueued(r); err != nil {
			return fmt.Errorf("queued side effect failed: %w", err)
		}
	}

	if err := Validate(r, to); err != nil {
		return err
	}

	prevVersion := r.Version
	r.Status = to
	r.Version = prevVersion + 1

	switch to {
	case model.RunStatusExecuting:
		if r.StartedAt == nil {
			r.StartedAt = timePtr(now)
		}
	}

	if to.IsTerminal() {
		r.CompletedAt = timePtr(now)
		if err := hooks.OnTerminal(r); err != nil {
			return fmt.Errorf("terminal side effect failed: %w", err)
		}
	}

	return nil
}

func timePtr(t time.Time) *time.Time { return &t }
