// Package credit implements the reserve/consume/finalize/release protocol
// described in spec §4.7: a Run's credit reservation is created when it
// leaves pending, debited atomically as billable steps complete, and
// settled (finalized or released) when the Run reaches a terminal state.
package credit

import "context"

// Counter enforces the "consumed never exceeds reserved" invariant
// atomically, independent of the durable CreditReservation record in
// store.CreditStore. Grounded on pkg/toolrouter/limiter's
// Limiter/RedisLimiter/MemoryLimiter split: a distributed counter for
// production, an in-process one for tests and single-instance
// deployments, same interface either way.
type Counter interface {
	// IncrBy atomically adds amount to the reservation's running total and
	// reports whether the result stayed within ceiling. On ok=false the
	// counter is left unchanged and newTotal is the total before the
	// attempted increment.
	IncrBy(ctx context.Context, reservationID string, amount, ceiling int64) (newTotal int64, ok bool, err error)

	// Reset clears the counter, used when a reservation is released or
	// finalized so a reused reservation ID (there should never be one, but
	// tests construct them freely) starts from zero.
	Reset(ctx context.Context, reservationID string) error
}
