package model

import "time"

// ReservationStatus is the lifecycle state of a CreditReservation.
type ReservationStatus string

// Reservation lifecycle states (spec §4.7).
const (
	ReservationStatusActive   ReservationStatus = "active"
	ReservationStatusConsumed ReservationStatus = "consumed"
	ReservationStatusReleased ReservationStatus = "released"
)

// CreditReservation records a hold against a Run's credit budget, consumed
// incrementally as Steps complete and finalized or released at Run end
// (spec §3, §4.7).
type CreditReservation struct {
	ID    string
	RunID string

	Status ReservationStatus

	AmountReserved int64
	AmountConsumed int64

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ReleasedAt *time.Time

	Version int64 // optimistic concurrency token
}

// Remaining returns the unconsumed portion of the reservation.
func (r CreditReservation) Remaining() int64 {
	remaining := r.AmountReserved - r.AmountConsumed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsActive reports whether the reservation still accepts consumption.
func (r CreditReservation) IsActive() bool {
	return r.Status == ReservationStatusActive
}
