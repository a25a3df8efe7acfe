package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/store"
)

// CreditRepo implements store.CreditStore over a pgxpool.Pool.
type CreditRepo struct{ pool *pgxpool.Pool }

var _ store.CreditStore = (*CreditRepo)(nil)

const creditColumnList = `id, run_id, status, amount_reserved, amount_consumed, created_at, updated_at, released_at, version`

func (r *CreditRepo) Create(ctx context.Context, res *model.CreditReservation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO credit_reservations (`+creditColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		res.ID, res.RunID, res.Status, res.AmountReserved, res.AmountConsumed,
		res.CreatedAt, res.UpdatedAt, res.ReleasedAt, res.Version)
	if err != nil {
		return fmt.Errorf("failed to insert credit reservation: %w", err)
	}
	return nil
}

func (r *CreditRepo) Get(ctx context.Context, id string) (*model.CreditReservation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+creditColumnList+` FROM credit_reservations WHERE id=$1`, id)
	return scanReservation(row)
}

func (r *CreditRepo) GetActiveForRun(ctx context.Context, runID string) (*model.CreditReservation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+creditColumnList+` FROM credit_reservations WHERE run_id=$1 AND status='active'`, runID)
	return scanReservation(row)
}

func (r *CreditRepo) UpdateVersioned(ctx context.Context, res *model.CreditReservation, expectedVersion int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE credit_reservations SET status=$1, amount_consumed=$2, updated_at=$3,
			released_at=$4, version=$5
		WHERE id=$6 AND version=$7`,
		res.Status, res.AmountConsumed, res.UpdatedAt, res.ReleasedAt, res.Version,
		res.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update credit reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, res.ID); errors.Is(getErr, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	return nil
}

func scanReservation(row pgx.Row) (*model.CreditReservation, error) {
	var res model.CreditReservation
	err := row.Scan(&res.ID, &res.RunID, &res.Status, &res.AmountReserved, &res.AmountConsumed,
		&res.CreatedAt, &res.UpdatedAt, &res.ReleasedAt, &res.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan credit reservation: %w", err)
	}
	return &res, nil
}
