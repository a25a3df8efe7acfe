package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/store"
)

// StepRepo implements store.StepStore over a pgxpool.Pool.
type StepRepo struct{ pool *pgxpool.Pool }

var _ store.StepStore = (*StepRepo)(nil)

const stepColumnList = `id, run_id, phase_id, sequence, tool_name, tool_input, tool_output,
	status, created_at, started_at, completed_at, duration_ms, credits_consumed, tokens_used,
	error, retry_count, idempotency_key`

func (r *StepRepo) Create(ctx context.Context, st *model.Step) error {
	inputJSON, outputJSON, errJSON, err := marshalStepJSON(st)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO steps (`+stepColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		st.ID, st.RunID, st.PhaseID, st.Sequence, st.ToolName, inputJSON, outputJSON, st.Status,
		st.CreatedAt, st.StartedAt, st.CompletedAt, st.DurationMs, st.CreditsConsumed,
		st.TokensUsed, errJSON, st.RetryCount, st.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("failed to insert step: %w", err)
	}
	return nil
}

func (r *StepRepo) Update(ctx context.Context, st *model.Step) error {
	inputJSON, outputJSON, errJSON, err := marshalStepJSON(st)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE steps SET tool_input=$1, tool_output=$2, status=$3, started_at=$4, completed_at=$5,
			duration_ms=$6, credits_consumed=$7, tokens_used=$8, error=$9, retry_count=$10
		WHERE id=$11`,
		inputJSON, outputJSON, st.Status, st.StartedAt, st.CompletedAt, st.DurationMs,
		st.CreditsConsumed, st.TokensUsed, errJSON, st.RetryCount, st.ID)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *StepRepo) Get(ctx context.Context, id string) (*model.Step, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+stepColumnList+` FROM steps WHERE id=$1`, id)
	return scanStep(row)
}

func (r *StepRepo) GetByIdempotencyKey(ctx context.Context, runID, key string) (*model.Step, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+stepColumnList+` FROM steps WHERE run_id=$1 AND idempotency_key=$2`, runID, key)
	return scanStep(row)
}

func (r *StepRepo) ListByRun(ctx context.Context, runID string) ([]*model.Step, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stepColumnList+` FROM steps WHERE run_id=$1 ORDER BY sequence ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var out []*model.Step
	for rows.Next() {
		st, err := scanStepRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanStep(row pgx.Row) (*model.Step, error) { return scanStepRow(row) }

func scanStepRow(row rowScanner) (*model.Step, error) {
	var st model.Step
	var inputJSON, outputJSON, errJSON []byte

	err := row.Scan(&st.ID, &st.RunID, &st.PhaseID, &st.Sequence, &st.ToolName, &inputJSON,
		&outputJSON, &st.Status, &st.CreatedAt, &st.StartedAt, &st.CompletedAt, &st.DurationMs,
		&st.CreditsConsumed, &st.TokensUsed, &errJSON, &st.RetryCount, &st.IdempotencyKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &st.ToolInput); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tool input: %w", err)
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &st.ToolOutput); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tool output: %w", err)
		}
	}
	if len(errJSON) > 0 {
		st.Error = &model.StructuredRunError{}
		if err := json.Unmarshal(errJSON, st.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step error: %w", err)
		}
	}
	return &st, nil
}

func marshalStepJSON(st *model.Step) (inputJSON, outputJSON, errJSON []byte, err error) {
	if st.ToolInput != nil {
		if inputJSON, err = json.Marshal(st.ToolInput); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal tool input: %w", err)
		}
	}
	if st.ToolOutput != nil {
		if outputJSON, err = json.Marshal(st.ToolOutput); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal tool output: %w", err)
		}
	}
	if st.Error != nil {
		if errJSON, err = json.Marshal(st.Error); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal step error: %w", err)
		}
	}
	return inputJSON, outputJSON, errJSON, nil
}
