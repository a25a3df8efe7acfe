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

// RunRepo implements store.RunStore over a pgxpool.Pool.
type RunRepo struct{ pool *pgxpool.Pool }

var _ store.RunStore = (*RunRepo)(nil)

func (r *RunRepo) Create(ctx context.Context, run *model.Run) error {
	configJSON, planJSON, errJSON, err := marshalRunJSON(run)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO runs (id, external_id, tenant_id, user_id, status, prompt, prompt_hash,
			config, plan, current_phase_id, current_step_id, step_count, retry_count, max_retries,
			credits_reserved, credits_consumed, created_at, started_at, completed_at, timeout_at,
			error, version, worker_id, lease_expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		run.ID, nullableString(run.ExternalID), run.TenantID, run.UserID, run.Status,
		run.Prompt, run.PromptHash, configJSON, planJSON, run.CurrentPhaseID, run.CurrentStepID,
		run.StepCount, run.RetryCount, run.MaxRetries, run.CreditsReserved, run.CreditsConsumed,
		run.CreatedAt, run.StartedAt, run.CompletedAt, run.TimeoutAt, errJSON, run.Version,
		nullableString(run.WorkerID), run.LeaseExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (*model.Run, error) {
	row := r.pool.QueryRow(ctx, runSelectColumns+` FROM runs WHERE id = $1`, id)
	return scanRun(row)
}

func (r *RunRepo) GetByExternalID(ctx context.Context, tenantID, externalID string) (*model.Run, error) {
	row := r.pool.QueryRow(ctx, runSelectColumns+` FROM runs WHERE tenant_id = $1 AND external_id = $2`, tenantID, externalID)
	return scanRun(row)
}

func (r *RunRepo) UpdateVersioned(ctx context.Context, run *model.Run, expectedVersion int64) error {
	configJSON, planJSON, errJSON, err := marshalRunJSON(run)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE runs SET status=$1, config=$2, plan=$3, current_phase_id=$4, current_step_id=$5,
			step_count=$6, retry_count=$7, credits_reserved=$8, credits_consumed=$9,
			started_at=$10, completed_at=$11, timeout_at=$12, error=$13, version=$14,
			worker_id=$15, lease_expires_at=$16
		WHERE id=$17 AND version=$18`,
		run.Status, configJSON, planJSON, run.CurrentPhaseID, run.CurrentStepID, run.StepCount,
		run.RetryCount, run.CreditsReserved, run.CreditsConsumed, run.StartedAt, run.CompletedAt,
		run.TimeoutAt, errJSON, run.Version, nullableString(run.WorkerID), run.LeaseExpiresAt,
		run.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the run doesn't exist or the version moved; distinguish so
		// callers get the right error per spec §4.1's CONCURRENT_UPDATE.
		if _, getErr := r.Get(ctx, run.ID); errors.Is(getErr, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	return nil
}

func (r *RunRepo) ClaimNext(ctx context.Context, workerID string, leaseDurationMs int64) (*model.Run, error) {
	row := r.pool.QueryRow(ctx, `
		WITH next_run AS (
			SELECT id FROM runs
			WHERE status = 'queued'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE runs SET status = 'planning', worker_id = $1,
			lease_expires_at = now() + ($2 || ' milliseconds')::interval,
			version = version + 1
		WHERE id = (SELECT id FROM next_run)
		RETURNING `+runColumnList, workerID, leaseDurationMs)
	return scanRun(row)
}

func (r *RunRepo) ListExpiredLeases(ctx context.Context, nowUnixMs int64) ([]*model.Run, error) {
	rows, err := r.pool.Query(ctx, runSelectColumns+`
		FROM runs
		WHERE lease_expires_at IS NOT NULL
			AND lease_expires_at < to_timestamp($1::double precision / 1000.0)
			AND status NOT IN ('completed','failed','cancelled','timeout')`, nowUnixMs)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired leases: %w", err)
	}
	defer rows.Close()

	var out []*model.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// ListTimedOut returns runs parked in waiting_user or paused whose
// timeout_at has passed: their lease was released on suspension, so
// ListExpiredLeases never reclaims them, but the inherited
// max_duration_seconds deadline still needs a reaper to enforce it.
func (r *RunRepo) ListTimedOut(ctx context.Context, nowUnixMs int64) ([]*model.Run, error) {
	rows, err := r.pool.Query(ctx, runSelectColumns+`
		FROM runs
		WHERE timeout_at IS NOT NULL
			AND timeout_at < to_timestamp($1::double precision / 1000.0)
			AND status IN ('waiting_user','paused')`, nowUnixMs)
	if err != nil {
		return nil, fmt.Errorf("failed to query timed-out runs: %w", err)
	}
	defer rows.Close()

	var out []*model.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *RunRepo) CountExecuting(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM runs WHERE status IN ('planning','executing')`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count executing runs: %w", err)
	}
	return count, nil
}

const runColumnList = `id, external_id, tenant_id, user_id, status, prompt, prompt_hash,
	config, plan, current_phase_id, current_step_id, step_count, retry_count, max_retries,
	credits_reserved, credits_consumed, created_at, started_at, completed_at, timeout_at,
	error, version, worker_id, lease_expires_at`

const runSelectColumns = `SELECT ` + runColumnList

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row pgx.Row) (*model.Run, error) {
	return scanRunRow(row)
}

func scanRunRow(row rowScanner) (*model.Run, error) {
	var run model.Run
	var externalID, workerID *string
	var configJSON, planJSON, errJSON []byte

	err := row.Scan(&run.ID, &externalID, &run.TenantID, &run.UserID, &run.Status, &run.Prompt,
		&run.PromptHash, &configJSON, &planJSON, &run.CurrentPhaseID, &run.CurrentStepID,
		&run.StepCount, &run.RetryCount, &run.MaxRetries, &run.CreditsReserved, &run.CreditsConsumed,
		&run.CreatedAt, &run.StartedAt, &run.CompletedAt, &run.TimeoutAt, &errJSON, &run.Version,
		&workerID, &run.LeaseExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if externalID != nil {
		run.ExternalID = *externalID
	}
	if workerID != nil {
		run.WorkerID = *workerID
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &run.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run config: %w", err)
		}
	}
	if len(planJSON) > 0 {
		run.Plan = &model.Plan{}
		if err := json.Unmarshal(planJSON, run.Plan); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run plan: %w", err)
		}
	}
	if len(errJSON) > 0 {
		run.Error = &model.StructuredRunError{}
		if err := json.Unmarshal(errJSON, run.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run error: %w", err)
		}
	}
	return &run, nil
}

func marshalRunJSON(run *model.Run) (configJSON, planJSON, errJSON []byte, err error) {
	configJSON, err = json.Marshal(run.Config)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal run config: %w", err)
	}
	if run.Plan != nil {
		planJSON, err = json.Marshal(run.Plan)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal run plan: %w", err)
		}
	}
	if run.Error != nil {
		errJSON, err = json.Marshal(run.Error)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal run error: %w", err)
		}
	}
	return configJSON, planJSON, errJSON, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
