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

// ArtifactRepo implements store.ArtifactStore over a pgxpool.Pool.
type ArtifactRepo struct{ pool *pgxpool.Pool }

var _ store.ArtifactStore = (*ArtifactRepo)(nil)

const artifactColumnList = `id, run_id, step_id, kind, filename, media_type, content_hash, size_bytes, storage_key, created_at`

// Create inserts the artifact, or rewrites a to the existing row's values
// if its content hash already exists — duplicate bytes always resolve to
// the same artifact id (spec §3).
func (r *ArtifactRepo) Create(ctx context.Context, a *model.Artifact) error {
	if existing, err := r.GetByContentHash(ctx, a.ContentHash); err == nil {
		*a = *existing
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO artifacts (`+artifactColumnList+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (content_hash) DO NOTHING`,
		a.ID, a.RunID, nullableString(a.StepID), a.Kind, a.Filename, a.MediaType,
		a.ContentHash, a.SizeBytes, a.StorageKey, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}

	// Another goroutine may have won the race against the conflict check
	// above; re-read so the caller always gets back the canonical row.
	existing, err := r.GetByContentHash(ctx, a.ContentHash)
	if err != nil {
		return fmt.Errorf("failed to read back inserted artifact: %w", err)
	}
	*a = *existing
	return nil
}

func (r *ArtifactRepo) Get(ctx context.Context, id string) (*model.Artifact, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+artifactColumnList+` FROM artifacts WHERE id=$1`, id)
	return scanArtifact(row)
}

func (r *ArtifactRepo) GetByContentHash(ctx context.Context, contentHash string) (*model.Artifact, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+artifactColumnList+` FROM artifacts WHERE content_hash=$1`, contentHash)
	return scanArtifact(row)
}

func (r *ArtifactRepo) ListByRun(ctx context.Context, runID string) ([]*model.Artifact, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+artifactColumnList+` FROM artifacts WHERE run_id=$1 ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var out []*model.Artifact
	for rows.Next() {
		a, err := scanArtifactRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanArtifact(row pgx.Row) (*model.Artifact, error) { return scanArtifactRow(row) }

func scanArtifactRow(row rowScanner) (*model.Artifact, error) {
	var a model.Artifact
	var stepID *string

	err := row.Scan(&a.ID, &a.RunID, &stepID, &a.Kind, &a.Filename, &a.MediaType,
		&a.ContentHash, &a.SizeBytes, &a.StorageKey, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan artifact: %w", err)
	}
	if stepID != nil {
		a.StepID = *stepID
	}
	return &a, nil
}
