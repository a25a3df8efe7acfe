// Package postgres is the production Persistence Seam adapter: it
// implements store.RunStore, store.StepStore, store.ArtifactStore, and
// store.CreditStore directly over jackc/pgx/v5, with schema migrations
// applied via golang-migrate from embedded SQL files. There is no
// generated ORM layer here — see DESIGN.md for why entgo.io/ent (the
// teacher's ORM) was dropped in favor of hand-written queries.
package postgres

import (
	stdsql "database/sql"
	"embed"
	"fmt"
	"time"

	"context"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver for database/sql, used by golang-migrate only
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds connection settings for the production database.
type Config struct {
	DSN string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Client wraps a pgxpool.Pool and exposes the four repository views used
// throughout the orchestrator.
type Client struct {
	Pool *pgxpool.Pool

	Runs      *RunRepo
	Steps     *StepRepo
	Artifacts *ArtifactRepo
	Credits   *CreditRepo
}

// NewClient opens a connection pool, applies pending migrations, and
// returns a Client with all four repositories wired against it.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(cfg.DSN); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{
		Pool:      pool,
		Runs:      &RunRepo{pool: pool},
		Steps:     &StepRepo{pool: pool},
		Artifacts: &ArtifactRepo{pool: pool},
		Credits:   &CreditRepo{pool: pool},
	}, nil
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.Pool.Close()
}

// runMigrations applies every pending embedded migration using
// golang-migrate, the same library and iofs source the teacher uses,
// against a throwaway database/sql connection opened just for the
// migration run (pgxpool and database/sql are separate connection
// managers; migrate only understands the latter).
func runMigrations(dsn string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	defer sourceDriver.Close()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "conductor", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
