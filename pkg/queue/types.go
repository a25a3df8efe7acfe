// Package queue implements the Dispatcher's worker pool: lease acquisition,
// the per-worker poll loop, and the orphan reaper (spec §4.2).
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/conductor-run/conductor/pkg/model"
)

// Sentinel errors for queue operations.
var (
	// ErrNoRunsAvailable indicates no queued run was claimable this poll.
	ErrNoRunsAvailable = errors.New("no runs available")

	// ErrAtCapacity indicates the global concurrent run limit has been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// RunExecutor drives a claimed Run through the Supervisor loop (spec §4.3).
//
// The executor owns the run's entire in-flight lifecycle: it re-reads
// status at iteration boundaries, persists every state transition through
// pkg/runstate as it happens, and always leaves the Run in a terminal
// state, waiting_user, or paused by the time Execute returns. The worker
// only handles: claiming, lease heartbeat, and defensive fallback if
// Execute returns an error without having left the run in a safe state.
type RunExecutor interface {
	Execute(ctx context.Context, run *model.Run) error
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy        bool
	StoreReachable   bool
	StoreError       string
	ActiveWorkers    int
	TotalWorkers     int
	ExecutingRuns    int
	MaxConcurrent    int
	WorkerStats      []WorkerHealth
	LastOrphanScan   time.Time
	OrphansRecovered int
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID             string
	Status         WorkerStatus
	CurrentRunID   string
	RunsProcessed  int
	LastActivity   time.Time
}
