package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/orcherr"
	"github.com/conductor-run/conductor/pkg/runstate"
)

// orphanState tracks orphan detection metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically scans for runs whose lease expired
// without a heartbeat renewal (spec §4.2).
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("orphan detection failed", "error", err)
			}
			if err := p.reapTimedOutRuns(ctx); err != nil {
				slog.Error("timed-out run reaping failed", "error", err)
			}
		}
	}
}

// detectAndRecoverOrphans finds runs with expired leases and either returns
// them to queued for another worker to claim, or — once retry_count hits
// max_retries — fails them with LEASE_EXPIRED_EXCEEDED (spec §4.2).
func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) error {
	// OrphanThreshold gives a lease that has just expired a grace window
	// before it's treated as abandoned, absorbing clock skew between
	// workers and the reaper.
	cutoff := time.Now().Add(-p.config.OrphanThreshold)
	expired, err := p.runs.ListExpiredLeases(ctx, cutoff.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to query expired leases: %w", err)
	}

	if len(expired) == 0 {
		p.orphans.mu.Lock()
		p.orphans.lastOrphanScan = time.Now()
		p.orphans.mu.Unlock()
		return nil
	}

	slog.Warn("detected runs with expired leases", "count", len(expired))

	recovered := 0
	failed := 0
	for _, run := range expired {
		if err := p.recoverExpiredLease(ctx, run); err != nil {
			slog.Error("failed to recover run with expired lease", "run_id", run.ID, "error", err)
			failed++
			continue
		}
		recovered++
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += recovered
	p.orphans.mu.Unlock()

	if failed > 0 {
		slog.Warn("orphan recovery completed with failures", "total", len(expired), "recovered", recovered, "failed", failed)
	}
	return nil
}

// recoverExpiredLease either requeues the run (retry_count < max_retries)
// or fails it terminally once retries are exhausted.
func (p *WorkerPool) recoverExpiredLease(ctx context.Context, run *model.Run) error {
	log := slog.With("run_id", run.ID, "old_worker_id", run.WorkerID)

	run.RetryCount++
	run.WorkerID = ""
	run.LeaseExpiresAt = nil

	if run.RetryCount >= run.MaxRetries {
		run.Error = &model.StructuredRunError{
			Code:    "LEASE_EXPIRED_EXCEEDED",
			Message: fmt.Sprintf("lease expired %d times, exceeding max_retries=%d", run.RetryCount, run.MaxRetries),
		}
		if err := runstate.Apply(run, model.RunStatusFailed, p.hooks, time.Now()); err != nil {
			return err
		}
		log.Warn("run failed after exceeding lease retry budget", "retry_count", run.RetryCount)
	} else {
		if err := runstate.Apply(run, model.RunStatusQueued, p.hooks, time.Now()); err != nil {
			return err
		}
		log.Warn("run returned to queue after lease expiry", "retry_count", run.RetryCount)
	}

	return p.runs.UpdateVersioned(ctx, run, run.Version-1)
}

// reapTimedOutRuns transitions runs parked in waiting_user or paused past
// their inherited max_duration_seconds deadline to timeout, releasing
// their credit reservation via the hooks the same way a Supervisor-driven
// timeout does. Unlike recoverExpiredLease this is not about an abandoned
// worker: the run suspended cleanly and released its lease, so it is
// invisible to ListExpiredLeases — without this pass a human-input loop
// nobody ever answers would hold its reservation forever.
func (p *WorkerPool) reapTimedOutRuns(ctx context.Context) error {
	timedOut, err := p.runs.ListTimedOut(ctx, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to query timed-out runs: %w", err)
	}

	for _, run := range timedOut {
		log := slog.With("run_id", run.ID, "status", run.Status)
		run.Error = &model.StructuredRunError{
			Code:    string(orcherr.CodeRunTimeout),
			Message: "run exceeded max_duration_seconds while waiting on user input",
		}
		if err := runstate.Apply(run, model.RunStatusTimeout, p.hooks, time.Now()); err != nil {
			log.Error("failed to apply timeout transition", "error", err)
			continue
		}
		if err := p.runs.UpdateVersioned(ctx, run, run.Version-1); err != nil {
			log.Error("failed to persist timeout transition", "error", err)
			continue
		}
		log.Warn("run timed out while suspended")
	}

	return nil
}
