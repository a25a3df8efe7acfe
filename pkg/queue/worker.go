package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/runstate"
	"github.com/conductor-run/conductor/pkg/store"
)

// RunRegistry is the subset of WorkerPool used by Worker for run registration.
type RunRegistry interface {
	RegisterRun(runID string, cancel context.CancelFunc)
	UnregisterRun(runID string)
}

// Worker is a single queue worker that polls for and processes runs.
type Worker struct {
	id       string
	nodeID   string
	runs     store.RunStore
	config   *config.QueueConfig
	executor RunExecutor
	pool     RunRegistry
	hooks    runstate.Hooks
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentRunID  string
	runsProcessed int
	lastActivity  time.Time
}

func newWorker(id, nodeID string, runs store.RunStore, cfg *config.QueueConfig, executor RunExecutor, pool RunRegistry, hooks runstate.Hooks) *Worker {
	return &Worker{
		id:           id,
		nodeID:       nodeID,
		runs:         runs,
		config:       cfg,
		executor:     executor,
		pool:         pool,
		hooks:        hooks,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish. Safe to call
// multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentRunID:  w.currentRunID,
		RunsProcessed: w.runsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "node_id", w.nodeID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, store.ErrNotFound) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing run", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess checks capacity, claims a run, and drives it through the
// executor.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	executing, err := w.runs.CountExecuting(ctx)
	if err != nil {
		return fmt.Errorf("checking executing run count: %w", err)
	}
	if executing >= w.config.MaxConcurrentRuns {
		return ErrAtCapacity
	}

	run, err := w.runs.ClaimNext(ctx, w.id, w.config.LeaseDuration.Milliseconds())
	if err != nil {
		return err
	}

	log := slog.With("run_id", run.ID, "worker_id", w.id)
	log.Info("run claimed")

	w.setStatus(WorkerStatusWorking, run.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	w.pool.RegisterRun(run.ID, cancelRun)
	defer w.pool.UnregisterRun(run.ID)

	heartbeatCtx, cancelHeartbeat := context.WithCancel(runCtx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, run.ID)

	err = w.executor.Execute(runCtx, run)
	cancelHeartbeat()

	if err != nil {
		log.Error("executor returned an error, applying defensive fallback", "error", err)
		if fallbackErr := w.failRunDefensively(context.Background(), run.ID, err); fallbackErr != nil {
			log.Error("defensive fallback failed", "error", fallbackErr)
		}
	}

	w.mu.Lock()
	w.runsProcessed++
	w.mu.Unlock()

	log.Info("run processing complete")
	return nil
}

// runHeartbeat periodically renews the run's lease so the orphan reaper
// doesn't reclaim a run this worker is still actively processing.
func (w *Worker) runHeartbeat(ctx context.Context, runID string) {
	interval := w.config.LeaseDuration / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.renewLease(ctx, runID); err != nil {
				slog.Warn("lease renewal failed", "run_id", runID, "error", err)
			}
		}
	}
}

func (w *Worker) renewLease(ctx context.Context, runID string) error {
	run, err := w.runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return nil
	}
	lease := time.Now().Add(w.config.LeaseDuration)
	run.LeaseExpiresAt = &lease
	expected := run.Version
	run.Version++
	return w.runs.UpdateVersioned(ctx, run, expected)
}

// failRunDefensively mirrors the executor's own terminal-transition
// responsibility when Execute returns without having applied one itself —
// the same nil-guard role the teacher's worker plays for a SessionExecutor
// that returns nil.
func (w *Worker) failRunDefensively(ctx context.Context, runID string, cause error) error {
	run, err := w.runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return nil
	}

	run.Error = &model.StructuredRunError{
		Code:    "EXECUTOR_ERROR",
		Message: cause.Error(),
	}
	if applyErr := runstate.Apply(run, model.RunStatusFailed, w.hooks, time.Now()); applyErr != nil {
		return applyErr
	}
	return w.runs.UpdateVersioned(ctx, run, run.Version-1)
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentRunID = runID
	w.lastActivity = time.Now()
}
