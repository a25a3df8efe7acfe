package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/runstate"
	"github.com/conductor-run/conductor/pkg/store"
)

// WorkerPool manages a pool of queue workers sharing one RunStore.
type WorkerPool struct {
	nodeID   string
	runs     store.RunStore
	config   *config.QueueConfig
	executor RunExecutor
	hooks    runstate.Hooks
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Run cancel registry: run_id → cancel function, for API-triggered stop.
	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
	started    bool

	orphans orphanState
}

// NewWorkerPool creates a new worker pool. hooks may be nil, in which case
// the pool's defensive fallback path (see Worker.failRunDefensively) runs
// no side effects; production wiring should pass the real pkg/credit and
// pkg/events backed Hooks so a run that fails on this path still releases
// its reservation and emits a terminal event.
func NewWorkerPool(nodeID string, runs store.RunStore, cfg *config.QueueConfig, executor RunExecutor, hooks runstate.Hooks) *WorkerPool {
	if hooks == nil {
		hooks = runstate.NoopHooks{}
	}
	return &WorkerPool{
		nodeID:     nodeID,
		runs:       runs,
		config:     cfg,
		executor:   executor,
		hooks:      hooks,
		workers:    make([]*Worker, 0, cfg.WorkerCount),
		stopCh:     make(chan struct{}),
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Start spawns worker goroutines and the orphan detection background task.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate Start call", "node_id", p.nodeID)
		return
	}
	p.started = true

	slog.Info("starting worker pool", "node_id", p.nodeID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.nodeID, i)
		worker := newWorker(workerID, p.nodeID, p.runs, p.config, p.executor, p, p.hooks)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()

	slog.Info("worker pool started")
}

// Stop signals all workers to stop and waits for them to finish. Workers
// finish their current runs before exiting (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("stopping worker pool gracefully")

	active := p.activeRunIDs()
	if len(active) > 0 {
		slog.Info("waiting for active runs to complete", "count", len(active), "run_ids", active)
	}

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("worker pool stopped gracefully")
}

// RegisterRun stores a cancel function for manual cancellation via the
// ingress `stop` operation.
func (p *WorkerPool) RegisterRun(runID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeRuns[runID] = cancel
}

// UnregisterRun removes the cancel function when processing ends.
func (p *WorkerPool) UnregisterRun(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeRuns, runID)
}

// CancelRun triggers context cancellation for a run on this pool. Returns
// true if the run was found and cancelled here.
func (p *WorkerPool) CancelRun(runID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeRuns[runID]; ok {
		cancel()
		return true
	}
	return false
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	executing, err := p.runs.CountExecuting(ctx)
	if err != nil {
		slog.Error("failed to query executing run count for health check", "node_id", p.nodeID, "error", err)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	storeHealthy := err == nil
	isHealthy := len(p.workers) > 0 && executing <= p.config.MaxConcurrentRuns && storeHealthy

	p.orphans.mu.Lock()
	lastScan := p.orphans.lastOrphanScan
	recovered := p.orphans.orphansRecovered
	p.orphans.mu.Unlock()

	var storeErr string
	if !storeHealthy {
		storeErr = fmt.Sprintf("executing run count query failed: %v", err)
	}

	return &PoolHealth{
		IsHealthy:        isHealthy,
		StoreReachable:   storeHealthy,
		StoreError:       storeErr,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		ExecutingRuns:    executing,
		MaxConcurrent:    p.config.MaxConcurrentRuns,
		WorkerStats:      workerStats,
		LastOrphanScan:   lastScan,
		OrphansRecovered: recovered,
	}
}

func (p *WorkerPool) activeRunIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeRuns))
	for id := range p.activeRuns {
		ids = append(ids, id)
	}
	return ids
}
