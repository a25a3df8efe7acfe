package toolrouter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/toolrouter/limiter"
)

// Router dispatches tool calls to registered handlers, enforcing the
// catalog's timeout, rate limit, and concurrency bound around each one.
// Generalized from the teacher's MCP ToolExecutor: there a fixed set of MCP
// servers backed every tool; here any in-process Handler can register
// itself, and the catalog (pkg/config.ToolRegistry) supplies the per-tool
// policy instead of per-server negotiation.
type Router struct {
	catalog *config.ToolRegistry
	limiter limiter.Limiter

	mu       sync.RWMutex
	handlers map[string]Handler
	sems     map[string]chan struct{} // per-tool concurrency bound
}

// New builds a Router backed by catalog for policy lookups and lim for
// rate-limit decisions.
func New(catalog *config.ToolRegistry, lim limiter.Limiter) *Router {
	return &Router{
		catalog:  catalog,
		limiter:  lim,
		handlers: make(map[string]Handler),
		sems:     make(map[string]chan struct{}),
	}
}

// Register adds a handler under name. It returns false if name was already
// registered (the prior handler is left in place).
func (r *Router) Register(name string, h Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return false
	}
	r.handlers[name] = h
	return true
}

// Unregister removes a handler, reporting whether it existed.
func (r *Router) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; !exists {
		return false
	}
	delete(r.handlers, name)
	delete(r.sems, name)
	return true
}

// Has reports whether name has a registered handler.
func (r *Router) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// List returns every registered tool name, sorted.
func (r *Router) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs exactly one handler, enforcing the tool's timeout_ms and
// rate limit, and returns the uniform result envelope. It never returns a
// Go error for a handler-side failure — those are captured in the
// envelope's Status/Error fields — except when the tool itself is unknown.
func (r *Router) Execute(ctx context.Context, call ToolCall) (*model.ToolResult, error) {
	r.mu.RLock()
	handler, ok := r.handlers[call.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", call.Name, ErrNotRegistered)
	}

	def, found := r.catalogEntry(call.Name)
	def = catalogOrDefault(def, found, call.Name)

	if r.limiter != nil {
		allowed, retryAfterMs, err := r.limiter.Allow(ctx, call.TenantID, call.Name, def.RateLimitPerMinute, def.RateLimitPerHour)
		if err != nil {
			slog.Warn("rate limiter check failed, failing open", "tool", call.Name, "error", err)
		} else if !allowed {
			return &model.ToolResult{
				Status: model.ToolResultStatusError,
				Error: &model.StructuredRunError{
					Code:        "RATE_LIMITED",
					Message:     fmt.Sprintf("tool %q is rate limited", call.Name),
					Recoverable: true,
					Details:     map[string]any{"retry_after_ms": retryAfterMs},
				},
			}, nil
		}
	}

	release := r.acquireSlot(call.Name, def.RateLimitConcurrent)
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, def.Timeout())
	defer cancel()

	start := time.Now()
	output, err := r.runHandler(callCtx, handler, call)
	duration := time.Since(start).Milliseconds()

	if callCtx.Err() != nil {
		return &model.ToolResult{
			Status:     model.ToolResultStatusTimeout,
			DurationMs: duration,
			Error: &model.StructuredRunError{
				Code:        "TOOL_TIMEOUT",
				Message:     fmt.Sprintf("tool %q exceeded its %s timeout", call.Name, def.Timeout()),
				Recoverable: true,
			},
		}, nil
	}
	if err != nil {
		return &model.ToolResult{
			Status:     model.ToolResultStatusError,
			DurationMs: duration,
			Error: &model.StructuredRunError{
				Code:        "TOOL_FAILED",
				Message:     err.Error(),
				Recoverable: false,
			},
		}, nil
	}

	return &model.ToolResult{
		Status:     model.ToolResultStatusOK,
		Output:     output,
		DurationMs: duration,
	}, nil
}

// runHandler invokes handler and recovers a panic into an error, matching
// the spec's HANDLER_EXCEPTION convention for unhandled handler failures.
func (r *Router) runHandler(ctx context.Context, handler Handler, call ToolCall) (output map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("HANDLER_EXCEPTION: %v", rec)
		}
	}()
	return handler(ctx, call)
}

// batchResult pairs an executed call's index with its result so
// ExecuteBatch can restore input order after concurrent execution.
type batchResult struct {
	index  int
	result *model.ToolResult
	err    error
}

// ExecuteBatch runs calls concurrently, preserving input order in the
// returned slice. Per-tool concurrency is still bounded by acquireSlot
// inside Execute, so a batch naming the same tool many times doesn't
// exceed that tool's configured concurrency.
func (r *Router) ExecuteBatch(ctx context.Context, calls []ToolCall) ([]*model.ToolResult, error) {
	results := make([]*model.ToolResult, len(calls))
	out := make(chan batchResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()
			res, err := r.Execute(ctx, call)
			out <- batchResult{index: i, result: res, err: err}
		}(i, call)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	var firstErr error
	for br := range out {
		if br.err != nil && firstErr == nil {
			firstErr = br.err
		}
		results[br.index] = br.result
	}
	return results, firstErr
}

func (r *Router) catalogEntry(name string) (model.ToolDefinition, bool) {
	if r.catalog == nil {
		return model.ToolDefinition{}, false
	}
	def, err := r.catalog.Get(name)
	if err != nil {
		return model.ToolDefinition{}, false
	}
	return def, true
}

// acquireSlot blocks until a concurrency slot for name is free (if a bound
// is configured) and returns a function that releases it.
func (r *Router) acquireSlot(name string, concurrent int) func() {
	if concurrent <= 0 {
		return func() {}
	}
	sem := r.semFor(name, concurrent)
	sem <- struct{}{}
	return func() { <-sem }
}

func (r *Router) semFor(name string, concurrent int) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	sem, ok := r.sems[name]
	if !ok {
		sem = make(chan struct{}, concurrent)
		r.sems[name] = sem
	}
	return sem
}
