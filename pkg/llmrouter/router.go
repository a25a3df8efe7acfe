package llmrouter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/model"
)

// degradedLatencyThresholdMs is the spec §4.6 threshold above which a
// successful call still marks the provider degraded rather than healthy.
const degradedLatencyThresholdMs = 5000

// Router selects a model per request, builds the fallback candidate list,
// and tries each until one succeeds, recording health as it goes — the
// generalized shape of the teacher's LLM client retry loop, keyed per
// provider instead of per single hard-coded backend.
type Router struct {
	providers *config.ProviderRegistry
	chains    *config.ChainRegistry
	adapters  map[model.LLMProviderKind]Provider

	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	health   map[string]*model.ModelHealth
}

// New builds a Router. adapters maps each provider kind to the concrete
// wire-format adapter that implements it (openaicompat/anthropic/google/
// grpcproxy); a kind absent from the map fails every request naming it.
func New(providers *config.ProviderRegistry, chains *config.ChainRegistry, adapters map[model.LLMProviderKind]Provider) *Router {
	return &Router{
		providers: providers,
		chains:    chains,
		adapters:  adapters,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		health:    make(map[string]*model.ModelHealth),
	}
}

// Chat resolves the candidate provider list for req and calls each in turn
// until one succeeds, per spec §4.6.
func (r *Router) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	candidates, err := r.candidateList(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, providerName := range candidates {
		cfg, err := r.providers.Get(providerName)
		if err != nil {
			lastErr = err
			continue
		}

		if !r.isAvailable(providerName) {
			lastErr = fmt.Errorf("%s: %w", providerName, ErrProviderUnhealthy)
			continue
		}

		adapter, ok := r.adapters[cfg.Kind]
		if !ok {
			lastErr = fmt.Errorf("%s: %w", cfg.Kind, ErrNoProviderRegistered)
			continue
		}

		start := time.Now()
		resp, callErr := r.call(ctx, providerName, cfg, adapter, req)
		latency := time.Since(start).Milliseconds()
		breakerState := r.breakerFor(providerName).State().String()

		if callErr != nil {
			r.recordFailure(providerName, breakerState)
			slog.Warn("provider candidate failed", "provider", providerName, "error", callErr)
			lastErr = callErr
			continue
		}

		resp.LatencyMs = latency
		r.recordSuccess(providerName, latency, breakerState)
		return resp, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrAllModelsFailed, lastErr)
}

// call executes one candidate through its circuit breaker.
func (r *Router) call(ctx context.Context, providerName string, cfg model.ProviderConfig, adapter Provider, req ChatRequest) (*ChatResponse, error) {
	breaker := r.breakerFor(providerName)
	result, err := breaker.Execute(func() (interface{}, error) {
		return adapter.Chat(ctx, cfg, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ChatResponse), nil
}

func (r *Router) breakerFor(providerName string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[providerName]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        providerName,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	r.breakers[providerName] = b
	return b
}

// candidateList builds [selected] ++ fallback_chain.fallbacks, deduplicated
// while preserving order, capped at max_retries+1, per spec §4.6 steps 1-3.
func (r *Router) candidateList(req ChatRequest) ([]string, error) {
	selected, err := r.resolveModel(req)
	if err != nil {
		return nil, err
	}

	candidates := []string{selected}
	maxCandidates := 1
	if chain, ok := r.chainFor(selected); ok {
		maxCandidates = chain.MaxRetries + 1
		for _, p := range chain.Providers {
			if p == selected {
				continue
			}
			candidates = append(candidates, p)
		}
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) >= maxCandidates {
			break
		}
	}
	return out, nil
}

// resolveModel picks the initial candidate provider name per spec §4.6
// steps 1-2: an explicit request.Model wins; otherwise the default
// capability model is used.
func (r *Router) resolveModel(req ChatRequest) (string, error) {
	if req.Model != "" {
		if r.providers.Has(req.Model) {
			return req.Model, nil
		}
		return "", fmt.Errorf("requested model %q: %w", req.Model, config.ErrProviderNotFound)
	}

	for name, cfg := range r.providers.All() {
		if cfg.Kind == defaultCapabilityProviderKind && cfg.Model == defaultCapabilityModel {
			return name, nil
		}
	}
	return "", fmt.Errorf("no provider configured for default capability model %q: %w", defaultCapabilityModel, config.ErrProviderNotFound)
}

// chainFor finds a fallback chain whose primary is providerName.
func (r *Router) chainFor(providerName string) (model.FallbackChain, bool) {
	for _, chain := range r.chains.All() {
		if chain.Primary() == providerName {
			return chain, true
		}
	}
	return model.FallbackChain{}, false
}

func (r *Router) isAvailable(providerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.health[providerName]
	if !ok {
		return true
	}
	return h.IsAvailable()
}

// recordSuccess refreshes health after a successful call, per spec §4.6:
// healthy unless latency exceeds the degraded threshold. breakerState is
// not consulted: a call that got through the breaker clears any earlier
// unhealthy status.
func (r *Router) recordSuccess(providerName string, latencyMs int64, breakerState string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.healthLocked(providerName)
	h.FailureCount = 0
	h.LatencyMs = latencyMs
	now := time.Now()
	h.LastSuccessAt = &now
	h.Status = model.HealthStatusHealthy
	if latencyMs > degradedLatencyThresholdMs {
		h.Status = model.HealthStatusDegraded
	}
}

// recordFailure refreshes health after a failed call, per spec §4.6:
// unhealthy after 3+ consecutive failures, else degraded. The breaker's own
// state (open once ReadyToTrip fires) is consulted as a second vote for
// unhealthy so a trip is never under-reported even if counters disagree.
func (r *Router) recordFailure(providerName, breakerState string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.healthLocked(providerName)
	h.FailureCount++
	now := time.Now()
	h.LastFailureAt = &now
	switch {
	case h.FailureCount >= 3, model.FromBreakerState(breakerState) == model.HealthStatusUnhealthy:
		h.Status = model.HealthStatusUnhealthy
	default:
		h.Status = model.HealthStatusDegraded
	}
}

func (r *Router) healthLocked(providerName string) *model.ModelHealth {
	h, ok := r.health[providerName]
	if !ok {
		h = &model.ModelHealth{ProviderName: providerName, Status: model.HealthStatusHealthy}
		r.health[providerName] = h
	}
	return h
}

// Health returns a snapshot of every provider this Router has recorded
// health for.
func (r *Router) Health() map[string]model.ModelHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.ModelHealth, len(r.health))
	for k, v := range r.health {
		out[k] = *v
	}
	return out
}
