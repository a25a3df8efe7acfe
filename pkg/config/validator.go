package config

import "fmt"

// Validator validates loaded configuration, returning the first problem it
// finds; later passes do not run once one has failed. Per-field
// structural checks (required, min, oneof) already ran against the raw
// catalog entries during load via go-playground/validator; this pass
// checks the business rules and cross-references that only make sense once
// everything has been merged and converted into registries.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every validation pass. Order matters: catalogs are
// validated before the cross-references between them (chains naming
// providers) so a dangling reference is reported
// against a catalog we already know is internally well-formed.
func (val *Validator) ValidateAll() error {
	if err := val.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}
	if err := val.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := val.validateTools(); err != nil {
		return fmt.Errorf("tool validation failed: %w", err)
	}
	if err := val.validateProviders(); err != nil {
		return fmt.Errorf("provider validation failed: %w", err)
	}
	if err := val.validateChains(); err != nil {
		return fmt.Errorf("chain validation failed: %w", err)
	}
	if err := val.validateCredit(); err != nil {
		return fmt.Errorf("credit validation failed: %w", err)
	}
	if err := val.validatePlanner(); err != nil {
		return fmt.Errorf("planner validation failed: %w", err)
	}
	if err := val.validateSupervisor(); err != nil {
		return fmt.Errorf("supervisor validation failed: %w", err)
	}
	return nil
}

func (val *Validator) validateQueue() error {
	q := val.cfg.Queue
	if q == nil {
		return fmt.Errorf("queue configuration is nil")
	}
	if q.WorkerCount < 1 || q.WorkerCount > 50 {
		return fmt.Errorf("worker_count must be between 1 and 50, got %d", q.WorkerCount)
	}
	if q.MaxConcurrentRuns < 1 {
		return fmt.Errorf("max_concurrent_runs must be at least 1, got %d", q.MaxConcurrentRuns)
	}
	if q.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", q.PollInterval)
	}
	if q.PollIntervalJitter >= q.PollInterval {
		return fmt.Errorf("poll_interval_jitter must be less than poll_interval, got jitter=%v interval=%v", q.PollIntervalJitter, q.PollInterval)
	}
	if q.LeaseDuration <= 0 {
		return fmt.Errorf("lease_duration must be positive, got %v", q.LeaseDuration)
	}
	if q.OrphanThreshold <= q.LeaseDuration {
		return fmt.Errorf("orphan_threshold must exceed lease_duration, got threshold=%v lease=%v", q.OrphanThreshold, q.LeaseDuration)
	}
	return nil
}

func (val *Validator) validateServer() error {
	s := val.cfg.Server
	if s == nil || s.Addr == "" {
		return fmt.Errorf("server.addr must be set")
	}
	return nil
}

func (val *Validator) validateTools() error {
	for name, t := range val.cfg.Tools.All() {
		if name != t.Name {
			return NewValidationError("tool", name, "name", fmt.Errorf("catalog key %q does not match entry name %q", name, t.Name))
		}
		if t.Category == "" {
			return NewValidationError("tool", name, "category", fmt.Errorf("category is required"))
		}
	}
	return nil
}

func (val *Validator) validateProviders() error {
	for name, p := range val.cfg.Providers.All() {
		if p.Model == "" {
			return NewValidationError("provider", name, "model", fmt.Errorf("model is required"))
		}
		switch p.Kind {
		case "openai", "anthropic", "google", "grpcproxy":
		default:
			return NewValidationError("provider", name, "kind", fmt.Errorf("unrecognized provider kind %q", p.Kind))
		}
	}
	return nil
}

func (val *Validator) validateChains() error {
	for name, chain := range val.cfg.Chains.All() {
		if len(chain.Providers) == 0 {
			return NewValidationError("chain", name, "providers", fmt.Errorf("must name at least one provider"))
		}
		for _, providerName := range chain.Providers {
			if !val.cfg.Providers.Has(providerName) {
				return NewValidationError("chain", name, "providers", fmt.Errorf("%w: %s", ErrInvalidReference, providerName))
			}
		}
	}
	return nil
}

func (val *Validator) validateCredit() error {
	c := val.cfg.Credit
	if c == nil || c.DefaultBudget < 1 {
		return fmt.Errorf("credit.default_budget must be at least 1")
	}
	return nil
}

func (val *Validator) validatePlanner() error {
	p := val.cfg.Planner
	if p == nil {
		return fmt.Errorf("planner configuration is nil")
	}
	if p.MinPhases < 1 {
		return fmt.Errorf("planner.min_phases must be at least 1, got %d", p.MinPhases)
	}
	if p.MaxPhases < p.MinPhases {
		return fmt.Errorf("planner.max_phases must be >= min_phases, got max=%d min=%d", p.MaxPhases, p.MinPhases)
	}
	if p.Retries < 0 {
		return fmt.Errorf("planner.retries must be non-negative, got %d", p.Retries)
	}
	return nil
}

func (val *Validator) validateSupervisor() error {
	s := val.cfg.Supervisor
	if s == nil {
		return fmt.Errorf("supervisor configuration is nil")
	}
	if s.ActionParseRetries < 0 {
		return fmt.Errorf("supervisor.action_parse_retries must be non-negative, got %d", s.ActionParseRetries)
	}
	if s.ToolRetryMaxDelay < s.ToolRetryBaseDelay {
		return fmt.Errorf("supervisor.tool_retry_max_delay must be >= tool_retry_base_delay, got max=%v base=%v",
			s.ToolRetryMaxDelay, s.ToolRetryBaseDelay)
	}
	return nil
}
