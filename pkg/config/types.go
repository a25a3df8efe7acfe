package config

import (
	"time"

	"github.com/conductor-run/conductor/pkg/model"
)

// QueueConfig controls the Dispatcher's worker pool (spec §4.2).
type QueueConfig struct {
	WorkerCount             int           `yaml:"worker_count" validate:"min=1"`
	MaxConcurrentRuns       int           `yaml:"max_concurrent_runs" validate:"min=1"`
	PollInterval            time.Duration `yaml:"poll_interval" validate:"min=0"`
	PollIntervalJitter      time.Duration `yaml:"poll_interval_jitter" validate:"min=0"`
	LeaseDuration           time.Duration `yaml:"lease_duration" validate:"min=0"`
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout" validate:"min=0"`
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval" validate:"min=0"`
	OrphanThreshold         time.Duration `yaml:"orphan_threshold" validate:"min=0"`

	// MaxRetries bounds how many times a run's lease may expire and be
	// requeued before the orphan reaper fails it with
	// LEASE_EXPIRED_EXCEEDED (spec §4.2, §6 "max retries" operational
	// knob). Applied to a Run's MaxRetries at create time.
	MaxRetries int `yaml:"max_retries" validate:"min=0"`
}

// DefaultQueueConfig mirrors the defaults documented in spec §4.2.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		MaxConcurrentRuns:       5,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		LeaseDuration:           2 * time.Minute,
		GracefulShutdownTimeout: 15 * time.Minute,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         5 * time.Minute,
		MaxRetries:              3,
	}
}

// EventConfig controls the bounded SSE broadcaster (spec §4.8).
type EventConfig struct {
	BufferSize      int           `yaml:"buffer_size" validate:"min=1"`
	CatchupLimit    int           `yaml:"catchup_limit" validate:"min=0"`
	CleanupDelay    time.Duration `yaml:"cleanup_delay" validate:"min=0"`
}

// DefaultEventConfig returns the bounded-buffer defaults.
func DefaultEventConfig() *EventConfig {
	return &EventConfig{
		BufferSize:   256,
		CatchupLimit: 200,
		CleanupDelay: 60 * time.Second,
	}
}

// CreditConfig controls the credit manager's bookkeeping (spec §4.7).
type CreditConfig struct {
	DefaultBudget  int64 `yaml:"default_budget" validate:"min=1"`
	ToolCostCredit int64 `yaml:"tool_cost_credit" validate:"min=0"`

	// MaxPerRun is the ceiling pkg/ingress enforces on a caller-supplied
	// RunConfig.MaxCredits at create time: requests above it fail with
	// INSUFFICIENT_CREDITS (spec §6's "402 when credits insufficient")
	// before a Run, let alone a reservation, is ever created.
	MaxPerRun int64 `yaml:"max_per_run" validate:"min=1"`
}

// DefaultCreditConfig returns the documented default run budget.
func DefaultCreditConfig() *CreditConfig {
	return &CreditConfig{DefaultBudget: 100, ToolCostCredit: 1, MaxPerRun: 1000}
}

// PlannerConfig bounds plan synthesis and validation (spec §4.4).
type PlannerConfig struct {
	Retries     int `yaml:"retries" validate:"min=0"`
	MinPhases   int `yaml:"min_phases" validate:"min=1"`
	MaxPhases   int `yaml:"max_phases" validate:"min=1"`
	Temperature float64 `yaml:"temperature" validate:"min=0"`
	MaxTokens   int     `yaml:"max_tokens" validate:"min=0"`
}

// DefaultPlannerConfig mirrors the spec §4.4 documented bounds: 2-15 phases,
// retries=3.
func DefaultPlannerConfig() *PlannerConfig {
	return &PlannerConfig{
		Retries:     3,
		MinPhases:   2,
		MaxPhases:   15,
		Temperature: 0.4,
		MaxTokens:   2048,
	}
}

// SupervisorConfig bounds the plan->phase->step decision loop (spec §4.3).
type SupervisorConfig struct {
	ActionParseRetries int           `yaml:"action_parse_retries" validate:"min=0"`
	ToolMaxRetries      int           `yaml:"tool_max_retries" validate:"min=0"`
	ToolRetryBaseDelay  time.Duration `yaml:"tool_retry_base_delay" validate:"min=0"`
	ToolRetryMaxDelay   time.Duration `yaml:"tool_retry_max_delay" validate:"min=0"`
	IterationPacing     time.Duration `yaml:"iteration_pacing" validate:"min=0"`
	Temperature         float64       `yaml:"temperature" validate:"min=0"`
	MaxTokens           int           `yaml:"max_tokens" validate:"min=0"`
}

// DefaultSupervisorConfig mirrors the spec §4.3 documented bounds: 3 decision
// retries before DECISION_FAILED, exponential tool retry backoff from 500ms
// up to a 30s cap.
func DefaultSupervisorConfig() *SupervisorConfig {
	return &SupervisorConfig{
		ActionParseRetries: 3,
		ToolMaxRetries:      3,
		ToolRetryBaseDelay:  500 * time.Millisecond,
		ToolRetryMaxDelay:   30 * time.Second,
		IterationPacing:     200 * time.Millisecond,
		Temperature:         0.2,
		MaxTokens:           2048,
	}
}

// RateLimitConfig bounds a tool category's invocation rate (spec §4.5).
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"min=0"`
	RequestsPerHour   int `yaml:"requests_per_hour" validate:"min=0"`
	BurstSize         int `yaml:"burst_size" validate:"min=0"`
	Concurrent        int `yaml:"concurrent" validate:"min=0"`
}

// ToolCatalogEntry is the YAML-facing shape of a model.ToolDefinition.
type ToolCatalogEntry struct {
	Name                 string              `yaml:"name" validate:"required"`
	Category             string              `yaml:"category" validate:"required"`
	Description          string              `yaml:"description"`
	ParametersSchema      map[string]any      `yaml:"parameters_schema"`
	RequiredCapabilities []string            `yaml:"required_capabilities"`
	TimeoutMs            int64               `yaml:"timeout_ms" validate:"min=0"`
	CostCredits          int64               `yaml:"cost_credits" validate:"min=0"`
	RateLimit            *RateLimitConfig    `yaml:"rate_limit"`
	Idempotent           bool                `yaml:"idempotent"`
}

// ToDefinition converts a catalog entry into the runtime model type.
func (e ToolCatalogEntry) ToDefinition() model.ToolDefinition {
	caps := make([]model.Capability, 0, len(e.RequiredCapabilities))
	for _, c := range e.RequiredCapabilities {
		caps = append(caps, model.Capability(c))
	}
	var rpm, rph, concurrent int
	if e.RateLimit != nil {
		rpm = e.RateLimit.RequestsPerMinute
		rph = e.RateLimit.RequestsPerHour
		concurrent = e.RateLimit.Concurrent
	}
	return model.ToolDefinition{
		Name:                 e.Name,
		Category:             model.ToolCategory(e.Category),
		Description:          e.Description,
		ParametersSchema:     e.ParametersSchema,
		RequiredCapabilities: caps,
		TimeoutMs:            e.TimeoutMs,
		CostCredits:          e.CostCredits,
		RateLimitPerMinute:   rpm,
		RateLimitPerHour:     rph,
		RateLimitConcurrent:  concurrent,
		Idempotent:           e.Idempotent,
	}
}

// ProviderCatalogEntry is the YAML-facing shape of a model.ProviderConfig.
type ProviderCatalogEntry struct {
	Name        string  `yaml:"name" validate:"required"`
	Kind        string  `yaml:"kind" validate:"required,oneof=openai anthropic google grpcproxy"`
	Model       string  `yaml:"model" validate:"required"`
	APIKeyEnv   string            `yaml:"api_key_env"`
	BaseURL     string            `yaml:"base_url"`
	Headers     map[string]string `yaml:"headers"`
	MaxTokens   int               `yaml:"max_tokens" validate:"min=0"`
	Temperature float64           `yaml:"temperature" validate:"min=0"`
	TimeoutMs   int64             `yaml:"timeout_ms" validate:"min=0"`
}

// ToProviderConfig converts a catalog entry into the runtime model type.
func (e ProviderCatalogEntry) ToProviderConfig() model.ProviderConfig {
	return model.ProviderConfig{
		Name:        e.Name,
		Kind:        model.LLMProviderKind(e.Kind),
		Model:       e.Model,
		APIKeyEnv:   e.APIKeyEnv,
		BaseURL:     e.BaseURL,
		Headers:     e.Headers,
		MaxTokens:   e.MaxTokens,
		Temperature: e.Temperature,
		TimeoutMs:   e.TimeoutMs,
	}
}

// FallbackChainEntry is the YAML-facing shape of a model.FallbackChain.
type FallbackChainEntry struct {
	Name       string   `yaml:"name" validate:"required"`
	Providers  []string `yaml:"providers" validate:"required,min=1"`
	MaxRetries int      `yaml:"max_retries" validate:"min=0"`
}

func (e FallbackChainEntry) ToFallbackChain() model.FallbackChain {
	return model.FallbackChain{Name: e.Name, Providers: e.Providers, MaxRetries: e.MaxRetries}
}

// ServerConfig controls the ingress HTTP listener (cmd/conductord).
type ServerConfig struct {
	Addr              string        `yaml:"addr" validate:"required"`
	ReadTimeout       time.Duration `yaml:"read_timeout" validate:"min=0"`
	WriteTimeout      time.Duration `yaml:"write_timeout" validate:"min=0"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace" validate:"min=0"`
}

// DefaultServerConfig returns the conventional HTTP listener defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:          ":8080",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  0, // unbounded: SSE streams hold writes open
		ShutdownGrace: 30 * time.Second,
	}
}

// SlackConfig controls optional run-completion notifications, grounded on
// the teacher's notification integration.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env"`
	Channel  string `yaml:"channel"`
}

// DefaultSlackConfig returns notifications disabled by default.
func DefaultSlackConfig() *SlackConfig {
	return &SlackConfig{Enabled: false, TokenEnv: "SLACK_BOT_TOKEN"}
}
