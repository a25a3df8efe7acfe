package model

import "time"

// LLMProviderKind identifies which wire format a ProviderConfig speaks
// (spec §3's `format`).
type LLMProviderKind string

// Recognized provider kinds (spec §4.6). GRPCProxy is this module's fourth
// wire format, fronting a sidecar that exposes a single generic Chat RPC
// carrying google.protobuf.Struct payloads (see package grpcproxy).
const (
	LLMProviderOpenAI    LLMProviderKind = "openai"
	LLMProviderAnthropic LLMProviderKind = "anthropic"
	LLMProviderGoogle    LLMProviderKind = "google"
	LLMProviderGRPCProxy LLMProviderKind = "grpcproxy"
)

// ProviderConfig describes one configured model endpoint (spec §3).
type ProviderConfig struct {
	Name  string          `json:"name"`
	Kind  LLMProviderKind `json:"kind"`
	Model string          `json:"model"`

	APIKeyEnv string            `json:"api_key_env"`
	BaseURL   string            `json:"base_url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`

	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`

	TimeoutMs int64 `json:"timeout_ms"`
}

// FallbackChain is an ordered primary-plus-fallbacks list the LLM Router
// tries in sequence until one succeeds (spec §3, §4.6).
type FallbackChain struct {
	Name       string   `json:"name"`
	Providers  []string `json:"providers"` // ProviderConfig.Name; index 0 is primary
	MaxRetries int      `json:"max_retries"`
}

// Primary returns the chain's first (primary) provider name, or "" if empty.
func (c FallbackChain) Primary() string {
	if len(c.Providers) == 0 {
		return ""
	}
	return c.Providers[0]
}

// HealthStatus is the spec's three-level health vocabulary for a provider
// (spec §3: `status ∈ {healthy, degraded, unhealthy}`).
type HealthStatus string

// Recognized health statuses.
const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// FromBreakerState maps a sony/gobreaker state name onto the spec's health
// vocabulary: "closed" is healthy, "half-open" is degraded (probing
// recovery after trips), "open" is unhealthy (short-circuiting).
func FromBreakerState(breakerState string) HealthStatus {
	switch breakerState {
	case "closed":
		return HealthStatusHealthy
	case "half-open":
		return HealthStatusDegraded
	default:
		return HealthStatusUnhealthy
	}
}

// ModelHealth is the Router's rolling view of one provider's reliability
// (spec §3, §4.6), refreshed from a sony/gobreaker.CircuitBreaker's state
// and request counts after every call.
type ModelHealth struct {
	ProviderName string       `json:"provider_name"`
	Status       HealthStatus `json:"status"`
	LatencyMs    int64        `json:"latency_ms"` // latency of the most recent success

	FailureCount  int        `json:"failure_count"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
}

// IsAvailable reports whether the provider should currently be tried.
func (h ModelHealth) IsAvailable() bool {
	return h.Status != HealthStatusUnhealthy
}
