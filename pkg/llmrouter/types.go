// Package llmrouter normalizes three (plus one self-hosted) provider wire
// formats onto one internal ChatRequest/ChatResponse, selects a model per
// request, and falls back across a provider chain on failure (spec §4.6).
package llmrouter

import (
	"context"
	"errors"

	"github.com/conductor-run/conductor/pkg/model"
)

// Role is a conversation turn's speaker.
type Role string

// Recognized roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation passed to a provider.
type Message struct {
	Role    Role
	Content string
}

// FunctionSpec is an optional native-function-calling hint some providers
// honor; the Supervisor does not require it since AgentAction is parsed from
// message content, but a capable provider may be handed the hint anyway.
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatRequest is the provider-agnostic request shape (spec §4.6).
type ChatRequest struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int
	Stream      bool
	Functions   []FunctionSpec

	UserID     string
	RunID      string
	Capability model.Capability
}

// Usage is the normalized token accounting every provider reports.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// ChatResponse is the provider-agnostic response shape (spec §4.6).
type ChatResponse struct {
	ID         string
	Model      string
	Provider   string
	Content    string
	FinishReason string
	Usage      Usage
	LatencyMs  int64
}

// Provider adapts one wire format to ChatRequest/ChatResponse. Each concrete
// adapter in pkg/llmrouter/providers implements this against a real SDK.
type Provider interface {
	Chat(ctx context.Context, cfg model.ProviderConfig, req ChatRequest) (*ChatResponse, error)
}

// Sentinel errors.
var (
	// ErrAllModelsFailed is returned when every candidate in the fallback
	// chain failed; the last provider error is wrapped alongside it.
	ErrAllModelsFailed = errors.New("all candidate models failed")

	// ErrNoProviderRegistered indicates no Provider adapter is wired for a
	// ProviderConfig's Kind.
	ErrNoProviderRegistered = errors.New("no provider adapter registered for this kind")

	// ErrProviderUnhealthy indicates the candidate was skipped because its
	// health entry currently reports unavailable.
	ErrProviderUnhealthy = errors.New("provider is currently unhealthy")
)

// defaultCapabilityModel is the spec §4.6 documented fallback when neither
// request.Model nor a capability-tier lookup resolves a model.
const defaultCapabilityModel = "gemini-2.0-flash"
const defaultCapabilityProviderKind = model.LLMProviderGoogle
