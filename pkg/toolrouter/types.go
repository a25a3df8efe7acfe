// Package toolrouter maps a tool name to a handler with a uniform
// signature, enforcing per-tool timeouts and rate limits, per spec §4.5.
package toolrouter

import (
	"context"
	"errors"

	"github.com/conductor-run/conductor/pkg/model"
)

// ToolCall is one invocation request routed to a registered handler.
type ToolCall struct {
	ID       string
	Name     string
	TenantID string
	RunID    string
	Input    map[string]any
}

// Handler executes one tool call and returns its output. A Handler must not
// assume it will only ever be called once for the same idempotency key —
// the catalog's Idempotent flag informs the Supervisor's reuse policy, not
// the handler's own behavior.
type Handler func(ctx context.Context, call ToolCall) (map[string]any, error)

var (
	// ErrAlreadyRegistered names a taken tool name. Register does not
	// return it; Register reports a taken name by returning false.
	ErrAlreadyRegistered = errors.New("tool already registered")
	// ErrNotRegistered is returned by Execute when no handler is
	// registered under the call's name, whether or not the catalog lists it.
	ErrNotRegistered = errors.New("tool handler not registered")
)

// catalogOrDefault looks up a tool's catalog entry, falling back to a
// permissive zero-value definition so unregistered-in-catalog tools (tests,
// ad-hoc handlers) still execute with a sane default timeout.
func catalogOrDefault(def model.ToolDefinition, found bool, name string) model.ToolDefinition {
	if found {
		return def
	}
	return model.ToolDefinition{Name: name, TimeoutMs: 30_000}
}
