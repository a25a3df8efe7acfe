// Package mcpbridge lets a registered tool proxy its calls to a real MCP
// server over stdio, letting operators add tools the orchestrator didn't
// ship with by pointing at any MCP-compliant binary. Grounded on the
// teacher's own MCP client (mcpsdk.NewClient/Connect/CallTool), generalized
// from "one Client juggling many servers" down to one Bridge per remote
// server, since each Handler here is already scoped to a single tool name
// by the Tool Router's registry.
package mcpbridge

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/cenkalti/backoff/v4"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/conductor-run/conductor/pkg/toolrouter"
)

// ServerConfig names the stdio subprocess backing one MCP server.
type ServerConfig struct {
	Command string
	Args    []string
	Env     map[string]string
}

// Bridge owns a lazily-established MCP session to a single remote server.
type Bridge struct {
	cfg ServerConfig

	mu      sync.Mutex
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

// New creates a Bridge for cfg; no subprocess is started until the first
// call.
func New(cfg ServerConfig) *Bridge {
	return &Bridge{cfg: cfg}
}

// Handler builds a toolrouter.Handler that invokes remoteTool on the
// bridged server, passing the call's input through as MCP tool arguments.
func (b *Bridge) Handler(remoteTool string) toolrouter.Handler {
	return func(ctx context.Context, call toolrouter.ToolCall) (map[string]any, error) {
		session, err := b.ensureSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("mcpbridge: %w", err)
		}

		params := &mcpsdk.CallToolParams{Name: remoteTool, Arguments: call.Input}

		var result *mcpsdk.CallToolResult
		op := func() error {
			var callErr error
			result, callErr = session.CallTool(ctx, params)
			return callErr
		}
		policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
		if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
			b.invalidateSession()
			return nil, fmt.Errorf("mcpbridge: %s: %w", remoteTool, err)
		}

		return map[string]any{
			"is_error": result.IsError,
			"content":  extractText(result),
		}, nil
	}
}

func (b *Bridge) ensureSession(ctx context.Context) (*mcpsdk.ClientSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		return b.session, nil
	}

	cmd := exec.Command(b.cfg.Command, b.cfg.Args...)
	for k, v := range b.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	transport := &mcpsdk.CommandTransport{Command: cmd}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "conductor", Version: "1"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %q: %w", b.cfg.Command, err)
	}

	b.client = client
	b.session = session
	return session, nil
}

func (b *Bridge) invalidateSession() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = nil
	b.client = nil
}

func extractText(result *mcpsdk.CallToolResult) string {
	var out string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}
