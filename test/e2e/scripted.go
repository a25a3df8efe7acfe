package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/llmrouter"
	"github.com/conductor-run/conductor/pkg/model"
)

// scriptEntry is one queued reply for a named provider. A non-nil block
// channel signals readiness and then waits for ctx to be cancelled before
// returning err, the shape the hard-timeout and cancellation scenarios
// need to hold a Chat call open until the run around it is interrupted.
type scriptEntry struct {
	content string
	err     error
	block   chan struct{}
}

// scriptedProvider implements llmrouter.Provider and is registered under
// every model.LLMProviderKind a test's provider catalog uses, since the
// Router's adapters map is keyed by kind, not by provider name. It
// multiplexes internally on cfg.Name, popping the next queued scriptEntry
// for that provider off an ordered queue on each call.
type scriptedProvider struct {
	mu    sync.Mutex
	calls map[string][]scriptEntry
	seen  map[string]int
}

var _ llmrouter.Provider = (*scriptedProvider)(nil)

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{
		calls: make(map[string][]scriptEntry),
		seen:  make(map[string]int),
	}
}

// Queue appends a scripted reply to providerName's queue.
func (p *scriptedProvider) Queue(providerName, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[providerName] = append(p.calls[providerName], scriptEntry{content: content})
}

// QueueError appends a scripted failure.
func (p *scriptedProvider) QueueError(providerName string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[providerName] = append(p.calls[providerName], scriptEntry{err: err})
}

// QueueBlocking appends an entry that signals the returned channel once
// Chat is entered, then blocks until ctx.Done(). Callers use the channel
// to know the call is in flight before cancelling the run around it.
func (p *scriptedProvider) QueueBlocking(providerName string) <-chan struct{} {
	ready := make(chan struct{})
	p.mu.Lock()
	p.calls[providerName] = append(p.calls[providerName], scriptEntry{block: ready})
	p.mu.Unlock()
	return ready
}

// CallCount reports how many times providerName's queue has been popped.
func (p *scriptedProvider) CallCount(providerName string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen[providerName]
}

func (p *scriptedProvider) Chat(ctx context.Context, cfg model.ProviderConfig, req llmrouter.ChatRequest) (*llmrouter.ChatResponse, error) {
	p.mu.Lock()
	queue := p.calls[cfg.Name]
	var entry scriptEntry
	if len(queue) > 0 {
		entry = queue[0]
		p.calls[cfg.Name] = queue[1:]
	} else {
		entry = scriptEntry{err: fmt.Errorf("scripted provider %q has no queued response", cfg.Name)}
	}
	p.seen[cfg.Name]++
	p.mu.Unlock()

	if entry.block != nil {
		close(entry.block)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if entry.err != nil {
		return nil, entry.err
	}

	return &llmrouter.ChatResponse{
		ID:       fmt.Sprintf("%s-%d", cfg.Name, p.seen[cfg.Name]),
		Model:    cfg.Model,
		Provider: cfg.Name,
		Content:  entry.content,
	}, nil
}

// scriptedPlanPhase/scriptedPlan mirror pkg/planner's unexported
// planDocument/phaseDoc wire shape closely enough to script a valid plan
// response without reaching into that package's internals.
type scriptedPlanPhase struct {
	ID             int      `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Capabilities   []string `json:"capabilities"`
	EstimatedSteps int      `json:"estimated_steps"`
	IsDelivery     bool     `json:"is_delivery"`
}

type scriptedPlan struct {
	Goal   string              `json:"goal"`
	Phases []scriptedPlanPhase `json:"phases"`
}

// planContent marshals a scriptedPlan into the JSON content a provider's
// response must carry for the planner to accept it.
func planContent(t *testing.T, plan scriptedPlan) string {
	t.Helper()
	data, err := json.Marshal(plan)
	require.NoError(t, err)
	return string(data)
}

// scriptedAction mirrors pkg/supervisor's unexported actionDocument wire
// shape.
type scriptedAction struct {
	Type      string         `json:"type"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	Content   string         `json:"content,omitempty"`
	Question  string         `json:"question,omitempty"`
}

// actionContent marshals a scriptedAction into the JSON content a
// provider's response must carry for the supervisor to accept it as one
// decision.
func actionContent(t *testing.T, a scriptedAction) string {
	t.Helper()
	data, err := json.Marshal(a)
	require.NoError(t, err)
	return string(data)
}

// toolAction builds a scriptedAction of type "tool".
func toolAction(name string, input map[string]any) scriptedAction {
	return scriptedAction{Type: "tool", ToolName: name, ToolInput: input, Reasoning: "scripted"}
}

// taskCompleteAction builds a scriptedAction of type "task_complete".
func taskCompleteAction(content string) scriptedAction {
	return scriptedAction{Type: "task_complete", Content: content}
}

// requestInputAction builds a scriptedAction of type "request_input".
func requestInputAction(question string) scriptedAction {
	return scriptedAction{Type: "request_input", Question: question}
}
