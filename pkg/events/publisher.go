package events

import (
	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/runstate"
)

// Publisher adapts a Broadcaster to runstate.Hooks and exposes the
// narrower, named methods the Supervisor calls directly at the points
// spec §4.8 names (plan_created, phase_started, ...). Hooks only fires at
// the queued and terminal transitions, so task_started is emitted from
// OnQueued (the first point a Run's own hook runs) and task_completed /
// task_failed / stream_end from OnTerminal; everything in between is the
// Supervisor's business, not the state machine's.
type Publisher struct {
	b *Broadcaster
}

var _ runstate.Hooks = (*Publisher)(nil)

// NewPublisher wraps a Broadcaster as a runstate.Hooks implementation.
func NewPublisher(b *Broadcaster) *Publisher {
	return &Publisher{b: b}
}

// OnQueued implements runstate.Hooks, emitting task_started.
func (p *Publisher) OnQueued(r *model.Run) error {
	p.b.Publish(r.ID, TypeTaskStarted, map[string]any{"prompt_hash": r.PromptHash})
	return nil
}

// OnTerminal implements runstate.Hooks, emitting task_completed or
// task_failed followed by stream_end so SSE consumers know to stop
// reading.
func (p *Publisher) OnTerminal(r *model.Run) error {
	if r.Status == model.RunStatusCompleted {
		p.b.Publish(r.ID, TypeTaskCompleted, map[string]any{"credits_consumed": r.CreditsConsumed})
	} else {
		payload := map[string]any{"status": string(r.Status)}
		if r.Error != nil {
			payload["error_code"] = r.Error.Code
			payload["error_message"] = r.Error.Message
		}
		p.b.Publish(r.ID, TypeTaskFailed, payload)
	}
	p.b.Publish(r.ID, TypeStreamEnd, nil)
	return nil
}

// PlanCreated emits plan_created once the Supervisor has a plan in hand.
func (p *Publisher) PlanCreated(runID string, phaseCount int) {
	p.b.Publish(runID, TypePlanCreated, map[string]any{"phase_count": phaseCount})
}

// PhaseStarted emits phase_started.
func (p *Publisher) PhaseStarted(runID, phaseID, title string) {
	p.b.Publish(runID, TypePhaseStarted, map[string]any{"phase_id": phaseID, "title": title})
}

// PhaseCompleted emits phase_completed.
func (p *Publisher) PhaseCompleted(runID, phaseID string) {
	p.b.Publish(runID, TypePhaseCompleted, map[string]any{"phase_id": phaseID})
}

// ToolStarted emits tool_started.
func (p *Publisher) ToolStarted(runID, stepID, toolName string) {
	p.b.Publish(runID, TypeToolStarted, map[string]any{"step_id": stepID, "tool_name": toolName})
}

// ToolOutput emits tool_output, typically for streamed/partial tool
// results ahead of the step's final ToolCompleted.
func (p *Publisher) ToolOutput(runID, stepID string, chunk string) {
	p.b.Publish(runID, TypeToolOutput, map[string]any{"step_id": stepID, "chunk": chunk})
}

// ToolCompleted emits tool_completed.
func (p *Publisher) ToolCompleted(runID, stepID, toolName string, status model.ToolResultStatus, creditsCost int64) {
	p.b.Publish(runID, TypeToolCompleted, map[string]any{
		"step_id":   stepID,
		"tool_name": toolName,
		"status":    string(status),
		"credits":   creditsCost,
	})
}

// Message emits an assistant-visible message event.
func (p *Publisher) Message(runID, content string) {
	p.b.Publish(runID, TypeMessage, map[string]any{"content": content})
}

// Thinking emits a model "thinking"/reasoning trace event.
func (p *Publisher) Thinking(runID, content string) {
	p.b.Publish(runID, TypeThinking, map[string]any{"content": content})
}
