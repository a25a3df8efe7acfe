// Package supervisor drives one Run through the plan -> phase -> step
// decision loop described in spec §4.3: it synthesizes a Plan via the
// Planner when one is missing, then repeatedly asks the LLM Router for a
// single next AgentAction, executes it (dispatching tool calls through the
// Tool Router), and persists every state transition through pkg/runstate.
// Generalized from the teacher's ReActController (pkg/agent/controller/
// react.go): the same "call LLM, parse a structured decision, act on it,
// append an observation, loop" shape, with the ReAct text format replaced
// by a JSON AgentAction and tools dispatched through pkg/toolrouter instead
// of an MCP ToolExecutor.
package supervisor

import (
	"context"
	"errors"

	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/llmrouter"
	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/planner"
	"github.com/conductor-run/conductor/pkg/runstate"
	"github.com/conductor-run/conductor/pkg/toolrouter"
)

// ActionKind is the discriminator on an AgentAction's "type" field.
type ActionKind string

// Recognized action kinds (spec §4.3).
const (
	ActionKindTool         ActionKind = "tool"
	ActionKindMessage      ActionKind = "message"
	ActionKindPhaseComplete ActionKind = "phase_complete"
	ActionKindTaskComplete  ActionKind = "task_complete"
	ActionKindRequestInput  ActionKind = "request_input"
)

// AgentAction is the single decision the supervisor asks the model to make
// every iteration. Exactly one of the kind-specific fields is meaningful,
// selected by Kind.
type AgentAction struct {
	Kind ActionKind

	// ActionKindTool
	ToolName  string
	ToolInput map[string]any
	Reasoning string

	// ActionKindMessage / ActionKindTaskComplete
	Content string

	// ActionKindRequestInput
	Question string
}

// chatter is the subset of *llmrouter.Router the supervisor depends on.
// Mirrors pkg/planner's chatter seam so tests can inject a scripted fake.
type chatter interface {
	Chat(ctx context.Context, req llmrouter.ChatRequest) (*llmrouter.ChatResponse, error)
}

// toolExecutor is the subset of *toolrouter.Router the supervisor depends on.
type toolExecutor interface {
	Execute(ctx context.Context, call toolrouter.ToolCall) (*model.ToolResult, error)
	Has(name string) bool
}

// planSynthesizer is the subset of *planner.Planner the supervisor depends
// on. Kept as a local interface, mirroring the chatter seam above, so tests
// can inject a fake without a real LLM Router underneath the Planner.
type planSynthesizer interface {
	Synthesize(ctx context.Context, req planner.Request) (*model.Plan, error)
}

// runStore is the subset of store.RunStore the supervisor depends on.
type runStore interface {
	Get(ctx context.Context, id string) (*model.Run, error)
	UpdateVersioned(ctx context.Context, r *model.Run, expectedVersion int64) error
}

// stepStore is the subset of store.StepStore the supervisor depends on.
type stepStore interface {
	Create(ctx context.Context, s *model.Step) error
	Update(ctx context.Context, s *model.Step) error
	GetByIdempotencyKey(ctx context.Context, runID, key string) (*model.Step, error)
}

// creditConsumer is the subset of *credit.Manager the supervisor depends
// on, debiting a run's active reservation after each billable step (spec
// §4.7). Kept as a local interface so tests can run without a real credit
// store wired up; a nil creditConsumer is valid and simply skips debiting.
type creditConsumer interface {
	Consume(ctx context.Context, runID string, amount int64) error
}

// eventPublisher is the subset of *events.Publisher the supervisor depends
// on, emitting the per-run event stream (spec §4.8) at each decision point.
// A nil eventPublisher is valid and simply skips publishing, mirroring
// creditConsumer's nil-safety.
type eventPublisher interface {
	PlanCreated(runID string, phaseCount int)
	PhaseStarted(runID, phaseID, title string)
	PhaseCompleted(runID, phaseID string)
	ToolStarted(runID, stepID, toolName string)
	ToolCompleted(runID, stepID, toolName string, status model.ToolResultStatus, creditsCost int64)
	Message(runID, content string)
	Thinking(runID, content string)
}

// Sentinel errors. Callers map these onto orcherr codes when persisting a
// terminal Run.Error.
var (
	// ErrDecisionFailed is returned when the model's AgentAction response
	// fails to parse or validate on every retry.
	ErrDecisionFailed = errors.New("decision failed")
)

// Supervisor implements queue.RunExecutor.
type Supervisor struct {
	planner planSynthesizer
	llm     chatter
	tools   toolExecutor
	catalog *config.ToolRegistry

	runs    runStore
	steps   stepStore
	hooks   runstate.Hooks
	credits creditConsumer
	events  eventPublisher

	cfg *config.SupervisorConfig
}

// New builds a Supervisor. plan is typically *planner.Planner, llm is
// typically *llmrouter.Router, tools is typically *toolrouter.Router,
// credits is typically *credit.Manager and may be nil, in which case step
// credit consumption is tracked on the Run only and never debited against
// a reservation. events is typically *events.Publisher and may be nil, in
// which case the run simply has no live event stream.
func New(
	plan planSynthesizer,
	llm chatter,
	tools toolExecutor,
	catalog *config.ToolRegistry,
	runs runStore,
	steps stepStore,
	hooks runstate.Hooks,
	credits creditConsumer,
	events eventPublisher,
	cfg *config.SupervisorConfig,
) *Supervisor {
	return &Supervisor{
		planner: plan,
		llm:     llm,
		tools:   tools,
		catalog: catalog,
		runs:    runs,
		steps:   steps,
		hooks:   hooks,
		credits: credits,
		events:  events,
		cfg:     cfg,
	}
}
