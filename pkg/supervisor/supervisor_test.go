package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/llmrouter"
	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/planner"
	"github.com/conductor-run/conductor/pkg/runstate"
	"github.com/conductor-run/conductor/pkg/store/memstore"
	"github.com/conductor-run/conductor/pkg/toolrouter"
)

// fakeChatter replays a scripted sequence of decision responses.
type fakeChatter struct {
	responses []string
	calls     int
}

func (f *fakeChatter) Chat(ctx context.Context, req llmrouter.ChatRequest) (*llmrouter.ChatResponse, error) {
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	content := f.responses[idx]
	f.calls++
	return &llmrouter.ChatResponse{Model: "test-model", Content: content, Usage: llmrouter.Usage{Total: 10}}, nil
}

// fakePlanner returns a fixed Plan or error, skipping a real Synthesize call.
type fakePlanner struct {
	plan *model.Plan
	err  error
}

func (f *fakePlanner) Synthesize(ctx context.Context, req planner.Request) (*model.Plan, error) {
	return f.plan, f.err
}

// fakeTools executes a scripted output/error per tool name, tracking calls.
type fakeTools struct {
	registered map[string]bool
	outputs    map[string]map[string]any
	calls      int
}

func newFakeTools() *fakeTools {
	return &fakeTools{registered: map[string]bool{}, outputs: map[string]map[string]any{}}
}

func (f *fakeTools) Has(name string) bool { return f.registered[name] }

func (f *fakeTools) Execute(ctx context.Context, call toolrouter.ToolCall) (*model.ToolResult, error) {
	f.calls++
	out := f.outputs[call.Name]
	return &model.ToolResult{Status: model.ToolResultStatusOK, Output: out, DurationMs: 1}, nil
}

// fakeCreditConsumer records every Consume call, optionally failing with a
// scripted error.
type fakeCreditConsumer struct {
	err   error
	calls []int64
}

func (f *fakeCreditConsumer) Consume(ctx context.Context, runID string, amount int64) error {
	f.calls = append(f.calls, amount)
	return f.err
}

// fakeEventPublisher records every publish call by event kind.
type fakeEventPublisher struct {
	kinds []string
}

func (f *fakeEventPublisher) PlanCreated(runID string, phaseCount int) { f.kinds = append(f.kinds, "plan_created") }
func (f *fakeEventPublisher) PhaseStarted(runID, phaseID, title string) {
	f.kinds = append(f.kinds, "phase_started")
}
func (f *fakeEventPublisher) PhaseCompleted(runID, phaseID string) {
	f.kinds = append(f.kinds, "phase_completed")
}
func (f *fakeEventPublisher) ToolStarted(runID, stepID, toolName string) {
	f.kinds = append(f.kinds, "tool_started")
}
func (f *fakeEventPublisher) ToolCompleted(runID, stepID, toolName string, status model.ToolResultStatus, creditsCost int64) {
	f.kinds = append(f.kinds, "tool_completed")
}
func (f *fakeEventPublisher) Message(runID, content string) { f.kinds = append(f.kinds, "message") }
func (f *fakeEventPublisher) Thinking(runID, content string) { f.kinds = append(f.kinds, "thinking") }

func testSupervisorConfig() *config.SupervisorConfig {
	return &config.SupervisorConfig{
		ActionParseRetries: 2,
		ToolMaxRetries:      1,
		ToolRetryBaseDelay:  time.Millisecond,
		ToolRetryMaxDelay:   5 * time.Millisecond,
		IterationPacing:     time.Millisecond,
		Temperature:         0.2,
		MaxTokens:           1024,
	}
}

func twoPhasePlan() *model.Plan {
	return &model.Plan{
		Version: 1,
		Goal:    "ship the widget",
		Phases: []*model.Phase{
			{ID: 1, Title: "research", Description: "look around", Status: model.PhaseStatusPending},
			{ID: 2, Title: "deliver", Description: "write the result", Status: model.PhaseStatusPending},
		},
	}
}

func newTestRun(plan *model.Plan) *model.Run {
	now := time.Now()
	return &model.Run{
		ID:       "run-1",
		TenantID: "tenant-a",
		Prompt:   "ship the widget",
		Status:   model.RunStatusPlanning,
		Config:   model.DefaultRunConfig(),
		Plan:     plan,
		StartedAt: &now,
	}
}

func setUpSupervisor(t *testing.T, chatResponses []string, plan *model.Plan, tools *fakeTools, catalog map[string]config.ToolCatalogEntry) (*Supervisor, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	chat := &fakeChatter{responses: chatResponses}
	reg := config.NewToolRegistry(catalog)
	sup := New(&fakePlanner{plan: plan}, chat, tools, reg, st.Runs, st.Steps, runstate.NoopHooks{}, nil, nil, testSupervisorConfig())
	return sup, st
}

func TestExecuteSynthesizesPlanWhenMissing(t *testing.T) {
	plan := twoPhasePlan()
	tools := newFakeTools()
	sup, st := setUpSupervisor(t, []string{
		`{"type": "task_complete", "content": "done"}`,
	}, plan, tools, nil)

	run := newTestRun(nil)
	require.NoError(t, st.Runs.Create(context.Background(), run))

	err := sup.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.Plan)
}

func TestExecutePlanningFailureFailsRun(t *testing.T) {
	tools := newFakeTools()
	st := memstore.New()
	sup := New(&fakePlanner{err: planner.ErrPlanningFailed}, &fakeChatter{}, tools, config.NewToolRegistry(nil),
		st.Runs, st.Steps, runstate.NoopHooks{}, nil, nil, testSupervisorConfig())

	run := newTestRun(nil)
	require.NoError(t, st.Runs.Create(context.Background(), run))

	err := sup.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, "PLANNING_FAILED", run.Error.Code)
}

func TestExecuteRunsToolThenAdvancesPhases(t *testing.T) {
	plan := twoPhasePlan()
	tools := newFakeTools()
	tools.registered["web_search"] = true
	tools.outputs["web_search"] = map[string]any{"results": []string{"a", "b"}}

	catalog := map[string]config.ToolCatalogEntry{
		"web_search": {Name: "web_search", Category: "search", CostCredits: 2},
	}

	sup, st := setUpSupervisor(t, []string{
		`{"type": "tool", "tool_name": "web_search", "tool_input": {"q": "widgets"}, "reasoning": "look it up"}`,
		`{"type": "phase_complete"}`,
		`{"type": "task_complete", "content": "shipped"}`,
	}, plan, tools, catalog)

	run := newTestRun(plan)
	require.NoError(t, st.Runs.Create(context.Background(), run))

	err := sup.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.StepCount)
	assert.EqualValues(t, 2, run.CreditsConsumed)
	assert.Equal(t, 1, tools.calls)

	steps, err := st.Steps.ListByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, model.StepStatusCompleted, steps[0].Status)
}

func TestExecuteUnknownToolFeedsBackObservationWithoutCreatingStep(t *testing.T) {
	plan := twoPhasePlan()
	tools := newFakeTools() // nothing registered

	sup, st := setUpSupervisor(t, []string{
		`{"type": "tool", "tool_name": "ghost_tool", "tool_input": {}}`,
		`{"type": "phase_complete"}`,
		`{"type": "task_complete", "content": "shipped"}`,
	}, plan, tools, nil)

	run := newTestRun(plan)
	require.NoError(t, st.Runs.Create(context.Background(), run))

	err := sup.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, run.StepCount)

	steps, err := st.Steps.ListByRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestExecuteRequestInputPausesRun(t *testing.T) {
	plan := twoPhasePlan()
	tools := newFakeTools()
	sup, st := setUpSupervisor(t, []string{
		`{"type": "request_input", "question": "which region?"}`,
	}, plan, tools, nil)

	run := newTestRun(plan)
	lease := time.Now().Add(time.Minute)
	run.WorkerID = "node-1"
	run.LeaseExpiresAt = &lease
	require.NoError(t, st.Runs.Create(context.Background(), run))

	err := sup.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusWaitingUser, run.Status)
	assert.Empty(t, run.WorkerID, "a suspended run releases its dispatcher lease")
	assert.Nil(t, run.LeaseExpiresAt, "a suspended run releases its dispatcher lease")
	require.NotNil(t, run.TimeoutAt, "waiting_user stamps a deadline inherited from max_duration_seconds")
	assert.WithinDuration(t, run.StartedAt.Add(time.Duration(run.Config.MaxDurationSeconds)*time.Second), *run.TimeoutAt, time.Second)
}

func TestExecuteDecisionFailurePersistsDecisionFailedCode(t *testing.T) {
	plan := twoPhasePlan()
	tools := newFakeTools()
	sup, st := setUpSupervisor(t, []string{"garbage", "still garbage", "more garbage"}, plan, tools, nil)

	run := newTestRun(plan)
	require.NoError(t, st.Runs.Create(context.Background(), run))

	err := sup.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, "DECISION_FAILED", run.Error.Code)
}

func TestExecuteMaxStepsExceededTimesOutRun(t *testing.T) {
	plan := twoPhasePlan()
	tools := newFakeTools()
	tools.registered["web_search"] = true
	catalog := map[string]config.ToolCatalogEntry{
		"web_search": {Name: "web_search", Category: "search"},
	}

	sup, st := setUpSupervisor(t, []string{
		`{"type": "tool", "tool_name": "web_search", "tool_input": {}}`,
	}, plan, tools, catalog)

	run := newTestRun(plan)
	run.Config.MaxSteps = 1
	require.NoError(t, st.Runs.Create(context.Background(), run))

	err := sup.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusTimeout, run.Status)
}

func TestExecuteInsufficientCreditsFailsRun(t *testing.T) {
	plan := twoPhasePlan()
	tools := newFakeTools()
	sup, st := setUpSupervisor(t, []string{}, plan, tools, nil)

	run := newTestRun(plan)
	run.Config.MaxCredits = 1
	run.CreditsConsumed = 1
	require.NoError(t, st.Runs.Create(context.Background(), run))

	err := sup.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, "INSUFFICIENT_CREDITS", run.Error.Code)
}

func TestExecuteConsumesCreditsForBillableSteps(t *testing.T) {
	plan := twoPhasePlan()
	tools := newFakeTools()
	tools.registered["web_search"] = true

	catalog := map[string]config.ToolCatalogEntry{
		"web_search": {Name: "web_search", Category: "search", CostCredits: 4},
	}

	chat := &fakeChatter{responses: []string{
		`{"type": "tool", "tool_name": "web_search", "tool_input": {}}`,
		`{"type": "phase_complete"}`,
		`{"type": "task_complete", "content": "shipped"}`,
	}}

	st := memstore.New()
	reg := config.NewToolRegistry(catalog)
	credits := &fakeCreditConsumer{}
	sup := New(&fakePlanner{plan: plan}, chat, tools, reg, st.Runs, st.Steps, runstate.NoopHooks{}, credits, nil, testSupervisorConfig())

	run := newTestRun(plan)
	require.NoError(t, st.Runs.Create(context.Background(), run))

	err := sup.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	require.Len(t, credits.calls, 1)
	assert.EqualValues(t, 4, credits.calls[0])
}

func TestExecutePublishesEventsAtDecisionPoints(t *testing.T) {
	plan := twoPhasePlan()
	tools := newFakeTools()
	tools.registered["web_search"] = true

	catalog := map[string]config.ToolCatalogEntry{
		"web_search": {Name: "web_search", Category: "search", CostCredits: 2},
	}

	chat := &fakeChatter{responses: []string{
		`{"type": "tool", "tool_name": "web_search", "tool_input": {}}`,
		`{"type": "phase_complete"}`,
		`{"type": "task_complete", "content": "shipped"}`,
	}}

	st := memstore.New()
	reg := config.NewToolRegistry(catalog)
	pub := &fakeEventPublisher{}
	sup := New(&fakePlanner{plan: plan}, chat, tools, reg, st.Runs, st.Steps, runstate.NoopHooks{}, nil, pub, testSupervisorConfig())

	run := newTestRun(plan)
	require.NoError(t, st.Runs.Create(context.Background(), run))

	err := sup.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, []string{
		"phase_started", "tool_started", "tool_completed", "phase_completed", "phase_started", "phase_completed", "message",
	}, pub.kinds)
}

func TestExecuteReusesCompletedStepOnIdempotencyReplay(t *testing.T) {
	plan := twoPhasePlan()
	tools := newFakeTools()
	tools.registered["web_search"] = true
	catalog := map[string]config.ToolCatalogEntry{
		"web_search": {Name: "web_search", Category: "search", CostCredits: 3},
	}

	sup, st := setUpSupervisor(t, []string{
		`{"type": "tool", "tool_name": "web_search", "tool_input": {}}`,
		`{"type": "phase_complete"}`,
		`{"type": "task_complete", "content": "shipped"}`,
	}, plan, tools, catalog)

	run := newTestRun(plan)
	require.NoError(t, st.Runs.Create(context.Background(), run))

	idemKey := model.IdempotencyKey(run.ID, 1, "web_search")
	existing := &model.Step{
		ID:             idemKey,
		RunID:          run.ID,
		PhaseID:        "1",
		Sequence:       1,
		ToolName:       "web_search",
		Status:         model.StepStatusCompleted,
		IdempotencyKey: idemKey,
	}
	require.NoError(t, st.Steps.Create(context.Background(), existing))

	err := sup.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, tools.calls, "replayed step should not re-execute the tool")
	assert.Equal(t, 1, run.StepCount)
}
