package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/conductor-run/conductor/pkg/llmrouter"
	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/orcherr"
	"github.com/conductor-run/conductor/pkg/planner"
	"github.com/conductor-run/conductor/pkg/runstate"
	"github.com/conductor-run/conductor/pkg/toolrouter"
)

// Execute drives run through planning (if needed) and the plan->phase->step
// loop until it reaches a terminal state, waiting_user, or paused. It
// implements queue.RunExecutor.
func (s *Supervisor) Execute(ctx context.Context, run *model.Run) error {
	if run.Plan == nil {
		if err := s.synthesizePlan(ctx, run); err != nil {
			return err
		}
		if run.Status.IsTerminal() {
			return nil
		}
	}

	if run.Status == model.RunStatusPlanning {
		if err := s.transition(ctx, run, model.RunStatusExecuting); err != nil {
			return err
		}
	}

	var deadline time.Time
	if run.Config.MaxDurationSeconds > 0 && run.StartedAt != nil {
		deadline = run.StartedAt.Add(time.Duration(run.Config.MaxDurationSeconds) * time.Second)
	}

	for run.Status == model.RunStatusExecuting && !run.Plan.AllPhasesDone() {
		if run.Config.MaxCredits > 0 && run.CreditsConsumed >= run.Config.MaxCredits {
			return s.failInsufficientCredits(ctx, run)
		}

		phase := run.Plan.FirstActivePhase()
		if phase == nil {
			break
		}

		advanced, err := s.runPhase(ctx, run, phase, deadline)
		if err != nil {
			return err
		}
		if !advanced {
			return nil
		}
	}

	if run.Status != model.RunStatusExecuting {
		return nil
	}
	return s.transition(ctx, run, model.RunStatusCompleted)
}

// synthesizePlan calls the Planner and either attaches the resulting Plan
// or fails the run with PLANNING_FAILED.
func (s *Supervisor) synthesizePlan(ctx context.Context, run *model.Run) error {
	plan, err := s.planner.Synthesize(ctx, planner.Request{
		RunID:    run.ID,
		TenantID: run.TenantID,
		Prompt:   run.Prompt,
		Model:    run.Config.Model,
	})
	if err != nil {
		run.Error = &model.StructuredRunError{
			Code:    string(orcherr.CodePlanningFailed),
			Message: err.Error(),
		}
		return s.transition(ctx, run, model.RunStatusFailed)
	}

	run.Plan = plan
	if len(plan.Phases) > 0 {
		run.Plan.CurrentPhaseID = strconv.Itoa(plan.Phases[0].ID)
	}
	if s.events != nil {
		s.events.PlanCreated(run.ID, len(plan.Phases))
	}
	return nil
}

// runPhase runs the decision loop for one phase until it declares itself
// complete, the whole task completes, the run needs user input, or a bound
// is exceeded. The returned bool reports whether the outer loop should
// continue to the next phase (true) or Execute should return (false,
// because the run already left the executing status or failed).
func (s *Supervisor) runPhase(ctx context.Context, run *model.Run, phase *model.Phase, deadline time.Time) (bool, error) {
	if phase.Status == model.PhaseStatusPending {
		phase.Status = model.PhaseStatusExecuting
		phase.StartedAt = timePtr(time.Now())
		if err := s.persistRun(ctx, run); err != nil {
			return false, err
		}
		if s.events != nil {
			s.events.PhaseStarted(run.ID, strconv.Itoa(phase.ID), phase.Title)
		}
	}

	tools := s.toolsForPhase(phase)
	messages := []llmrouter.Message{
		{Role: llmrouter.RoleSystem, Content: buildDecisionSystemPrompt(phase, len(run.Plan.Phases), tools)},
		{Role: llmrouter.RoleUser, Content: buildGoalUserPrompt(run.Plan.Goal, phase.Description)},
	}

	if run.PendingUserInput != "" {
		messages = append(messages, llmrouter.Message{Role: llmrouter.RoleUser, Content: run.PendingUserInput})
		run.PendingUserInput = ""
	}

	for {
		if run.Config.MaxSteps > 0 && run.StepCount >= run.Config.MaxSteps {
			return false, s.failTimeout(ctx, run, "max_steps exceeded")
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false, s.failTimeout(ctx, run, "max_duration_seconds exceeded")
		}

		action, nextMessages, err := s.decide(ctx, run, messages)
		messages = nextMessages
		if err != nil {
			if errors.Is(err, ErrDecisionFailed) {
				return false, s.failDecision(ctx, run, err)
			}
			return false, err
		}

		switch action.Kind {
		case ActionKindTool:
			observation, err := s.dispatchTool(ctx, run, phase, action)
			if err != nil {
				return false, err
			}
			messages = append(messages, llmrouter.Message{Role: llmrouter.RoleUser, Content: observation})
			if err := s.persistRun(ctx, run); err != nil {
				return false, err
			}

		case ActionKindMessage:
			if s.events != nil {
				s.events.Message(run.ID, action.Content)
			}
			messages = append(messages, llmrouter.Message{Role: llmrouter.RoleUser, Content: "Understood. Continue."})

		case ActionKindPhaseComplete:
			phase.Status = model.PhaseStatusCompleted
			phase.CompletedAt = timePtr(time.Now())
			if s.events != nil {
				s.events.PhaseCompleted(run.ID, strconv.Itoa(phase.ID))
			}
			return true, s.persistRun(ctx, run)

		case ActionKindTaskComplete:
			phase.Status = model.PhaseStatusCompleted
			phase.CompletedAt = timePtr(time.Now())
			s.skipRemainingPhases(run, phase)
			if s.events != nil {
				s.events.PhaseCompleted(run.ID, strconv.Itoa(phase.ID))
				s.events.Message(run.ID, action.Content)
			}
			return true, s.persistRun(ctx, run)

		case ActionKindRequestInput:
			slog.Info("run waiting on user input", "run_id", run.ID, "question", action.Question)
			s.suspendLease(run)
			return false, s.transition(ctx, run, model.RunStatusWaitingUser)
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.cfg.IterationPacing):
		}
	}
}

// decide asks the LLM for one AgentAction, retrying with a repair prompt up
// to cfg.ActionParseRetries times on parse/validation failure.
func (s *Supervisor) decide(ctx context.Context, run *model.Run, messages []llmrouter.Message) (AgentAction, []llmrouter.Message, error) {
	attempts := s.cfg.ActionParseRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := s.llm.Chat(ctx, llmrouter.ChatRequest{
			Messages:    messages,
			Model:       run.Config.Model,
			Temperature: s.cfg.Temperature,
			MaxTokens:   s.cfg.MaxTokens,
			UserID:      run.TenantID,
			RunID:       run.ID,
		})
		if err != nil {
			return AgentAction{}, messages, fmt.Errorf("llm call failed: %w", err)
		}

		action, parseErr := parseAgentAction(resp.Content)
		if parseErr == nil {
			messages = append(messages, llmrouter.Message{Role: llmrouter.RoleAssistant, Content: resp.Content})
			return action, messages, nil
		}

		lastErr = parseErr
		if attempt >= attempts {
			break
		}

		slog.Warn("decision response failed to parse, retrying with repair prompt",
			"run_id", run.ID, "attempt", attempt, "error", parseErr)

		messages = append(messages,
			llmrouter.Message{Role: llmrouter.RoleAssistant, Content: resp.Content},
			llmrouter.Message{Role: llmrouter.RoleUser, Content: buildDecisionRepairPrompt(parseErr.Error())},
		)
	}

	return AgentAction{}, messages, fmt.Errorf("%w: %v", ErrDecisionFailed, lastErr)
}

// dispatchTool validates and executes a tool action, persisting the Step
// record and updating the run's step/credit counters. It returns an
// observation string to feed back to the model; unknown or disallowed
// tools produce an observation without creating a Step.
func (s *Supervisor) dispatchTool(ctx context.Context, run *model.Run, phase *model.Phase, action AgentAction) (string, error) {
	if !s.tools.Has(action.ToolName) {
		return formatUnknownToolObservation(action.ToolName, s.catalogNames()), nil
	}
	if !run.Config.IsToolEnabled(action.ToolName) {
		return formatToolNotAllowedObservation(action.ToolName), nil
	}

	sequence := run.StepCount + 1
	idemKey := model.IdempotencyKey(run.ID, sequence, action.ToolName)

	if existing, err := s.steps.GetByIdempotencyKey(ctx, run.ID, idemKey); err == nil && existing != nil && existing.Status.IsTerminal() {
		run.StepCount = sequence
		return formatToolObservation(action.ToolName, resultFromStep(existing)), nil
	}

	def, _ := s.catalog.Get(action.ToolName)

	step := &model.Step{
		ID:             idemKey,
		RunID:          run.ID,
		PhaseID:        strconv.Itoa(phase.ID),
		Sequence:       sequence,
		ToolName:       action.ToolName,
		ToolInput:      action.ToolInput,
		Status:         model.StepStatusRunning,
		CreatedAt:      time.Now(),
		StartedAt:      timePtr(time.Now()),
		IdempotencyKey: idemKey,
	}
	if err := s.steps.Create(ctx, step); err != nil {
		return "", fmt.Errorf("create step: %w", err)
	}
	if s.events != nil {
		s.events.ToolStarted(run.ID, step.ID, action.ToolName)
	}

	result, err := s.executeToolWithRetry(ctx, run, action)
	if err != nil {
		return "", err
	}

	step.CompletedAt = timePtr(time.Now())
	step.DurationMs = result.DurationMs
	step.ToolOutput = result.Output
	step.Error = result.Error
	step.CreditsConsumed = def.CostCredits
	if result.Status == model.ToolResultStatusOK {
		step.Status = model.StepStatusCompleted
	} else {
		step.Status = model.StepStatusFailed
	}
	if err := s.steps.Update(ctx, step); err != nil {
		return "", fmt.Errorf("update step: %w", err)
	}

	run.StepCount = sequence
	run.CreditsConsumed += def.CostCredits

	if s.credits != nil && result.Status == model.ToolResultStatusOK && def.CostCredits > 0 {
		if err := s.credits.Consume(ctx, run.ID, def.CostCredits); err != nil {
			return "", fmt.Errorf("consume credits for run %s: %w", run.ID, err)
		}
	}
	if s.events != nil {
		s.events.ToolCompleted(run.ID, step.ID, action.ToolName, result.Status, def.CostCredits)
	}

	if uri, ok := result.Output["artifact_uri"]; ok {
		slog.Info("step emitted artifact", "run_id", run.ID, "step_id", step.ID, "artifact_uri", uri)
	}

	return formatToolObservation(action.ToolName, result), nil
}

// executeToolWithRetry calls the Tool Router, retrying recoverable failures
// (timeouts, or errors the envelope marks Recoverable) with exponential
// backoff up to cfg.ToolMaxRetries attempts. A hard Go error from the
// router (e.g. the handler vanished mid-run) is returned as-is; a
// recoverable-but-exhausted or unrecoverable tool failure is returned as a
// failed *model.ToolResult rather than an error, so the caller can feed it
// back to the model as an observation.
func (s *Supervisor) executeToolWithRetry(ctx context.Context, run *model.Run, action AgentAction) (*model.ToolResult, error) {
	call := toolrouter.ToolCall{
		ID:       fmt.Sprintf("%s-%d", action.ToolName, run.StepCount+1),
		Name:     action.ToolName,
		TenantID: run.TenantID,
		RunID:    run.ID,
		Input:    action.ToolInput,
	}

	var result *model.ToolResult
	attempt := 0
	op := func() error {
		attempt++
		r, err := s.tools.Execute(ctx, call)
		if err != nil {
			return backoff.Permanent(err)
		}
		result = r
		if result.Status != model.ToolResultStatusOK && isRecoverableResult(result) && attempt <= s.cfg.ToolMaxRetries {
			return fmt.Errorf("recoverable tool error: %s", result.Status)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.ToolRetryBaseDelay
	policy.MaxInterval = s.cfg.ToolRetryMaxDelay
	retryPolicy := backoff.WithMaxRetries(policy, uint64(s.cfg.ToolMaxRetries))

	if err := backoff.Retry(op, backoff.WithContext(retryPolicy, ctx)); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, fmt.Errorf("tool %q: %w", action.ToolName, perm.Err)
		}
		// retries exhausted on a recoverable error; fall through with the
		// last (failed) result so the model sees it as an observation.
	}

	return result, nil
}

func isRecoverableResult(r *model.ToolResult) bool {
	if r.Status == model.ToolResultStatusTimeout {
		return true
	}
	return r.Error != nil && r.Error.Recoverable
}

func resultFromStep(st *model.Step) *model.ToolResult {
	status := model.ToolResultStatusOK
	if st.Status == model.StepStatusFailed {
		status = model.ToolResultStatusError
	}
	return &model.ToolResult{Status: status, Output: st.ToolOutput, Error: st.Error, DurationMs: st.DurationMs}
}

func (s *Supervisor) catalogNames() []string {
	all := s.catalog.All()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// toolsForPhase narrows the catalog to tools whose required capabilities
// overlap the phase's declared capabilities. A tool or phase with no
// capabilities declared is treated as universally applicable.
func (s *Supervisor) toolsForPhase(phase *model.Phase) []model.ToolDefinition {
	all := s.catalog.All()
	defs := make([]model.ToolDefinition, 0, len(all))
	for _, def := range all {
		if toolMatchesPhase(def, phase) {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func toolMatchesPhase(def model.ToolDefinition, phase *model.Phase) bool {
	if len(phase.Capabilities) == 0 || len(def.RequiredCapabilities) == 0 {
		return true
	}
	for _, need := range def.RequiredCapabilities {
		if phase.HasCapability(need) {
			return true
		}
	}
	return false
}

func (s *Supervisor) skipRemainingPhases(run *model.Run, current *model.Phase) {
	for _, p := range run.Plan.Phases {
		if p.ID == current.ID {
			continue
		}
		if p.Status == model.PhaseStatusPending || p.Status == model.PhaseStatusExecuting {
			p.Status = model.PhaseStatusSkipped
		}
	}
}

// persistRun bumps the in-memory version and writes run through the
// version-checked update, without touching run.Status. Used for the
// in-phase checkpoints that aren't lifecycle transitions.
func (s *Supervisor) persistRun(ctx context.Context, run *model.Run) error {
	expected := run.Version
	run.Version++
	if err := s.runs.UpdateVersioned(ctx, run, expected); err != nil {
		return fmt.Errorf("persist run: %w", err)
	}
	return nil
}

// transition applies a Run lifecycle transition via runstate and persists
// it with the pre-increment version as the optimistic-concurrency check.
func (s *Supervisor) transition(ctx context.Context, run *model.Run, to model.RunStatus) error {
	expected := run.Version
	if err := runstate.Apply(run, to, s.hooks, time.Now()); err != nil {
		return fmt.Errorf("apply transition to %s: %w", to, err)
	}
	if err := s.runs.UpdateVersioned(ctx, run, expected); err != nil {
		return fmt.Errorf("persist transition to %s: %w", to, err)
	}
	return nil
}

// suspendLease releases a run's dispatcher lease when it parks in
// waiting_user so the orphan reaper's lease-expiry scan does not mistake a
// suspended run for an abandoned one, and stamps TimeoutAt so a separate
// reaper pass can still bound how long the run may sit idle: waiting_user
// inherits config.MaxDurationSeconds measured from StartedAt, the same
// deadline Execute already enforces while executing.
func (s *Supervisor) suspendLease(run *model.Run) {
	run.WorkerID = ""
	run.LeaseExpiresAt = nil
	if run.Config.MaxDurationSeconds > 0 && run.StartedAt != nil {
		deadline := run.StartedAt.Add(time.Duration(run.Config.MaxDurationSeconds) * time.Second)
		run.TimeoutAt = &deadline
	}
}

func (s *Supervisor) failTimeout(ctx context.Context, run *model.Run, reason string) error {
	run.Error = &model.StructuredRunError{Code: string(orcherr.CodeRunTimeout), Message: reason}
	return s.transition(ctx, run, model.RunStatusTimeout)
}

func (s *Supervisor) failDecision(ctx context.Context, run *model.Run, cause error) error {
	run.Error = &model.StructuredRunError{Code: string(orcherr.CodeDecisionFailed), Message: cause.Error()}
	return s.transition(ctx, run, model.RunStatusFailed)
}

func (s *Supervisor) failInsufficientCredits(ctx context.Context, run *model.Run) error {
	run.Error = &model.StructuredRunError{
		Code:    string(orcherr.CodeInsufficientCredit),
		Message: "run exhausted its credit budget before completing",
	}
	return s.transition(ctx, run, model.RunStatusFailed)
}

func timePtr(t time.Time) *time.Time { return &t }
