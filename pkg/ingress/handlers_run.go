package ingress

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/orcherr"
	"github.com/conductor-run/conductor/pkg/runstate"
	"github.com/conductor-run/conductor/pkg/store"
)

// handleCreate handles POST /v1/runs (spec §6 "create"). It validates the
// caller, resolves the tenant, checks requested credits against the
// configured per-run ceiling (402 when exceeded), and persists a Run in
// pending — it does not reserve credits or enqueue the run; that happens in
// handleStart, whose pending→queued transition runs the reservation hook
// (credit.Manager.OnQueued).
func (s *Server) handleCreate(c *gin.Context) {
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	principal := principalFrom(c)
	tenantID := principal.TenantID
	if req.ProjectID != "" {
		tenantID = req.ProjectID
	}

	ctx := c.Request.Context()

	if req.ExternalID != "" {
		if existing, err := s.runs.GetByExternalID(ctx, tenantID, req.ExternalID); err == nil {
			c.JSON(http.StatusOK, CreateRunResponse{RunID: existing.ID, Status: "created"})
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			writeError(c, err)
			return
		}
	}

	cfg := model.DefaultRunConfig().Merge(req.Config.toRunConfig())
	if len(req.ConnectorIDs) > 0 && cfg.ToolsEnabled == nil {
		tools := make(map[string]bool, len(req.ConnectorIDs))
		for _, id := range req.ConnectorIDs {
			tools[id] = true
		}
		cfg.ToolsEnabled = tools
	}

	if s.credit != nil && s.credit.MaxPerRun > 0 && cfg.MaxCredits > s.credit.MaxPerRun {
		writeError(c, orcherr.New(orcherr.CodeInsufficientCredit,
			"requested max_credits exceeds the per-run ceiling", false))
		return
	}

	run := &model.Run{
		ID:         uuid.NewString(),
		ExternalID: req.ExternalID,
		TenantID:   tenantID,
		UserID:     principal.UserID,
		Status:     model.RunStatusPending,
		Prompt:     req.Prompt,
		PromptHash: model.ContentHash([]byte(req.Prompt)),
		Config:     cfg,
		MaxRetries: s.maxRetries(),
		CreatedAt:  time.Now(),
	}

	if err := s.runs.Create(ctx, run); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateRunResponse{RunID: run.ID, Status: "created"})
}

// handleStart handles POST /v1/runs/:id/start. Queued is accepted as a
// no-op ack (a retried start on a run already moving) rather than an
// error, matching the table's "400 if not in created/queued" — anything
// else is rejected.
func (s *Server) handleStart(c *gin.Context) {
	ctx := c.Request.Context()
	run, ok := s.loadRun(c, ctx)
	if !ok {
		return
	}

	if run.Status == model.RunStatusQueued {
		c.JSON(http.StatusOK, ackResponse{RunID: run.ID, Status: string(run.Status)})
		return
	}
	if run.Status != model.RunStatusPending {
		writeError(c, orcherr.New(orcherr.CodeInvalidTransition,
			"run must be pending or queued to start", false))
		return
	}

	if !s.applyTransition(c, run, model.RunStatusQueued) {
		return
	}

	c.JSON(http.StatusOK, ackResponse{RunID: run.ID, Status: string(run.Status)})
}

// handleStop handles POST /v1/runs/:id/stop. It always asks the worker
// pool to cancel in-flight execution on this node regardless of whether
// the persisted transition succeeds, the same belt-and-suspenders the
// teacher's cancelSessionHandler applies.
func (s *Server) handleStop(c *gin.Context) {
	ctx := c.Request.Context()
	run, ok := s.loadRun(c, ctx)
	if !ok {
		return
	}

	if s.pool != nil {
		s.pool.CancelRun(run.ID)
	}

	if run.Status.IsTerminal() {
		c.JSON(http.StatusOK, ackResponse{RunID: run.ID, Status: string(run.Status)})
		return
	}
	if !runstate.CanTransition(run.Status, model.RunStatusCancelled) {
		writeError(c, orcherr.New(orcherr.CodeInvalidTransition,
			"run cannot be cancelled from its current status", false))
		return
	}

	if !s.applyTransition(c, run, model.RunStatusCancelled) {
		return
	}

	c.JSON(http.StatusOK, ackResponse{RunID: run.ID, Status: string(run.Status)})
}

// handleRetry handles POST /v1/runs/:id/retry: a failed run's prompt and
// config are used to create a brand new Run, left pending exactly like
// handleCreate leaves one (the caller still has to start it).
func (s *Server) handleRetry(c *gin.Context) {
	ctx := c.Request.Context()
	run, ok := s.loadRun(c, ctx)
	if !ok {
		return
	}
	if run.Status != model.RunStatusFailed {
		writeError(c, orcherr.New(orcherr.CodeInvalidTransition, "only a failed run can be retried", false))
		return
	}

	maxRetries := run.MaxRetries
	if maxRetries == 0 {
		maxRetries = s.maxRetries()
	}

	retry := &model.Run{
		ID:         uuid.NewString(),
		TenantID:   run.TenantID,
		UserID:     run.UserID,
		Status:     model.RunStatusPending,
		Prompt:     run.Prompt,
		PromptHash: run.PromptHash,
		Config:     run.Config,
		RetryCount: run.RetryCount + 1,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now(),
	}

	if err := s.runs.Create(ctx, retry); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateRunResponse{RunID: retry.ID, Status: "created"})
}

// handleResume handles POST /v1/runs/:id/resume. The run is pushed back to
// queued rather than straight to executing because the Dispatcher only
// ever claims queued runs (ClaimNext never looks at paused/waiting_user);
// any UserInput is stashed on the Run for the Supervisor to fold into the
// next phase's message history.
func (s *Server) handleResume(c *gin.Context) {
	var req ResumeRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength != 0 {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	run, ok := s.loadRun(c, ctx)
	if !ok {
		return
	}

	if run.Status != model.RunStatusWaitingUser && run.Status != model.RunStatusPaused {
		writeError(c, orcherr.New(orcherr.CodeInvalidTransition,
			"run must be waiting_user or paused to resume", false))
		return
	}

	run.PendingUserInput = req.UserInput
	if !s.applyTransition(c, run, model.RunStatusQueued) {
		return
	}

	c.JSON(http.StatusOK, ackResponse{RunID: run.ID, Status: string(run.Status)})
}

// handleStatus handles GET /v1/runs/:id.
func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	run, ok := s.loadRun(c, ctx)
	if !ok {
		return
	}

	resp := RunStatusResponse{
		RunID:           run.ID,
		ExternalID:      run.ExternalID,
		Status:          run.Status,
		CreditsReserved: run.CreditsReserved,
		CreditsConsumed: run.CreditsConsumed,
		StepCount:       run.StepCount,
		RetryCount:      run.RetryCount,
		CreatedAt:       run.CreatedAt.Format(time.RFC3339),
		Error:           run.Error,
	}
	if run.StartedAt != nil {
		resp.StartedAt = run.StartedAt.Format(time.RFC3339)
	}
	if run.CompletedAt != nil {
		resp.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	if run.Plan != nil {
		resp.Plan = toPlanSummary(run.Plan)
	}
	if run.CurrentStepID != "" {
		if step, err := s.steps.Get(ctx, run.CurrentStepID); err == nil {
			resp.CurrentStep = &StepSummary{ID: step.ID, ToolName: step.ToolName, Status: step.Status, Error: step.Error}
		}
	}

	c.JSON(http.StatusOK, resp)
}

func toPlanSummary(p *model.Plan) *PlanSummary {
	phases := make([]PhaseSummary, len(p.Phases))
	for i, ph := range p.Phases {
		phases[i] = PhaseSummary{
			ID:             ph.ID,
			Title:          ph.Title,
			Status:         ph.Status,
			StepsCompleted: ph.StepsCompleted,
			EstimatedSteps: ph.EstimatedSteps,
		}
	}
	return &PlanSummary{Goal: p.Goal, CurrentPhaseID: p.CurrentPhaseID, Phases: phases}
}

// loadRun fetches the run named by the :id path param, writing an
// appropriate error response and returning ok=false on any failure.
func (s *Server) loadRun(c *gin.Context, ctx context.Context) (*model.Run, bool) {
	id := c.Param("id")
	if id == "" {
		badRequest(c, "run id is required")
		return nil, false
	}

	run, err := s.runs.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return run, true
}

// maxRetries returns the configured lease-retry budget for newly created
// runs, falling back to DefaultQueueConfig's value if the server was not
// given a QueueConfig (e.g. a test harness wiring only the pieces it needs).
func (s *Server) maxRetries() int {
	if s.queue != nil && s.queue.MaxRetries > 0 {
		return s.queue.MaxRetries
	}
	return config.DefaultQueueConfig().MaxRetries
}

// applyTransition validates and applies a runstate transition, persists it
// with the expected-version compare-and-swap, and writes an error
// response (without terminating the caller) on any failure.
func (s *Server) applyTransition(c *gin.Context, run *model.Run, to model.RunStatus) bool {
	expected := run.Version
	if err := runstate.Apply(run, to, s.hooks, time.Now()); err != nil {
		writeError(c, err)
		return false
	}
	if err := s.runs.UpdateVersioned(c.Request.Context(), run, expected); err != nil {
		writeError(c, err)
		return false
	}
	return true
}
