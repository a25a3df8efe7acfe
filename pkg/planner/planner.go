package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/jsonextract"
	"github.com/conductor-run/conductor/pkg/llmrouter"
	"github.com/conductor-run/conductor/pkg/model"
)

// Planner synthesizes and validates a Plan from a run's prompt, on top of
// the LLM Router.
type Planner struct {
	llm chatter
	cfg *config.PlannerConfig
}

// New builds a Planner. llm is typically *llmrouter.Router.
func New(llm chatter, cfg *config.PlannerConfig) *Planner {
	return &Planner{llm: llm, cfg: cfg}
}

// Synthesize produces a Plan for req, retrying up to cfg.Retries times with
// a repair prompt when the model's response fails to parse or validate. On
// persistent failure it returns an error wrapping ErrPlanningFailed.
func (p *Planner) Synthesize(ctx context.Context, req Request) (*model.Plan, error) {
	messages := []llmrouter.Message{
		{Role: llmrouter.RoleSystem, Content: buildSystemPrompt(p.cfg.MinPhases, p.cfg.MaxPhases)},
		{Role: llmrouter.RoleUser, Content: buildUserPrompt(req.Prompt)},
	}

	start := time.Now()
	var lastErr error
	var totalInputTokens, totalOutputTokens int
	var modelUsed string

	attempts := p.cfg.Retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := p.llm.Chat(ctx, llmrouter.ChatRequest{
			Messages:    messages,
			Model:       req.Model,
			Temperature: p.cfg.Temperature,
			MaxTokens:   p.cfg.MaxTokens,
			UserID:      req.TenantID,
			RunID:       req.RunID,
			Capability:  req.Capability,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: llm call failed: %v", ErrPlanningFailed, err)
		}

		modelUsed = resp.Model
		totalInputTokens += resp.Usage.Prompt
		totalOutputTokens += resp.Usage.Completion

		plan, parseErr := p.parseAndValidate(resp.Content)
		if parseErr == nil {
			plan.Metadata = model.PlanMetadata{
				Attempt:          attempt,
				Model:            modelUsed,
				TokensInput:      totalInputTokens,
				TokensOutput:     totalOutputTokens,
				GenerationTimeMs: time.Since(start).Milliseconds(),
			}
			return plan, nil
		}

		lastErr = parseErr
		if attempt >= attempts {
			break
		}

		slog.Warn("planner response failed validation, retrying with repair prompt",
			"run_id", req.RunID, "attempt", attempt, "error", parseErr)

		messages = append(messages,
			llmrouter.Message{Role: llmrouter.RoleAssistant, Content: resp.Content},
			llmrouter.Message{Role: llmrouter.RoleUser, Content: buildRepairPrompt(parseErr.Error())},
		)
	}

	return nil, fmt.Errorf("%w: %v", ErrPlanningFailed, lastErr)
}

// parseAndValidate extracts the first balanced JSON object from content,
// decodes it, and validates it against spec §4.4's invariants.
func (p *Planner) parseAndValidate(content string) (*model.Plan, error) {
	stripped := jsonextract.StripCodeFence(content)
	raw, ok := jsonextract.FirstObject(stripped)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	doc, err := decodePlanDocument(raw)
	if err != nil {
		return nil, err
	}

	if err := validatePlanDocument(doc, p.cfg.MinPhases, p.cfg.MaxPhases); err != nil {
		return nil, err
	}

	return toPlan(doc), nil
}
