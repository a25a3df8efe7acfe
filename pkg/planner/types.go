// Package planner synthesizes a Plan from a run's prompt via the LLM Router
// and validates it against the invariants in spec §4.4: 2-15 ordered phases,
// a delivery-responsible last phase, and capabilities drawn from the fixed
// vocabulary. Generalized from the teacher's forgiving-parse-then-repair
// loop (pkg/agent/controller/react_parser.go) and the planner-component
// retry-with-correction-prompt shape found elsewhere in the example pack.
package planner

import (
	"context"
	"errors"

	"github.com/conductor-run/conductor/pkg/llmrouter"
	"github.com/conductor-run/conductor/pkg/model"
)

// Request carries everything the Planner needs to synthesize a Plan for one run.
type Request struct {
	RunID      string
	TenantID   string
	Prompt     string
	Capability model.Capability // recognized capability hint, may be empty
	Model      string           // optional explicit model override
}

// chatter is the subset of *llmrouter.Router the Planner depends on. Kept as
// a local interface so tests can substitute a fake without a real Router.
type chatter interface {
	Chat(ctx context.Context, req llmrouter.ChatRequest) (*llmrouter.ChatResponse, error)
}

// ErrPlanningFailed wraps the last validation/parse error once every retry
// is exhausted. Callers map this to orcherr.CodePlanningFailed.
var ErrPlanningFailed = errors.New("planning failed")
