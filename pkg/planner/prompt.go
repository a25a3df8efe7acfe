package planner

import (
	"fmt"
	"strings"

	"github.com/conductor-run/conductor/pkg/model"
)

const systemPromptTemplate = `You are the planning stage of an autonomous agent run orchestrator. Given a
user's goal, break it into an ordered sequence of phases that a supervisor
loop will execute one at a time.

Rules:
- Produce between %d and %d phases.
- Phase IDs are 1-based integers with no gaps: 1, 2, 3, ...
- The last phase's responsibility is always delivering the final result to
  the user (writing the answer, generating the deliverable, or otherwise
  concluding the work) — never leave delivery implicit in an earlier phase.
- Each phase lists the capabilities required to complete it, drawn only
  from this fixed vocabulary: %s
- Respond with ONLY a single JSON object, no markdown fences, no prose
  before or after it. The object must match this shape exactly:

{
  "goal": "<restated goal>",
  "phases": [
    {
      "id": 1,
      "title": "<short title>",
      "description": "<what this phase accomplishes>",
      "capabilities": ["<capability>", "..."],
      "estimated_steps": <integer>,
      "is_delivery": <true only on the last phase, false otherwise>
    }
  ]
}`

const userPromptTemplate = `Goal:
%s

Plan this goal now.`

const repairPromptTemplate = `Your previous response could not be used: %s

Respond again with ONLY the corrected JSON object, matching the exact
shape already described. Do not include any explanation or markdown
fences — the entire response must be valid JSON.`

func capabilityList() string {
	names := make([]string, 0, len(model.AllCapabilities))
	for _, c := range model.AllCapabilities {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

func buildSystemPrompt(minPhases, maxPhases int) string {
	return fmt.Sprintf(systemPromptTemplate, minPhases, maxPhases, capabilityList())
}

func buildUserPrompt(goal string) string {
	return fmt.Sprintf(userPromptTemplate, goal)
}

func buildRepairPrompt(reason string) string {
	return fmt.Sprintf(repairPromptTemplate, reason)
}
