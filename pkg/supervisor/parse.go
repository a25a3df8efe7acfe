package supervisor

import (
	"encoding/json"
	"fmt"

	"github.com/conductor-run/conductor/pkg/jsonextract"
)

// actionDocument is the wire shape the LLM is asked to produce for one
// decision. Unmarshaled independently of AgentAction so validation can run
// against the raw response first.
type actionDocument struct {
	Type      string         `json:"type"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	Reasoning string         `json:"reasoning"`
	Content   string         `json:"content"`
	Question  string         `json:"question"`
}

// parseAgentAction extracts the first balanced JSON object from content and
// converts it into an AgentAction, validating the discriminator and the
// fields required by that kind.
func parseAgentAction(content string) (AgentAction, error) {
	stripped := jsonextract.StripCodeFence(content)
	raw, ok := jsonextract.FirstObject(stripped)
	if !ok {
		return AgentAction{}, fmt.Errorf("no JSON object found in response")
	}

	var doc actionDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return AgentAction{}, fmt.Errorf("decode action JSON: %w", err)
	}

	switch ActionKind(doc.Type) {
	case ActionKindTool:
		if doc.ToolName == "" {
			return AgentAction{}, fmt.Errorf("tool action is missing tool_name")
		}
		return AgentAction{Kind: ActionKindTool, ToolName: doc.ToolName, ToolInput: doc.ToolInput, Reasoning: doc.Reasoning}, nil

	case ActionKindMessage:
		if doc.Content == "" {
			return AgentAction{}, fmt.Errorf("message action is missing content")
		}
		return AgentAction{Kind: ActionKindMessage, Content: doc.Content}, nil

	case ActionKindPhaseComplete:
		return AgentAction{Kind: ActionKindPhaseComplete}, nil

	case ActionKindTaskComplete:
		return AgentAction{Kind: ActionKindTaskComplete, Content: doc.Content}, nil

	case ActionKindRequestInput:
		if doc.Question == "" {
			return AgentAction{}, fmt.Errorf("request_input action is missing question")
		}
		return AgentAction{Kind: ActionKindRequestInput, Question: doc.Question}, nil

	default:
		return AgentAction{}, fmt.Errorf("unrecognized action type %q", doc.Type)
	}
}
