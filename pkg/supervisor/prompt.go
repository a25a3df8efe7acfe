package supervisor

import (
	"fmt"
	"strings"

	"github.com/conductor-run/conductor/pkg/model"
)

const decisionSystemPromptTemplate = `You are the execution stage of an autonomous agent run orchestrator,
currently working phase %d of %d: "%s"
%s

Available tools:
%s

At each step, respond with ONLY a single JSON object describing your next
action, no markdown fences, no prose before or after it. The object must
have a "type" field set to exactly one of:

  {"type": "tool", "tool_name": "<name>", "tool_input": {...}, "reasoning": "<why>"}
    Invoke one tool from the available list.

  {"type": "message", "content": "<text>"}
    Share intermediate reasoning or progress without taking an action.

  {"type": "phase_complete"}
    Declare the current phase finished and move to the next one.

  {"type": "task_complete", "content": "<final result for the user>"}
    Declare the entire run finished. Only valid once every phase's work is
    done — use this from the delivery phase.

  {"type": "request_input", "question": "<question for the user>"}
    Pause and ask the user a clarifying question before continuing.`

const decisionRepairPromptTemplate = `Your previous response could not be used: %s

Respond again with ONLY a single JSON object matching one of the five
action shapes already described. Do not include any explanation or
markdown fences — the entire response must be valid JSON.`

func buildDecisionSystemPrompt(phase *model.Phase, totalPhases int, tools []model.ToolDefinition) string {
	delivery := ""
	if phase.ID == totalPhases {
		delivery = "\nThis is the final phase: it is responsible for delivering the result."
	}
	return fmt.Sprintf(decisionSystemPromptTemplate,
		phase.ID, totalPhases, phase.Title, delivery, formatToolList(tools))
}

func formatToolList(tools []model.ToolDefinition) string {
	if len(tools) == 0 {
		return "(none available for this phase)"
	}
	var b strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildDecisionRepairPrompt(reason string) string {
	return fmt.Sprintf(decisionRepairPromptTemplate, reason)
}

func buildGoalUserPrompt(goal, phaseDescription string) string {
	return fmt.Sprintf("Overall goal:\n%s\n\nThis phase:\n%s\n\nBegin.", goal, phaseDescription)
}

func formatToolObservation(toolName string, result *model.ToolResult) string {
	if result.Status == model.ToolResultStatusOK {
		return fmt.Sprintf("Tool %q succeeded:\n%v", toolName, result.Output)
	}
	msg := "unknown error"
	if result.Error != nil {
		msg = result.Error.Message
	}
	return fmt.Sprintf("Tool %q failed (%s): %s", toolName, result.Status, msg)
}

func formatUnknownToolObservation(toolName string, known []string) string {
	return fmt.Sprintf("There is no tool named %q. Available tools: %s", toolName, strings.Join(known, ", "))
}

func formatToolNotAllowedObservation(toolName string) string {
	return fmt.Sprintf("Tool %q is not enabled for this run.", toolName)
}
