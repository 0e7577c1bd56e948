package reactor

import (
	"encoding/json"
	"strings"
)

// Action classifies what the model decided to do in one iteration.
type Action string

const (
	// ActionToolUse requests a tool invocation.
	ActionToolUse Action = "tool_use"
	// ActionFinal carries the answer and ends the loop.
	ActionFinal Action = "final_response"
)

// Decision is the parsed form of one reasoning reply.
type Decision struct {
	Action    Action
	ToolName  string
	ToolArgs  map[string]any
	Response  string
	Reasoning string
}

// rawDecision mirrors the JSON the model is asked to produce. Providers
// are inconsistent about key names, so both known aliases are accepted
// for the tool name and the parameter bag.
type rawDecision struct {
	ActionType string         `json:"action_type"`
	ToolName   string         `json:"tool_name"`
	Tool       string         `json:"tool"`
	ToolParams map[string]any `json:"tool_params"`
	Parameters map[string]any `json:"parameters"`
	Response   string         `json:"response"`
	Reasoning  string         `json:"reasoning"`
}

// ParseDecision turns a raw model reply into a Decision. Parsing never
// fails: anything that is not a recognizable JSON decision is treated as
// a final response carrying the raw text.
func ParseDecision(content string) Decision {
	candidate := stripFences(strings.TrimSpace(content))

	var raw rawDecision
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return Decision{Action: ActionFinal, Response: content}
	}

	switch raw.ActionType {
	case string(ActionToolUse):
		name := raw.ToolName
		if name == "" {
			name = raw.Tool
		}
		args := raw.ToolParams
		if args == nil {
			args = raw.Parameters
		}
		return Decision{
			Action:    ActionToolUse,
			ToolName:  name,
			ToolArgs:  args,
			Reasoning: raw.Reasoning,
		}
	case string(ActionFinal):
		return Decision{
			Action:    ActionFinal,
			Response:  raw.Response,
			Reasoning: raw.Reasoning,
		}
	default:
		// Valid JSON but not a decision shape.
		return Decision{Action: ActionFinal, Response: content}
	}
}

// stripFences removes a surrounding markdown code fence, with or without
// a json language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	trimmed := strings.TrimPrefix(s, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimPrefix(trimmed, "\n")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
