package gigachat

import (
	"encoding/json"

	"github.com/hupe1980/gigamesh/logging"
	"github.com/hupe1980/gigamesh/model"
)

// RoleFunction is the provider role carrying tool results.
const RoleFunction = "function"

// FunctionCall is the single active call of an assistant turn.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is the provider-native message shape. Content is always a string.
type Message struct {
	Role             string        `json:"role"`
	Content          string        `json:"content"`
	Name             string        `json:"name,omitempty"`
	FunctionCall     *FunctionCall `json:"function_call,omitempty"`
	FunctionsStateID string        `json:"functions_state_id,omitempty"`
	Attachments      []string      `json:"attachments,omitempty"`
}

// Reshape converts canonical history into provider messages, one per input
// message and in the same order. Assistant turns with several tool calls keep
// only the first; the loss is logged.
func Reshape(history []model.Message, logger logging.Logger) []Message {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	out := make([]Message, 0, len(history))
	// call id -> function name, for tool results that only carry the id
	names := map[string]string{}

	for _, msg := range history {
		switch {
		case msg.Role == model.RoleTool:
			name := msg.Name
			if name == "" {
				name = names[msg.ToolCallID]
			}
			if name == "" {
				logger.Warn("tool result has no function name and an unknown call id",
					"tool_call_id", msg.ToolCallID)
			}
			out = append(out, Message{
				Role:    RoleFunction,
				Content: model.Flatten(msg.Content),
				Name:    name,
			})

		case msg.Role == model.RoleAssistant && len(msg.ToolCalls) > 0:
			for _, tc := range msg.ToolCalls {
				names[tc.ID] = tc.Function.Name
			}
			first := msg.ToolCalls[0]
			if dropped := len(msg.ToolCalls) - 1; dropped > 0 {
				logger.Warn("provider accepts a single function call per turn, dropping extra calls",
					"kept", first.Function.Name, "dropped_calls", dropped)
			}
			out = append(out, Message{
				Role:    model.RoleAssistant,
				Content: model.Flatten(msg.Content),
				FunctionCall: &FunctionCall{
					Name:      first.Function.Name,
					Arguments: parseArguments(first.Function.Arguments),
				},
				FunctionsStateID: msg.ContinuationToken,
			})

		default:
			out = append(out, Message{
				Role:             msg.Role,
				Content:          model.Flatten(msg.Content),
				Name:             msg.Name,
				FunctionsStateID: msg.ContinuationToken,
			})
		}
	}
	return out
}

// parseArguments decodes JSON argument text into an object, yielding an empty
// object for empty, invalid or non-object input.
func parseArguments(text string) map[string]any {
	args := map[string]any{}
	if text == "" {
		return args
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(text), &v); err != nil || v == nil {
		return args
	}
	return v
}
