package model

import (
	"context"
	"encoding/json"
)

// Conversation roles understood by the canonical model.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// CallConvention tells how a provider expresses function invocation on the wire.
type CallConvention int

const (
	// MultiCall providers send an array of concurrently proposed calls, each addressed by index.
	MultiCall CallConvention = iota
	// SingleCall providers allow at most one active call per assistant turn, addressed by name.
	SingleCall
)

// String returns the convention name.
func (c CallConvention) String() string {
	switch c {
	case MultiCall:
		return "multi_call"
	case SingleCall:
		return "single_call"
	default:
		return "unknown"
	}
}

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction describes the concrete function target of a tool call.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON text
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// NewFunctionTool is a shorthand for a "function" typed ToolDefinition.
func NewFunctionTool(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type:     "function",
		Function: FunctionDefinition{Name: name, Description: description, Parameters: parameters},
	}
}

// Tool choice modes.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
)

// ToolChoice selects how the model may use the offered tools. Either Mode is
// set to one of the ToolChoice* literals or Function names a specific function.
type ToolChoice struct {
	Mode     string
	Function string
}

// ToolChoiceFunction forces a call to the named function.
func ToolChoiceFunction(name string) *ToolChoice { return &ToolChoice{Function: name} }

// ToolChoiceMode builds a literal tool choice ("auto", "none", "required").
func ToolChoiceMode(mode string) *ToolChoice { return &ToolChoice{Mode: mode} }

// MarshalJSON renders the canonical (OpenAI compatible) wire form.
func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	if tc.Function != "" {
		return json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": tc.Function},
		})
	}
	return json.Marshal(tc.Mode)
}

// UnmarshalJSON accepts either a literal mode or a function selector object.
func (tc *ToolChoice) UnmarshalJSON(data []byte) error {
	var mode string
	if err := json.Unmarshal(data, &mode); err == nil {
		*tc = ToolChoice{Mode: mode}
		return nil
	}
	var obj struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*tc = ToolChoice{Function: obj.Function.Name}
	return nil
}

// Message is a provider-agnostic conversation entry. ContinuationToken holds
// an opaque provider-issued value that must be echoed back on the next request.
type Message struct {
	Role              string     `json:"role"`
	Content           Content    `json:"content,omitempty"`
	Reasoning         string     `json:"reasoning,omitempty"`
	Name              string     `json:"name,omitempty"`
	ToolCallID        string     `json:"tool_call_id,omitempty"`
	ToolCalls         []ToolCall `json:"tool_calls,omitempty"`
	ContinuationToken string     `json:"functions_state_id,omitempty"`
}

// Text returns the flattened textual content of the message.
func (m Message) Text() string { return Flatten(m.Content) }

// UnmarshalJSON classifies the untyped "content" field into the Content union.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var raw struct {
		alias
		Content any `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message(raw.alias)
	if raw.Content != nil {
		m.Content = ContentOf(raw.Content)
	}
	return nil
}

// SystemMessage builds a system message from plain text.
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Content: Text(text)} }

// UserMessage builds a user message from plain text.
func UserMessage(text string) Message { return Message{Role: RoleUser, Content: Text(text)} }

// AssistantMessage builds an assistant message from plain text.
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Content: Text(text)} }

// ToolMessage builds a tool result message answering the call identified by callID.
func ToolMessage(name, callID string, content Content) Message {
	return Message{Role: RoleTool, Name: name, ToolCallID: callID, Content: content}
}

// Request captures the normalized model input.
type Request struct {
	Model             string           `json:"model,omitempty"`
	Messages          []Message        `json:"messages"`
	Tools             []ToolDefinition `json:"tools,omitempty"`
	ToolChoice        *ToolChoice      `json:"tool_choice,omitempty"`
	Temperature       *float64         `json:"temperature,omitempty"`
	TopP              *float64         `json:"top_p,omitempty"`
	MaxTokens         *int             `json:"max_tokens,omitempty"`
	RepetitionPenalty *float64         `json:"repetition_penalty,omitempty"`
	ProfanityCheck    *bool            `json:"profanity_check,omitempty"`
	Stream            bool             `json:"stream,omitempty"`
	ParallelToolCalls *bool            `json:"parallel_tool_calls,omitempty"`
	ToolConfig        map[string]any   `json:"tool_config,omitempty"`
	// Attachments are provider file ids bound to the latest user turn.
	Attachments []string `json:"attachments,omitempty"`
	// ConversationID identifies the active conversation for provider-side caching.
	ConversationID string `json:"-"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ToolCallFragment is one streamed piece of a tool call. Index is the stable
// slot fragments of the same logical call are merged into.
type ToolCallFragment struct {
	ID             string `json:"id,omitempty"`
	Index          int    `json:"index"`
	Name           string `json:"name,omitempty"`
	ArgumentsChunk string `json:"arguments"`
}

// Delta is the normalized incremental fragment produced for every parsed chunk.
type Delta struct {
	Content           string             `json:"content"`
	Reasoning         string             `json:"reasoning"`
	IsEnd             bool               `json:"is_end"`
	ToolCalls         []ToolCallFragment `json:"tool_calls,omitempty"`
	ContinuationToken string             `json:"functions_state_id,omitempty"`
	FinishReason      string             `json:"finish_reason,omitempty"`
	Usage             *TokenUsage        `json:"usage,omitempty"`
}

// Response is a (partial or final) event emitted by a streaming model. Partial
// responses carry the Delta; the final one carries the completed Message.
type Response struct {
	ID           string      `json:"id"`
	Partial      bool        `json:"partial"`
	Delta        Delta       `json:"delta"`
	Message      Message     `json:"message"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "function_call", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string         `json:"name"`
	Provider      string         `json:"provider"` // "gigachat", "openai", "mock"
	SupportsTools bool           `json:"supports_tools"`
	Convention    CallConvention `json:"convention"`
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}
