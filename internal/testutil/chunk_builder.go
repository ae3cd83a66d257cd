package testutil

import (
	"encoding/json"
	"strings"
)

// ChunkBuilder provides a fluent helper for constructing streamed completion
// chunks in tests. Example:
//
//	raw := NewChunk().FunctionCall("f", `{"a":1}`).StateID("tok").JSON()
//
// Chain only the parts you need; an empty builder yields one choice with an
// empty delta.
type ChunkBuilder struct {
	delta     map[string]any
	finish    any
	usage     map[string]any
	noChoices bool
	errValue  any
}

// NewChunk creates an empty chunk builder.
func NewChunk() *ChunkBuilder { return &ChunkBuilder{delta: map[string]any{}} }

// Content sets delta.content (chainable).
func (b *ChunkBuilder) Content(s string) *ChunkBuilder { b.delta["content"] = s; return b }

// Reasoning sets delta.reasoning_content (chainable).
func (b *ChunkBuilder) Reasoning(s string) *ChunkBuilder {
	b.delta["reasoning_content"] = s
	return b
}

// FunctionCall sets the single-call delta.function_call. args may be a JSON
// string, a structured value, or nil to omit the field (chainable).
func (b *ChunkBuilder) FunctionCall(name string, args any) *ChunkBuilder {
	fc := map[string]any{"name": name}
	if args != nil {
		fc["arguments"] = args
	}
	b.delta["function_call"] = fc
	return b
}

// ToolCall appends a multi-call delta.tool_calls element (chainable).
func (b *ChunkBuilder) ToolCall(index int, id, name, args string) *ChunkBuilder {
	fn := map[string]any{"arguments": args}
	if name != "" {
		fn["name"] = name
	}
	tc := map[string]any{"index": index, "function": fn}
	if id != "" {
		tc["id"] = id
		tc["type"] = "function"
	}
	calls, _ := b.delta["tool_calls"].([]any)
	b.delta["tool_calls"] = append(calls, tc)
	return b
}

// StateID sets delta.functions_state_id (chainable).
func (b *ChunkBuilder) StateID(id string) *ChunkBuilder {
	b.delta["functions_state_id"] = id
	return b
}

// Finish sets choices[0].finish_reason (chainable).
func (b *ChunkBuilder) Finish(reason string) *ChunkBuilder { b.finish = reason; return b }

// Usage attaches a usage block (chainable).
func (b *ChunkBuilder) Usage(prompt, completion int) *ChunkBuilder {
	b.usage = map[string]any{
		"prompt_tokens":     prompt,
		"completion_tokens": completion,
		"total_tokens":      prompt + completion,
	}
	return b
}

// NoChoices produces an empty choices array (chainable).
func (b *ChunkBuilder) NoChoices() *ChunkBuilder { b.noChoices = true; return b }

// Error turns the chunk into a provider error object (chainable). Pass a
// string for an {"error":{"message":...}} body or any other value verbatim.
func (b *ChunkBuilder) Error(v any) *ChunkBuilder {
	if msg, ok := v.(string); ok {
		v = map[string]any{"message": msg}
	}
	b.errValue = v
	return b
}

// Build returns the chunk as a generic map.
func (b *ChunkBuilder) Build() map[string]any {
	if b.errValue != nil {
		return map[string]any{"error": b.errValue}
	}
	out := map[string]any{"object": "chat.completion", "model": "GigaChat"}
	if b.noChoices {
		out["choices"] = []any{}
	} else {
		out["choices"] = []any{map[string]any{
			"index":         0,
			"delta":         b.delta,
			"finish_reason": b.finish,
		}}
	}
	if b.usage != nil {
		out["usage"] = b.usage
	}
	return out
}

// JSON returns the chunk encoded as JSON text.
func (b *ChunkBuilder) JSON() string {
	raw, err := json.Marshal(b.Build())
	if err != nil {
		panic(err)
	}
	return string(raw)
}

// SSE renders chunks as a server-sent event body terminated by [DONE].
func SSE(chunks ...string) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString("data: ")
		sb.WriteString(c)
		sb.WriteString("\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}
