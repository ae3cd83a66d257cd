package gigachat

import (
	"bytes"
	"encoding/json"

	"github.com/hupe1980/gigamesh/logging"
	"github.com/hupe1980/gigamesh/model"
	"github.com/hupe1980/gigamesh/model/stream"
)

// Finish reasons that terminate a delta stream.
const (
	FinishStop         = "stop"
	FinishFunctionCall = "function_call"
)

type chunkFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type chunkToolCall struct {
	ID       string `json:"id"`
	Index    *int   `json:"index"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type chunkDelta struct {
	Content          string             `json:"content"`
	ReasoningContent string             `json:"reasoning_content"`
	FunctionCall     *chunkFunctionCall `json:"function_call"`
	ToolCalls        []chunkToolCall    `json:"tool_calls"`
	FunctionsStateID string             `json:"functions_state_id"`
}

type chunkChoice struct {
	Index        int         `json:"index"`
	Delta        *chunkDelta `json:"delta"`
	Message      *chunkDelta `json:"message"`
	FinishReason *string     `json:"finish_reason"`
}

type chunk struct {
	ID      string            `json:"id"`
	Choices []chunkChoice     `json:"choices"`
	Usage   *model.TokenUsage `json:"usage"`
	Error   json.RawMessage   `json:"error"`
}

// ParseChunk parses one provider chunk into a canonical delta. An error
// object in the chunk yields a *ProviderError; text that is not JSON yields
// a *stream.MalformedChunkError. A chunk without choices is an empty,
// non-terminal delta.
func ParseChunk(raw []byte) (model.Delta, error) {
	var c chunk
	if err := json.Unmarshal(raw, &c); err != nil {
		return model.Delta{}, &stream.MalformedChunkError{Chunk: string(raw), Err: err}
	}
	if pe := decodeErrorObject(c.Error); pe != nil {
		return model.Delta{}, pe
	}

	d := model.Delta{Usage: c.Usage}
	if len(c.Choices) == 0 {
		return d, nil
	}

	choice := c.Choices[0]
	if choice.FinishReason != nil {
		d.FinishReason = *choice.FinishReason
		d.IsEnd = d.FinishReason == FinishStop || d.FinishReason == FinishFunctionCall
	}

	src := choice.Delta
	if src == nil {
		src = choice.Message
	}
	if src == nil {
		return d, nil
	}

	d.Content = src.Content
	d.Reasoning = src.ReasoningContent
	d.ContinuationToken = src.FunctionsStateID

	switch {
	case len(src.ToolCalls) > 0:
		d.ToolCalls = make([]model.ToolCallFragment, 0, len(src.ToolCalls))
		for i, tc := range src.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			d.ToolCalls = append(d.ToolCalls, model.ToolCallFragment{
				ID:             tc.ID,
				Index:          idx,
				Name:           tc.Function.Name,
				ArgumentsChunk: argumentsText(tc.Function.Arguments),
			})
		}
	case src.FunctionCall != nil:
		d.ToolCalls = []model.ToolCallFragment{{
			ID:             newCallID(),
			Index:          0,
			Name:           src.FunctionCall.Name,
			ArgumentsChunk: argumentsText(src.FunctionCall.Arguments),
		}}
	}
	return d, nil
}

// argumentsText coerces provider arguments to JSON text: strings pass through,
// structured values are serialized compactly, absent or null is empty.
func argumentsText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Normalizer is the single-call stream.Normalizer for GigaChat chunks.
type Normalizer struct {
	logger logging.Logger
}

var _ stream.Normalizer = (*Normalizer)(nil)

// NewNormalizer creates a Normalizer logging extraction warnings to logger.
func NewNormalizer(logger logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Normalizer{logger: logger}
}

// Convention implements stream.Normalizer.
func (n *Normalizer) Convention() model.CallConvention { return model.SingleCall }

// NormalizeDelta implements stream.Normalizer.
func (n *Normalizer) NormalizeDelta(raw string) (model.Delta, error) {
	return ParseChunk([]byte(raw))
}

// ParseTool implements stream.Normalizer.
func (n *Normalizer) ParseTool(d model.Delta) (stream.ToolHead, bool) {
	return stream.FirstToolHead(d)
}

// ParseToolArgs implements stream.Normalizer. Unusable shapes are logged and
// reported as absent.
func (n *Normalizer) ParseToolArgs(d model.Delta) (stream.ToolArgs, bool) {
	args, ok, err := stream.FirstToolArgs(d)
	if err != nil {
		n.logger.Warn("ignoring tool call arguments", "error", err)
		return stream.ToolArgs{}, false
	}
	return args, ok
}
