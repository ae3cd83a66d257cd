package openai

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/gigamesh/logging"
	"github.com/hupe1980/gigamesh/model"
	"github.com/hupe1980/gigamesh/model/stream"
)

// ErrStreamError is wrapped by errors signalled inside an event stream.
var ErrStreamError = errors.New("openai stream error")

// Finish reasons that terminate a delta stream.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)

// Normalizer is the multi-call stream.Normalizer: every tool_calls element
// keeps its own index and fragments are merged per index.
type Normalizer struct {
	logger logging.Logger
}

var _ stream.Normalizer = (*Normalizer)(nil)

// NewNormalizer creates a multi-call normalizer.
func NewNormalizer(logger logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Normalizer{logger: logger}
}

// Convention implements stream.Normalizer.
func (n *Normalizer) Convention() model.CallConvention { return model.MultiCall }

// NormalizeDelta implements stream.Normalizer by decoding the chunk into the
// SDK's chunk type.
func (n *Normalizer) NormalizeDelta(raw string) (model.Delta, error) {
	var probe struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return model.Delta{}, &stream.MalformedChunkError{Chunk: raw, Err: err}
	}
	if probe.Error != nil {
		return model.Delta{}, fmt.Errorf("%w: %s", ErrStreamError, probe.Error.Message)
	}

	var ck openai.ChatCompletionChunk
	if err := json.Unmarshal([]byte(raw), &ck); err != nil {
		return model.Delta{}, &stream.MalformedChunkError{Chunk: raw, Err: err}
	}
	return n.NormalizeChunk(ck), nil
}

// NormalizeChunk converts an SDK chunk into a canonical delta.
func (n *Normalizer) NormalizeChunk(ck openai.ChatCompletionChunk) model.Delta {
	var d model.Delta
	if ck.Usage.TotalTokens > 0 {
		d.Usage = &model.TokenUsage{
			PromptTokens:     int(ck.Usage.PromptTokens),
			CompletionTokens: int(ck.Usage.CompletionTokens),
			TotalTokens:      int(ck.Usage.TotalTokens),
		}
	}
	if len(ck.Choices) == 0 {
		return d
	}

	ch := ck.Choices[0]
	d.Content = ch.Delta.Content
	d.FinishReason = ch.FinishReason
	d.IsEnd = ch.FinishReason == FinishStop || ch.FinishReason == FinishToolCalls

	for _, tc := range ch.Delta.ToolCalls {
		d.ToolCalls = append(d.ToolCalls, model.ToolCallFragment{
			ID:             tc.ID,
			Index:          int(tc.Index),
			Name:           tc.Function.Name,
			ArgumentsChunk: tc.Function.Arguments,
		})
	}
	return d
}

// ParseTool implements stream.Normalizer.
func (n *Normalizer) ParseTool(d model.Delta) (stream.ToolHead, bool) {
	return stream.FirstToolHead(d)
}

// ParseToolArgs implements stream.Normalizer.
func (n *Normalizer) ParseToolArgs(d model.Delta) (stream.ToolArgs, bool) {
	args, ok, err := stream.FirstToolArgs(d)
	if err != nil {
		n.logger.Warn("ignoring tool call arguments", "error", err)
		return stream.ToolArgs{}, false
	}
	return args, ok
}
