// Package stream holds the provider-independent half of streamed completions:
// line framing of the response body, the Normalizer strategy that turns one
// provider chunk into a model.Delta, and the Accumulator that reassembles
// fragmented tool-call arguments per slot.
package stream

import (
	"errors"
	"fmt"

	"github.com/hupe1980/gigamesh/model"
)

// ToolHead identifies a tool call announced by a delta.
type ToolHead struct {
	ID    string
	Name  string
	Index int
}

// ToolArgs is the argument text fragment a delta contributes to a call slot.
type ToolArgs struct {
	Index int
	Args  string
}

// Normalizer converts provider chunks into canonical deltas. Each provider
// picks the implementation matching its model.CallConvention.
type Normalizer interface {
	// Convention reports the tool calling protocol the normalizer speaks.
	Convention() model.CallConvention
	// NormalizeDelta parses one raw chunk.
	NormalizeDelta(chunk string) (model.Delta, error)
	// ParseTool reports a tool call announced by the delta, if any.
	ParseTool(d model.Delta) (ToolHead, bool)
	// ParseToolArgs reports the argument fragment carried by the delta, if any.
	ParseToolArgs(d model.Delta) (ToolArgs, bool)
}

// ErrArgumentExtraction marks the argument-extraction warning: a delta carried
// a tool-call shape that cannot be projected onto a slot. It is logged, never
// returned from a stream.
var ErrArgumentExtraction = errors.New("unexpected tool call shape in delta")

// MalformedChunkError is returned when a chunk is not valid structured data.
// The stream is treated as failed so content is never silently dropped.
type MalformedChunkError struct {
	Chunk string
	Err   error
}

// Error implements the error interface.
func (e *MalformedChunkError) Error() string {
	chunk := e.Chunk
	if len(chunk) > 120 {
		chunk = chunk[:120] + "..."
	}
	return fmt.Sprintf("malformed stream chunk %q: %v", chunk, e.Err)
}

// Unwrap returns the underlying decode error.
func (e *MalformedChunkError) Unwrap() error { return e.Err }

// FirstToolHead is the ParseTool projection shared by normalizers: the first
// fragment's id and name, absent once the stream has ended.
func FirstToolHead(d model.Delta) (ToolHead, bool) {
	if d.IsEnd || len(d.ToolCalls) == 0 {
		return ToolHead{}, false
	}
	tc := d.ToolCalls[0]
	if tc.ID == "" && tc.Name == "" {
		return ToolHead{}, false
	}
	return ToolHead{ID: tc.ID, Name: tc.Name, Index: max(tc.Index, 0)}, true
}

// FirstToolArgs is the ParseToolArgs projection shared by normalizers. It
// returns an error wrapping ErrArgumentExtraction for shapes that cannot
// be mapped to a slot; callers log it and treat it as "no fragment".
func FirstToolArgs(d model.Delta) (ToolArgs, bool, error) {
	if d.IsEnd || len(d.ToolCalls) == 0 {
		return ToolArgs{}, false, nil
	}
	tc := d.ToolCalls[0]
	if tc.Index < 0 {
		return ToolArgs{}, false, fmt.Errorf("%w: negative index %d", ErrArgumentExtraction, tc.Index)
	}
	return ToolArgs{Index: tc.Index, Args: tc.ArgumentsChunk}, true, nil
}
