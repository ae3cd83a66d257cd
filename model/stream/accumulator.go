package stream

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/hupe1980/gigamesh/logging"
	"github.com/hupe1980/gigamesh/model"
)

// slot aggregates partial tool call deltas (id, name, arguments) for one
// call index.
type slot struct {
	id   string
	name string
	args strings.Builder
}

// Accumulator folds canonical deltas into a completed assistant message.
// It is not safe for concurrent use; deltas must be added in arrival order.
type Accumulator struct {
	n         Normalizer
	logger    logging.Logger
	content   strings.Builder
	reasoning strings.Builder
	slots     map[int]*slot
	token     string
	finish    string
	usage     *model.TokenUsage
	ended     bool
}

// NewAccumulator creates an Accumulator projecting deltas through n.
func NewAccumulator(n Normalizer, logger logging.Logger) *Accumulator {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Accumulator{n: n, logger: logger, slots: map[int]*slot{}}
}

func (a *Accumulator) slot(index int) *slot {
	s, ok := a.slots[index]
	if !ok {
		s = &slot{}
		a.slots[index] = s
	}
	return s
}

// Add folds one delta. Argument fragments for an index are appended in call order.
func (a *Accumulator) Add(d model.Delta) {
	a.content.WriteString(d.Content)
	a.reasoning.WriteString(d.Reasoning)
	if d.ContinuationToken != "" {
		a.token = d.ContinuationToken
	}
	if d.FinishReason != "" {
		a.finish = d.FinishReason
	}
	if d.Usage != nil {
		a.usage = d.Usage
	}

	if !a.ended {
		// The terminal chunk may still carry its own call; only calls after
		// it are unexpected.
		proj := d
		proj.IsEnd = false
		a.project(proj)
	}

	if d.IsEnd {
		a.ended = true
	}
}

// project feeds each fragment through the normalizer's projections on its
// own, so multi-call deltas carrying several calls fill several slots.
func (a *Accumulator) project(d model.Delta) {
	if len(d.ToolCalls) <= 1 {
		a.projectOne(d)
		return
	}
	for _, frag := range d.ToolCalls {
		one := d
		one.ToolCalls = []model.ToolCallFragment{frag}
		a.projectOne(one)
	}
}

func (a *Accumulator) projectOne(d model.Delta) {
	if head, ok := a.n.ParseTool(d); ok {
		s := a.slot(head.Index)
		if s.id == "" {
			s.id = head.ID
		}
		if s.name == "" {
			s.name = head.Name
		}
	}
	if args, ok := a.n.ParseToolArgs(d); ok {
		s := a.slot(args.Index)
		if completeObject(s.args.String()) && completeObject(args.Args) {
			// A complete call repeated by a later chunk replaces the
			// earlier copy; appending would yield two concatenated objects.
			s.args.Reset()
		}
		s.args.WriteString(args.Args)
	}
}

// completeObject reports whether text is a whole JSON object.
func completeObject(text string) bool {
	text = strings.TrimSpace(text)
	return strings.HasPrefix(text, "{") && json.Valid([]byte(text))
}

// Ended reports whether a terminal delta has been observed.
func (a *Accumulator) Ended() bool { return a.ended }

// ContinuationToken returns the last continuation token seen on the stream.
func (a *Accumulator) ContinuationToken() string { return a.token }

// FinishReason returns the last non-empty finish reason.
func (a *Accumulator) FinishReason() string { return a.finish }

// Usage returns the token usage reported by the provider, if any.
func (a *Accumulator) Usage() *model.TokenUsage { return a.usage }

// Pending returns the indexes whose argument text is not yet valid JSON.
func (a *Accumulator) Pending() []int {
	var out []int
	for _, idx := range a.indexes() {
		args := a.slots[idx].args.String()
		if args != "" && !json.Valid([]byte(args)) {
			out = append(out, idx)
		}
	}
	return out
}

func (a *Accumulator) indexes() []int {
	idx := make([]int, 0, len(a.slots))
	for i := range a.slots {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// ToolCalls returns the reassembled calls ordered by slot index. Empty
// argument text is reported as "{}".
func (a *Accumulator) ToolCalls() []model.ToolCall {
	if len(a.slots) == 0 {
		return nil
	}
	calls := make([]model.ToolCall, 0, len(a.slots))
	for _, idx := range a.indexes() {
		s := a.slots[idx]
		if s.name == "" {
			a.logger.Warn("dropping tool call without name", "index", idx, "id", s.id)
			continue
		}
		args := s.args.String()
		if args == "" {
			args = "{}"
		}
		calls = append(calls, model.ToolCall{
			ID:       s.id,
			Type:     "function",
			Function: model.ToolCallFunction{Name: s.name, Arguments: args},
		})
	}
	return calls
}

// Message returns the completed assistant message accumulated so far.
func (a *Accumulator) Message() model.Message {
	msg := model.Message{
		Role:              model.RoleAssistant,
		Reasoning:         a.reasoning.String(),
		ToolCalls:         a.ToolCalls(),
		ContinuationToken: a.token,
	}
	if a.content.Len() > 0 || len(msg.ToolCalls) == 0 {
		msg.Content = model.Text(a.content.String())
	}
	return msg
}
