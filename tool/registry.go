package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/gigamesh/logging"
	"github.com/hupe1980/gigamesh/model"
)

// Registry holds the tools offered to a model and executes its calls.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger logging.Logger
}

// NewRegistry creates a registry. Registering a duplicate name panics.
func NewRegistry(logger logging.Logger, tools ...Tool) *Registry {
	r := &Registry{tools: map[string]Tool{}, logger: logging.With(logger, "component", "tool")}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the tools as request definitions in registration order.
func (r *Registry) Definitions() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]model.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, model.NewFunctionTool(t.Name(), t.Description(), t.Parameters()))
	}
	return defs
}

// Execute runs one call and returns the tool message answering it. Failures
// are reported to the model inside the message rather than returned.
func (r *Registry) Execute(ctx context.Context, call model.ToolCall) model.Message {
	name := call.Function.Name
	start := time.Now()

	result, err := r.call(ctx, call)
	if err != nil {
		r.logger.Warn("tool call failed", "tool", name, "call_id", call.ID, "error", err)
		return model.ToolMessage(name, call.ID, model.Text(encodeResult(map[string]any{"error": err.Error()})))
	}
	r.logger.Info("tool call succeeded", "tool", name, "call_id", call.ID, "duration_ms", time.Since(start).Milliseconds())
	return model.ToolMessage(name, call.ID, model.Text(encodeResult(result)))
}

func (r *Registry) call(ctx context.Context, call model.ToolCall) (any, error) {
	t, ok := r.Get(call.Function.Name)
	if !ok {
		return nil, NewToolError(call.Function.Name, "unknown tool", CodeNotFound)
	}
	args := map[string]any{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return nil, &ToolError{Tool: t.Name(), Message: err.Error(), Code: CodeInvalidArguments}
		}
		if args == nil {
			args = map[string]any{}
		}
	}
	return t.Call(ctx, args)
}

// encodeResult renders a result as a JSON object. Function results must be
// objects, so other values are wrapped as {"result": v}.
func encodeResult(v any) string {
	if s, ok := v.(string); ok {
		var obj map[string]any
		if json.Unmarshal([]byte(s), &obj) == nil && obj != nil {
			return s
		}
	}
	raw, err := json.Marshal(v)
	if err == nil && len(raw) > 0 && raw[0] == '{' {
		return string(raw)
	}
	raw, err = json.Marshal(map[string]any{"result": v})
	if err != nil {
		return fmt.Sprintf(`{"result":%q}`, fmt.Sprint(v))
	}
	return string(raw)
}
