package model

import (
	"context"
	"fmt"
	"sync"
)

// MockModel is a lightweight in‑memory Model useful for tests & examples.
// Replies are keyed by the flattened text of the last message in a request.
type MockModel struct {
	info    Info
	mu      sync.Mutex
	replies map[string]Message
	calls   []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      "mock",
			SupportsTools: true,
			Convention:    SingleCall,
		},
		replies: make(map[string]Message),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.AddReply(prompt, AssistantMessage(response))
}

// AddReply registers a complete assistant message (including tool calls and
// continuation token) returned for an input prompt.
func (m *MockModel) AddReply(prompt string, reply Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reply.Role = RoleAssistant
	m.replies[prompt] = reply
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		input := req.Messages[len(req.Messages)-1].Text()

		m.mu.Lock()
		reply, ok := m.replies[input]
		m.mu.Unlock()
		if !ok {
			reply = AssistantMessage(fmt.Sprintf("Mock response to: %s", input))
		}

		finish := "stop"
		if len(reply.ToolCalls) > 0 {
			finish = "function_call"
		}

		if req.Stream {
			for _, r := range Flatten(reply.Content) {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Delta: Delta{Content: string(r)}}:
				}
			}
		}
		respCh <- Response{
			Partial:      false,
			Message:      reply,
			FinishReason: finish,
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
