package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gigamesh/internal/testutil"
	"github.com/hupe1980/gigamesh/model"
	"github.com/hupe1980/gigamesh/model/stream"
)

func TestNormalizer_MultiCallFragments(t *testing.T) {
	n := NewNormalizer(nil)
	assert.Equal(t, model.MultiCall, n.Convention())

	chunks := []string{
		testutil.NewChunk().ToolCall(0, "call_a", "lookup", `{"q":`).JSON(),
		testutil.NewChunk().ToolCall(1, "call_b", "weather", `{"city":"Moscow"}`).JSON(),
		testutil.NewChunk().ToolCall(0, "", "", `"x"}`).JSON(),
		testutil.NewChunk().Finish("tool_calls").JSON(),
	}

	acc := stream.NewAccumulator(n, nil)
	for i, c := range chunks {
		d, err := n.NormalizeDelta(c)
		require.NoError(t, err)
		assert.Equal(t, i == len(chunks)-1, d.IsEnd)
		acc.Add(d)
	}

	calls := acc.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_a", calls[0].ID)
	assert.Equal(t, `{"q":"x"}`, calls[0].Function.Arguments)
	assert.Equal(t, "weather", calls[1].Function.Name)
	assert.Equal(t, "tool_calls", acc.FinishReason())
}

func TestNormalizer_ZeroChoicesAndErrors(t *testing.T) {
	n := NewNormalizer(nil)

	d, err := n.NormalizeDelta(testutil.NewChunk().NoChoices().JSON())
	require.NoError(t, err)
	assert.False(t, d.IsEnd)
	assert.Empty(t, d.ToolCalls)

	_, err = n.NormalizeDelta(testutil.NewChunk().Error("overloaded").JSON())
	assert.ErrorIs(t, err, ErrStreamError)

	_, err = n.NormalizeDelta("{broken")
	var mErr *stream.MalformedChunkError
	assert.ErrorAs(t, err, &mErr)
}

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewModel(func(o *Options) {
		o.Model = "gpt-test"
		o.ClientOptions = []option.RequestOption{
			option.WithBaseURL(srv.URL + "/v1/"),
			option.WithAPIKey("test-key"),
			option.WithHTTPClient(srv.Client()),
			option.WithMaxRetries(0),
		}
	})
}

func TestModel_Streaming(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "gpt-test", body["model"])
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, testutil.SSE(
			testutil.NewChunk().Content("Hel").JSON(),
			testutil.NewChunk().Content("lo").JSON(),
			testutil.NewChunk().ToolCall(0, "call_1", "lookup", `{"q":"x"}`).JSON(),
			testutil.NewChunk().Finish("tool_calls").JSON(),
		))
	})

	respCh, errCh := m.Generate(context.Background(), model.Request{
		Messages: []model.Message{model.UserMessage("hi")},
		Tools:    []model.ToolDefinition{model.NewFunctionTool("lookup", "find things", map[string]any{"type": "object"})},
		Stream:   true,
	})
	var responses []model.Response
	for r := range respCh {
		responses = append(responses, r)
	}
	require.NoError(t, <-errCh)
	require.Len(t, responses, 5)

	final := responses[4]
	assert.False(t, final.Partial)
	assert.Equal(t, "Hello", final.Message.Text())
	require.Len(t, final.Message.ToolCalls, 1)
	assert.Equal(t, "call_1", final.Message.ToolCalls[0].ID)
	assert.Equal(t, `{"q":"x"}`, final.Message.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool_calls", final.FinishReason)
}

func TestModel_NonStreaming(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-test",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "pong"}
			}],
			"usage": {"prompt_tokens": 2, "completion_tokens": 1, "total_tokens": 3}
		}`)
	})

	respCh, errCh := m.Generate(context.Background(), model.Request{Messages: []model.Message{model.UserMessage("ping")}})
	var responses []model.Response
	for r := range respCh {
		responses = append(responses, r)
	}
	require.NoError(t, <-errCh)
	require.Len(t, responses, 1)
	assert.Equal(t, "chatcmpl-1", responses[0].ID)
	assert.Equal(t, "pong", responses[0].Message.Text())
	require.NotNil(t, responses[0].Usage)
	assert.Equal(t, 3, responses[0].Usage.TotalTokens)
}

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages([]model.Message{
		model.SystemMessage("sys"),
		model.UserMessage("hi"),
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "c1", Function: model.ToolCallFunction{Name: "f", Arguments: "{}"}}}},
		model.ToolMessage("f", "c1", model.Text("result")),
	})
	require.Len(t, msgs, 4)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "c1", msgs[2].OfAssistant.ToolCalls[0].ID)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
}

func TestModel_Info(t *testing.T) {
	m := NewModel(func(o *Options) { o.Model = "gpt-4o" })
	assert.Equal(t, model.Info{Name: "gpt-4o", Provider: "openai", SupportsTools: true, Convention: model.MultiCall}, m.Info())
}

func TestBuildMessages_AssistantTextWithToolCalls(t *testing.T) {
	msgs := buildMessages([]model.Message{
		{
			Role:      model.RoleAssistant,
			Content:   model.Text("let me check"),
			ToolCalls: []model.ToolCall{{ID: "c1", Function: model.ToolCallFunction{Name: "f", Arguments: "{}"}}},
		},
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "c2", Function: model.ToolCallFunction{Name: "g", Arguments: "{}"}}}},
	})
	require.Len(t, msgs, 2)

	raw, err := json.Marshal(msgs[0])
	require.NoError(t, err)
	var withText map[string]any
	require.NoError(t, json.Unmarshal(raw, &withText))
	assert.Equal(t, "let me check", withText["content"])
	assert.Len(t, withText["tool_calls"], 1)

	raw, err = json.Marshal(msgs[1])
	require.NoError(t, err)
	var callsOnly map[string]any
	require.NoError(t, json.Unmarshal(raw, &callsOnly))
	assert.NotContains(t, callsOnly, "content")
}
