package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(respCh <-chan Response, errCh <-chan error) ([]Response, error) {
	var out []Response
	for r := range respCh {
		out = append(out, r)
	}
	return out, <-errCh
}

func TestMockModel_Streaming(t *testing.T) {
	m := NewMockModel("mock-1")
	m.AddResponse("hello", "hey")

	resps, err := collect(m.Generate(context.Background(), Request{
		Messages: []Message{UserMessage("hello")},
		Stream:   true,
	}))
	require.NoError(t, err)
	require.Len(t, resps, 4)
	assert.True(t, resps[0].Partial)
	assert.Equal(t, "h", resps[0].Delta.Content)

	final := resps[3]
	assert.False(t, final.Partial)
	assert.Equal(t, "hey", final.Message.Text())
	assert.Equal(t, "stop", final.FinishReason)
	assert.Len(t, m.Requests(), 1)
}

func TestMockModel_ToolReply(t *testing.T) {
	m := NewMockModel("mock-1")
	m.AddReply("weather?", Message{
		ToolCalls:         []ToolCall{{ID: "c1", Type: "function", Function: ToolCallFunction{Name: "weather", Arguments: `{}`}}},
		ContinuationToken: "tok",
	})

	resps, err := collect(m.Generate(context.Background(), Request{Messages: []Message{UserMessage("weather?")}}))
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.Equal(t, "function_call", resps[0].FinishReason)
	assert.Equal(t, RoleAssistant, resps[0].Message.Role)
	assert.Equal(t, "tok", resps[0].Message.ContinuationToken)
}

func TestMockModel_Default(t *testing.T) {
	m := NewMockModel("mock-1")
	resps, err := collect(m.Generate(context.Background(), Request{Messages: []Message{UserMessage("x")}}))
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.Equal(t, "Mock response to: x", resps[0].Message.Text())

	_, err = collect(m.Generate(context.Background(), Request{}))
	assert.Error(t, err)
	assert.Equal(t, "mock", m.Info().Provider)
}
