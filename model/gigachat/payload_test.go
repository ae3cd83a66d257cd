package gigachat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gigamesh/model"
)

func toMap(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestBuildPayload_TranslatesTools(t *testing.T) {
	parallel := true
	req := model.Request{
		Model:             "GigaChat",
		Messages:          []model.Message{model.UserMessage("hi")},
		Tools:             []model.ToolDefinition{model.NewFunctionTool("f", "", map[string]any{})},
		ToolChoice:        model.ToolChoiceMode(model.ToolChoiceAuto),
		ParallelToolCalls: &parallel,
		ToolConfig:        map[string]any{"mode": "any"},
	}

	m := toMap(t, BuildPayload(req, nil))

	assert.Equal(t, []any{map[string]any{"name": "f", "parameters": map[string]any{}}}, m["functions"])
	assert.Equal(t, "auto", m["function_call"])
	for _, key := range []string{"tools", "tool_choice", "parallel_tool_calls", "tool_config", "update_interval"} {
		assert.NotContains(t, m, key)
	}
}

func TestBuildPayload_ToolChoice(t *testing.T) {
	tests := []struct {
		name   string
		choice *model.ToolChoice
		want   any
	}{
		{name: "none", choice: model.ToolChoiceMode(model.ToolChoiceNone), want: "none"},
		{name: "function", choice: model.ToolChoiceFunction("lookup"), want: map[string]any{"name": "lookup"}},
		{name: "required", choice: model.ToolChoiceMode(model.ToolChoiceRequired), want: nil},
		{name: "unset", choice: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := toMap(t, BuildPayload(model.Request{ToolChoice: tt.choice}, nil))
			assert.Equal(t, tt.want, m["function_call"])
		})
	}
}

func TestBuildPayload_NilParametersBecomeObject(t *testing.T) {
	p := BuildPayload(model.Request{Tools: []model.ToolDefinition{model.NewFunctionTool("f", "does f", nil)}}, nil)
	require.Len(t, p.Functions, 1)
	assert.Equal(t, map[string]any{}, p.Functions[0].Parameters)
	assert.Equal(t, "does f", p.Functions[0].Description)
}

func TestBuildPayload_StreamingSetsUpdateInterval(t *testing.T) {
	m := toMap(t, BuildPayload(model.Request{Stream: true}, nil))
	assert.Equal(t, true, m["stream"])
	assert.EqualValues(t, 0, m["update_interval"])
}

func TestBuildPayload_KeepsSamplingParameters(t *testing.T) {
	temp, penalty := 0.3, 1.1
	maxTokens := 256
	check := false
	p := BuildPayload(model.Request{
		Temperature:       &temp,
		MaxTokens:         &maxTokens,
		RepetitionPenalty: &penalty,
		ProfanityCheck:    &check,
	}, nil)

	m := toMap(t, p)
	assert.EqualValues(t, 0.3, m["temperature"])
	assert.EqualValues(t, 256, m["max_tokens"])
	assert.EqualValues(t, 1.1, m["repetition_penalty"])
	assert.Equal(t, false, m["profanity_check"])
}

func TestBuildPayload_AttachmentsOnLastUserMessage(t *testing.T) {
	p := BuildPayload(model.Request{
		Messages: []model.Message{
			model.UserMessage("first"),
			model.AssistantMessage("ok"),
			model.UserMessage("describe the file"),
			model.AssistantMessage("thinking"),
		},
		Attachments: []string{"file-1"},
	}, nil)

	require.Len(t, p.Messages, 4)
	assert.Empty(t, p.Messages[0].Attachments)
	assert.Equal(t, []string{"file-1"}, p.Messages[2].Attachments)
}

func TestBuildPayload_MessagesAreStrings(t *testing.T) {
	p := BuildPayload(model.Request{Messages: []model.Message{{
		Role:    model.RoleUser,
		Content: model.Structured{Part: model.NestedPart{Content: model.Text("c")}},
	}}}, nil)
	require.Len(t, p.Messages, 1)
	assert.Equal(t, "c", p.Messages[0].Content)
}
