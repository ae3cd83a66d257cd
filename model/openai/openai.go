// Package openai provides the multi-call counterpart of the gigachat
// adapter: an implementation of model.Model on the OpenAI Chat Completions
// API and a stream.Normalizer for OpenAI compatible chunks.
package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/gigamesh/logging"
	"github.com/hupe1980/gigamesh/model"
	"github.com/hupe1980/gigamesh/model/stream"
)

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// ClientOptions are passed to openai.NewClient by NewModel.
	ClientOptions []option.RequestOption
	Logger        logging.Logger
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client     *openai.Client
	opts       Options
	normalizer *Normalizer
	logger     logging.Logger
}

var _ model.Model = (*Model)(nil)

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	client := openai.NewClient(opts.ClientOptions...)
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	logger := logging.With(opts.Logger, "component", "openai")
	return &Model{client: client, opts: opts, normalizer: NewNormalizer(logger), logger: logger}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		start := time.Now()
		params := m.buildParams(req, buildMessages(req.Messages))
		var (
			final *model.Response
			err   error
		)
		if req.Stream {
			final, err = m.handleStreaming(ctx, params, out)
		} else {
			final, err = m.handleNonStreaming(ctx, params)
		}
		tokens := 0
		if final != nil && final.Usage != nil {
			tokens = final.Usage.TotalTokens
		}
		logging.LogCompletion(m.logger, string(params.Model), tokens, time.Since(start), err)
		if err != nil {
			errCh <- err
			return
		}
		out <- *final
	}()
	return out, errCh
}

// buildMessages converts canonical messages into OpenAI chat messages.
func buildMessages(msgs []model.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		text := msg.Text()
		switch msg.Role {
		case model.RoleSystem:
			messages = append(messages, openai.SystemMessage(text))
		case model.RoleTool:
			messages = append(messages, openai.ToolMessage(text, msg.ToolCallID))
		case model.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(text))
				continue
			}
			asst := &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: toolCallParams(msg.ToolCalls),
			}
			if text != "" {
				asst.Content.OfString = openai.String(text)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: asst})
		default:
			messages = append(messages, openai.UserMessage(text))
		}
	}
	return messages
}

func toolCallParams(calls []model.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	out := make([]openai.ChatCompletionMessageToolCallParam, 0, len(calls))
	for _, tc := range calls {
		out = append(out, openai.ChatCompletionMessageToolCallParam{
			ID:   tc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	name := m.opts.Model
	if req.Model != "" {
		name = req.Model
	}
	temperature := m.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := m.opts.MaxCompletionTokens
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               name,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if len(req.Tools) == 0 {
		return params
	}

	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}
	params.Tools = tools
	if req.ParallelToolCalls != nil {
		params.ParallelToolCalls = openai.Bool(*req.ParallelToolCalls)
	}
	if tc := req.ToolChoice; tc != nil {
		if tc.Function != "" {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
					Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: tc.Function},
				},
			}
		} else if tc.Mode != "" {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(tc.Mode)}
		}
	}
	return params
}

// handleStreaming forwards one partial response per chunk and returns the
// accumulated final response.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
) (*model.Response, error) {
	sse := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer sse.Close()

	id := uuid.NewString()
	acc := stream.NewAccumulator(m.normalizer, m.logger)
	for sse.Next() {
		ck := sse.Current()
		if ck.ID != "" {
			id = ck.ID
		}
		d := m.normalizer.NormalizeChunk(ck)
		acc.Add(d)
		if ctx.Err() != nil {
			break
		}
		select {
		case out <- model.Response{ID: id, Partial: true, Delta: d, FinishReason: d.FinishReason, Usage: d.Usage}:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := sse.Err(); err != nil {
		return nil, fmt.Errorf("openai streaming error: %w", err)
	}
	return &model.Response{
		ID:           id,
		Message:      acc.Message(),
		FinishReason: acc.FinishReason(),
		Usage:        acc.Usage(),
	}, nil
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *Model) handleNonStreaming(ctx context.Context, params openai.ChatCompletionNewParams) (*model.Response, error) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}
	ch0 := resp.Choices[0]

	msg := model.Message{Role: model.RoleAssistant}
	if ch0.Message.Content != "" || len(ch0.Message.ToolCalls) == 0 {
		msg.Content = model.Text(ch0.Message.Content)
	}
	for _, tc := range ch0.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: model.ToolCallFunction{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}

	out := &model.Response{ID: resp.ID, Message: msg, FinishReason: ch0.FinishReason}
	if resp.Usage.TotalTokens > 0 {
		out.Usage = &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
	}
	return out, nil
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
		Convention:    model.MultiCall,
	}
}
