package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/gigamesh/logging"
	"github.com/hupe1980/gigamesh/model"
)

// ErrNoResponse is returned when a model closes its stream without a final
// response.
var ErrNoResponse = errors.New("model returned no final response")

// Chat runs conversation turns against a model and records them in a store.
type Chat struct {
	Store Store
	Model model.Model
	// Template supplies tools and sampling parameters for every turn.
	// Its Messages and ConversationID are ignored.
	Template model.Request
	// OnDelta, when set, receives streamed deltas and switches the turn to
	// streaming mode.
	OnDelta func(model.Delta)
	Logger  logging.Logger
}

// Send appends msgs to the conversation, generates one reply from the whole
// history and appends the reply, continuation token included. On failure
// only msgs have been recorded.
func (c *Chat) Send(ctx context.Context, conversationID string, msgs ...model.Message) (model.Message, error) {
	logger := logging.With(c.Logger, "conversation_id", conversationID)

	if err := c.Store.Append(conversationID, msgs...); err != nil {
		return model.Message{}, fmt.Errorf("append input: %w", err)
	}
	conv, err := c.Store.Get(conversationID)
	if err != nil {
		return model.Message{}, fmt.Errorf("load conversation: %w", err)
	}

	req := c.Template
	req.Messages = conv.Messages
	req.ConversationID = conversationID
	req.Stream = c.OnDelta != nil

	respCh, errCh := c.Model.Generate(ctx, req)
	var final *model.Response
	for resp := range respCh {
		if resp.Partial {
			if c.OnDelta != nil {
				c.OnDelta(resp.Delta)
			}
			continue
		}
		final = &resp
	}
	if err := <-errCh; err != nil {
		logger.Error("turn failed", "error", err)
		return model.Message{}, err
	}
	if final == nil {
		return model.Message{}, ErrNoResponse
	}

	reply := final.Message
	if err := c.Store.Append(conversationID, reply); err != nil {
		return model.Message{}, fmt.Errorf("append reply: %w", err)
	}
	logger.Debug("turn recorded",
		"messages", len(conv.Messages)+1,
		"tool_calls", len(reply.ToolCalls),
		"continuation_token", reply.ContinuationToken != "")
	return reply, nil
}
