package gigachat

import (
	"github.com/hupe1980/gigamesh/logging"
	"github.com/hupe1980/gigamesh/model"
)

// Function is a callable function offered to the model.
type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// FunctionTarget forces a call to the named function.
type FunctionTarget struct {
	Name string `json:"name"`
}

// Payload is the provider-native chat completion request body. It has no
// tools, tool_choice, parallel_tool_calls or tool_config members.
type Payload struct {
	Model             string     `json:"model"`
	Messages          []Message  `json:"messages"`
	Functions         []Function `json:"functions,omitempty"`
	FunctionCall      any        `json:"function_call,omitempty"` // "auto", "none" or FunctionTarget
	Temperature       *float64   `json:"temperature,omitempty"`
	TopP              *float64   `json:"top_p,omitempty"`
	MaxTokens         *int       `json:"max_tokens,omitempty"`
	RepetitionPenalty *float64   `json:"repetition_penalty,omitempty"`
	ProfanityCheck    *bool      `json:"profanity_check,omitempty"`
	Stream            bool       `json:"stream,omitempty"`
	UpdateInterval    *int       `json:"update_interval,omitempty"`
}

// BuildPayload translates a canonical request into the provider body.
func BuildPayload(req model.Request, logger logging.Logger) Payload {
	p := Payload{
		Model:             req.Model,
		Messages:          Reshape(req.Messages, logger),
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		MaxTokens:         req.MaxTokens,
		RepetitionPenalty: req.RepetitionPenalty,
		ProfanityCheck:    req.ProfanityCheck,
		Stream:            req.Stream,
	}

	if len(req.Tools) > 0 {
		p.Functions = make([]Function, 0, len(req.Tools))
		for _, t := range req.Tools {
			params := t.Function.Parameters
			if params == nil {
				params = map[string]any{}
			}
			p.Functions = append(p.Functions, Function{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  params,
			})
		}
	}

	if tc := req.ToolChoice; tc != nil {
		switch {
		case tc.Function != "":
			p.FunctionCall = FunctionTarget{Name: tc.Function}
		case tc.Mode == model.ToolChoiceAuto || tc.Mode == model.ToolChoiceNone:
			p.FunctionCall = tc.Mode
		}
	}

	if p.Stream {
		interval := 0
		p.UpdateInterval = &interval
	}

	if len(req.Attachments) > 0 {
		attachToLastUser(p.Messages, req.Attachments)
	}
	return p
}

func attachToLastUser(msgs []Message, files []string) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			msgs[i].Attachments = append(msgs[i].Attachments, files...)
			return
		}
	}
}
