// Package gigachat adapts the GigaChat chat completion API to model.Model.
//
// A Session performs the client-credentials exchange once and caches the
// bearer token in memory. Outbound requests are rewritten into the provider
// dialect (functions / function_call, string-only message content, a single
// function call per assistant turn) and streamed chunks are normalized into
// canonical deltas, synthesizing tool call ids the provider does not send.
//
//	m, err := gigachat.New(gigachat.FromEnv)
//	if err != nil {
//		return err
//	}
//	respCh, errCh := m.Generate(ctx, model.Request{
//		Messages: []model.Message{model.UserMessage("Привет!")},
//		Stream:   true,
//	})
package gigachat
