package gigachat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/hupe1980/gigamesh/logging"
	"github.com/hupe1980/gigamesh/model"
	"github.com/hupe1980/gigamesh/model/stream"
)

// maxErrorBody bounds how much of a failed completion response is read.
const maxErrorBody = 64 << 10

// Model implements model.Model on top of the GigaChat chat completion API.
type Model struct {
	opts       Options
	session    *Session
	normalizer *Normalizer
	logger     logging.Logger
}

var _ model.Model = (*Model)(nil)

// New creates a GigaChat model. It fails with ErrMissingCredentials when no
// credentials are configured.
func New(optFns ...func(o *Options)) (*Model, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.normalize()

	session, err := NewSession(opts)
	if err != nil {
		return nil, err
	}
	return NewModelFromSession(session, func(o *Options) { *o = opts }), nil
}

// NewModelFromSession creates a model sharing an existing credential session.
func NewModelFromSession(session *Session, optFns ...func(o *Options)) *Model {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.normalize()
	logger := logging.With(opts.Logger, "component", "gigachat")
	return &Model{
		opts:       opts,
		session:    session,
		normalizer: NewNormalizer(logger),
		logger:     logger,
	}
}

// Session returns the credential session used by the model.
func (m *Model) Session() *Session { return m.session }

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gigachat",
		SupportsTools: true,
		Convention:    model.SingleCall,
	}
}

// Generate implements model.Model. Streaming requests emit one partial
// response per chunk followed by the final response; non-streaming requests
// emit the final response only.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		start := time.Now()
		final, err := m.generate(ctx, m.withDefaults(req), out)
		tokens := 0
		if final != nil && final.Usage != nil {
			tokens = final.Usage.TotalTokens
		}
		logging.LogCompletion(m.logger, m.payloadModel(req), tokens, time.Since(start), err)
		if err != nil {
			errCh <- err
			return
		}
		out <- *final
	}()
	return out, errCh
}

func (m *Model) payloadModel(req model.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return m.opts.Model
}

func (m *Model) withDefaults(req model.Request) model.Request {
	req.Model = m.payloadModel(req)
	if req.Temperature == nil {
		req.Temperature = m.opts.Temperature
	}
	if req.MaxTokens == nil {
		req.MaxTokens = m.opts.MaxTokens
	}
	return req
}

func (m *Model) generate(ctx context.Context, req model.Request, out chan<- model.Response) (*model.Response, error) {
	token, err := m.session.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := BuildPayload(req, m.logger)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode gigachat payload: %w", err)
	}
	m.logger.Debug("sending completion request", "payload", string(body))

	resp, err := m.post(ctx, token, req.ConversationID, req.Stream, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	id := uuid.NewString()
	if req.Stream {
		return m.readStream(ctx, id, resp.Body, out)
	}
	return m.readCompletion(id, resp.Body)
}

func (m *Model) readStream(ctx context.Context, id string, body io.Reader, out chan<- model.Response) (*model.Response, error) {
	reader := stream.NewReader(m.normalizer, m.logger)
	res, err := reader.Read(ctx, body, func(d model.Delta) {
		if ctx.Err() != nil {
			return
		}
		select {
		case out <- model.Response{ID: id, Partial: true, Delta: d, FinishReason: d.FinishReason, Usage: d.Usage}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("gigachat stream: %w", err)
	}
	return &model.Response{
		ID:           id,
		Message:      res.Message,
		FinishReason: res.FinishReason,
		Usage:        res.Usage,
	}, nil
}

func (m *Model) readCompletion(id string, body io.Reader) (*model.Response, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read gigachat response: %w", err)
	}
	d, err := m.normalizer.NormalizeDelta(string(raw))
	if err != nil {
		return nil, fmt.Errorf("gigachat response: %w", err)
	}
	acc := stream.NewAccumulator(m.normalizer, m.logger)
	acc.Add(d)
	return &model.Response{
		ID:           id,
		Message:      acc.Message(),
		FinishReason: acc.FinishReason(),
		Usage:        acc.Usage(),
	}, nil
}

// post sends the completion request, retrying 429 and 5xx answers when
// retries are configured. The returned response has a 2xx status.
func (m *Model) post(ctx context.Context, token, conversationID string, streaming bool, body []byte) (*http.Response, error) {
	endpoint := strings.TrimRight(m.opts.APIBase, "/") + "/chat/completions"

	var resp *http.Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("RqUID", m.opts.Nonce())
		req.Header.Set("Content-Type", "application/json")
		if streaming {
			req.Header.Set("Accept", "text/event-stream")
		} else {
			req.Header.Set("Accept", "application/json")
		}
		if conversationID != "" {
			req.Header.Set("X-Session-ID", conversationID)
		}

		r, err := m.opts.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("gigachat request: %w", err)
		}
		if r.StatusCode >= 200 && r.StatusCode < 300 {
			resp = r
			return nil
		}

		raw, _ := io.ReadAll(io.LimitReader(r.Body, maxErrorBody))
		r.Body.Close()
		pe := providerErrorFromBody(r.StatusCode, raw)
		if retryable(r.StatusCode) {
			return pe
		}
		return backoff.Permanent(pe)
	}

	notify := func(err error, wait time.Duration) {
		m.logger.Warn("retrying completion request", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, m.backOff(ctx), notify); err != nil {
		return nil, err
	}
	return resp, nil
}

func (m *Model) backOff(ctx context.Context) backoff.BackOff {
	cfg := m.opts.Retry
	eb := backoff.NewExponentialBackOff()
	if cfg.InitialDelay > 0 {
		eb.InitialInterval = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		eb.MaxInterval = cfg.MaxDelay
	}
	if cfg.Multiplier > 0 {
		eb.Multiplier = cfg.Multiplier
	}
	eb.MaxElapsedTime = 0
	retries := max(cfg.MaxRetries, 0)
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
