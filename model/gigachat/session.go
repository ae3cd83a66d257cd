package gigachat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/gigamesh/logging"
	"golang.org/x/sync/singleflight"
)

// maxAuthBody bounds how much of an identity response is read.
const maxAuthBody = 1 << 20

// exchangeTimeout bounds a shared token exchange, which outlives the
// cancellation of any single caller.
const exchangeTimeout = 30 * time.Second

// tokenResponse is the JSON response from the identity endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Session holds the bearer token of one client instance and the logic to
// acquire it through a client-credentials exchange. The token is kept in
// memory only and has a single mutation point: a successful exchange.
type Session struct {
	authURL    string
	scope      string
	basicKey   string
	httpClient *http.Client
	nonce      NonceFunc
	logger     logging.Logger

	mu    sync.RWMutex
	token string
	group singleflight.Group
}

// NewSession creates a session from the credential and endpoint fields of opts.
func NewSession(opts Options) (*Session, error) {
	opts.normalize()
	if !opts.hasCredentials() {
		return nil, ErrMissingCredentials
	}
	key := strings.TrimSpace(strings.TrimPrefix(opts.AuthorizationKey, "Basic "))
	if key == "" {
		key = base64.StdEncoding.EncodeToString([]byte(opts.ClientID + ":" + opts.ClientSecret))
	}
	return &Session{
		authURL:    opts.AuthURL,
		scope:      opts.Scope,
		basicKey:   key,
		httpClient: opts.HTTPClient,
		nonce:      opts.Nonce,
		logger:     logging.With(opts.Logger, "component", "gigachat.session"),
	}, nil
}

// Token returns the cached bearer token, or "" when none was acquired yet.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Reset drops the cached token so the next EnsureToken performs a new exchange.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// EnsureToken returns the cached token or acquires one. Concurrent callers
// share a single in-flight exchange; each caller stops waiting when its own
// ctx is done, without aborting the exchange for the others. A failed
// exchange leaves the session without a token.
func (s *Session) EnsureToken(ctx context.Context) (string, error) {
	if tok := s.Token(); tok != "" {
		return tok, nil
	}
	ch := s.group.DoChan("token", func() (any, error) {
		// Re-check; another caller may have finished the exchange.
		if tok := s.Token(); tok != "" {
			return tok, nil
		}
		xctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeTimeout)
		defer cancel()

		start := time.Now()
		tok, err := s.exchange(xctx)
		logging.LogAuthentication(s.logger, s.authURL, time.Since(start), err)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.token = tok
		s.mu.Unlock()
		return tok, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *Session) exchange(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("scope", s.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthenticationError{Err: err}
	}
	req.Header.Set("Authorization", "Basic "+s.basicKey)
	req.Header.Set("RqUID", s.nonce())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &AuthenticationError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthBody))
	if err != nil {
		return "", &AuthenticationError{StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &AuthenticationError{StatusCode: resp.StatusCode, Status: resp.Status, Body: truncate(string(body))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &AuthenticationError{StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
	}
	if tr.AccessToken == "" {
		return "", &AuthenticationError{StatusCode: resp.StatusCode, Status: resp.Status, Err: errors.New("response carries no access_token")}
	}
	return tr.AccessToken, nil
}
