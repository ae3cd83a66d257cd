package gigachat

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthServer(t *testing.T, status int, delay time.Duration) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		_, err := uuid.Parse(r.Header.Get("RqUID"))
		assert.NoError(t, err)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, DefaultScope, r.PostForm.Get("scope"))

		time.Sleep(delay)
		if status != http.StatusOK {
			http.Error(w, `{"code":6,"message":"credentials doesn't match db data"}`, status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-abc","expires_at":1700000000000}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testSession(t *testing.T, srv *httptest.Server) *Session {
	t.Helper()
	s, err := NewSession(Options{
		ClientID:     "id",
		ClientSecret: "secret",
		AuthURL:      srv.URL,
		HTTPClient:   srv.Client(),
	})
	require.NoError(t, err)
	return s
}

func TestNewSession_MissingCredentials(t *testing.T) {
	_, err := NewSession(Options{ClientID: "only-id"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestNewSession_BasicKey(t *testing.T) {
	s, err := NewSession(Options{ClientID: "id", ClientSecret: "secret"})
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("id:secret")), s.basicKey)

	s, err = NewSession(Options{AuthorizationKey: "Basic a2V5"})
	require.NoError(t, err)
	assert.Equal(t, "a2V5", s.basicKey)
}

func TestSession_EnsureTokenExchangesOnce(t *testing.T) {
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("id:secret"))
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, wantAuth, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"access_token":"tok-abc"}`))
	}))
	defer srv.Close()

	s := testSession(t, srv)
	assert.Empty(t, s.Token())

	for range 3 {
		tok, err := s.EnsureToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-abc", tok)
	}
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "tok-abc", s.Token())
}

func TestSession_ConcurrentCallersShareExchange(t *testing.T) {
	srv, calls := newAuthServer(t, http.StatusOK, 50*time.Millisecond)
	s := testSession(t, srv)

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := s.EnsureToken(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, tok := range tokens {
		assert.Equal(t, "tok-abc", tok)
	}
}

func TestSession_CancelledCallerDoesNotFailOthers(t *testing.T) {
	srv, calls := newAuthServer(t, http.StatusOK, 200*time.Millisecond)
	s := testSession(t, srv)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := s.EnsureToken(ctxA)
		errA <- err
	}()

	// Let A start the exchange before B joins it.
	time.Sleep(50 * time.Millisecond)
	errB := make(chan error, 1)
	tokB := make(chan string, 1)
	go func() {
		tok, err := s.EnsureToken(context.Background())
		tokB <- tok
		errB <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancelA()

	assert.ErrorIs(t, <-errA, context.Canceled)
	assert.Equal(t, "tok-abc", <-tokB)
	require.NoError(t, <-errB)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "tok-abc", s.Token())
}

func TestSession_AuthenticationFailure(t *testing.T) {
	srv, calls := newAuthServer(t, http.StatusUnauthorized, 0)
	s := testSession(t, srv)

	_, err := s.EnsureToken(context.Background())
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Contains(t, authErr.Body, "credentials doesn't match")
	assert.Empty(t, s.Token())

	// No token was cached, so the next call tries again.
	_, err = s.EnsureToken(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSession_EmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := testSession(t, srv).EnsureToken(context.Background())
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Error(), "access_token")
}

func TestSession_Reset(t *testing.T) {
	srv, calls := newAuthServer(t, http.StatusOK, 0)
	s := testSession(t, srv)

	_, err := s.EnsureToken(context.Background())
	require.NoError(t, err)
	s.Reset()
	assert.Empty(t, s.Token())

	_, err = s.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}
