package gigachat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMissingCredentials is returned by New when neither an authorization key
// nor a client id / secret pair is configured.
var ErrMissingCredentials = errors.New("gigachat: missing credentials")

// AuthenticationError reports a failed identity exchange. It is fatal to the
// request that triggered it and is never retried silently.
type AuthenticationError struct {
	StatusCode int    // HTTP status, 0 for transport failures
	Status     string // HTTP status text
	Body       string // truncated response body
	Err        error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode == 0:
		return fmt.Sprintf("gigachat authentication failed: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("gigachat authentication failed (%d): %v", e.StatusCode, e.Err)
	case e.Body != "":
		return fmt.Sprintf("gigachat authentication failed: %s: %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("gigachat authentication failed: %s", e.Status)
	}
}

// Unwrap returns the underlying transport or decode error, if any.
func (e *AuthenticationError) Unwrap() error { return e.Err }

// ProviderError reports an explicit error from the completion endpoint,
// either as a non-2xx HTTP response or as an error object inside the stream.
type ProviderError struct {
	StatusCode int // HTTP status, 0 for in-stream errors
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var sb strings.Builder
	sb.WriteString("gigachat provider error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " %d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&sb, " [%s]", e.Code)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	return sb.String()
}

// truncate caps provider supplied text included in errors.
func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}

// providerErrorFromBody turns a non-2xx completion response body into a ProviderError.
// GigaChat answers with {"status":..,"message":..}; OpenAI style {"error":{..}} is accepted too.
func providerErrorFromBody(statusCode int, body []byte) *ProviderError {
	pe := &ProviderError{StatusCode: statusCode}
	var errBody struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &errBody) == nil {
		if errBody.Message != "" {
			pe.Message = truncate(errBody.Message)
			return pe
		}
		if inner := decodeErrorObject(errBody.Error); inner != nil {
			inner.StatusCode = statusCode
			return inner
		}
	}
	pe.Message = truncate(string(body))
	if pe.Message == "" {
		pe.Message = http.StatusText(statusCode)
	}
	return pe
}

// decodeErrorObject interprets an "error" member. A nil result means no error was signalled.
func decodeErrorObject(raw json.RawMessage) *ProviderError {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "false" {
		return nil
	}
	var msg string
	if json.Unmarshal(raw, &msg) == nil {
		if msg == "" {
			return nil
		}
		return &ProviderError{Message: msg}
	}
	var obj struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
		Type    string `json:"type"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		pe := &ProviderError{Message: obj.Message, Code: obj.Type}
		if obj.Code != nil {
			pe.Code = fmt.Sprint(obj.Code)
		}
		return pe
	}
	return &ProviderError{Message: truncate(trimmed)}
}
