package gigachat

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/hupe1980/gigamesh/logging"
)

// Default endpoints and identifiers of the public GigaChat API.
const (
	DefaultAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	DefaultAPIBase = "https://gigachat.devices.sberbank.ru/api/v1"
	DefaultScope   = "GIGACHAT_API_PERS"
	DefaultModel   = "GigaChat"
)

// RetryConfig controls retries of the completion POST on 429 / 5xx answers.
// MaxRetries of zero disables retrying. Authentication is never retried.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Options configure the GigaChat model adapter.
type Options struct {
	// ClientID and ClientSecret are combined into the Basic authorization
	// header of the identity exchange.
	ClientID     string
	ClientSecret string
	// AuthorizationKey is the pre-encoded base64(clientId:clientSecret) key
	// issued in the developer console. It takes precedence over the pair.
	AuthorizationKey string
	Scope            string
	AuthURL          string
	APIBase          string

	Model       string
	Temperature *float64
	MaxTokens   *int

	HTTPClient *http.Client
	Logger     logging.Logger
	Nonce      NonceFunc
	Retry      RetryConfig
}

// DefaultOptions returns options pointing at the public endpoints.
func DefaultOptions() Options {
	return Options{
		Scope:      DefaultScope,
		AuthURL:    DefaultAuthURL,
		APIBase:    DefaultAPIBase,
		Model:      DefaultModel,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Logger:     logging.NoOpLogger{},
		Nonce:      NewNonce,
		Retry: RetryConfig{
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// FromEnv is an option reading GIGACHAT_* environment variables. Unset
// variables leave the current value untouched.
func FromEnv(o *Options) {
	setFromEnv(&o.ClientID, "GIGACHAT_CLIENT_ID")
	setFromEnv(&o.ClientSecret, "GIGACHAT_CLIENT_SECRET")
	setFromEnv(&o.AuthorizationKey, "GIGACHAT_CREDENTIALS")
	setFromEnv(&o.Scope, "GIGACHAT_SCOPE")
	setFromEnv(&o.AuthURL, "GIGACHAT_AUTH_URL")
	setFromEnv(&o.APIBase, "GIGACHAT_API_BASE")
	setFromEnv(&o.Model, "GIGACHAT_MODEL")
	if v := os.Getenv("GIGACHAT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			o.Retry.MaxRetries = n
		}
	}
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (o *Options) hasCredentials() bool {
	return o.AuthorizationKey != "" || (o.ClientID != "" && o.ClientSecret != "")
}

// normalize fills zero values left by option functions.
func (o *Options) normalize() {
	d := DefaultOptions()
	if o.Scope == "" {
		o.Scope = d.Scope
	}
	if o.AuthURL == "" {
		o.AuthURL = d.AuthURL
	}
	if o.APIBase == "" {
		o.APIBase = d.APIBase
	}
	if o.Model == "" {
		o.Model = d.Model
	}
	if o.HTTPClient == nil {
		o.HTTPClient = d.HTTPClient
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	if o.Nonce == nil {
		o.Nonce = d.Nonce
	}
}
