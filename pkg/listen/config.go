package listen

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

// Errors
var (
	ErrNoAPIKey       = errors.New("listen: API key required")
	ErrNoTranscript   = errors.New("listen: empty transcript")
	ErrNilSource      = errors.New("listen: nil audio source")
	ErrNilTranscriber = errors.New("listen: nil transcriber")
)

// APIError is a non-2xx response from a speech recognition API.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("listen [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Config configures a Transcriber.
type Config struct {
	APIKey      string
	BaseURL     string
	TokenSource oauth2.TokenSource

	Model        string
	LanguageCode string
	Timeout      time.Duration

	Logger *slog.Logger
}

// Option configures a Transcriber.
type Option func(*Config)

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithTokenSource sets OAuth2 credentials for Google.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Config) { c.TokenSource = ts }
}

// WithModel sets the recognition model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithLanguage sets the BCP-47 language code.
func WithLanguage(code string) Option {
	return func(c *Config) { c.LanguageCode = code }
}

// WithTimeout bounds each recognition request.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns en-US with a 15s request timeout.
func DefaultConfig() *Config {
	return &Config{
		LanguageCode: "en-US",
		Timeout:      15 * time.Second,
		Logger:       slog.Default(),
	}
}

// Apply applies options and fills a nil logger.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
