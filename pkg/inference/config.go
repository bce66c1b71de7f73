package inference

import (
	"log/slog"
	"time"
)

// Config holds provider configuration.
type Config struct {
	// Connection
	BaseURL string // API base URL
	APIKey  string // API key (optional for local providers)

	Model string

	// SystemInstruction is sent as a separate system message. The turn
	// engine already renders its preamble into the prompt, so this is
	// usually empty.
	SystemInstruction string

	// Request defaults
	MaxTokens   int
	Temperature float64

	Timeout time.Duration

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithBaseURL sets the API base URL.
// Examples: "https://api.openai.com/v1", "http://localhost:11434/v1"
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithSystemInstruction sets a system message sent with every request.
func WithSystemInstruction(s string) Option {
	return func(c *Config) { c.SystemInstruction = s }
}

// WithMaxTokens sets the reply length limit.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults for OpenAI.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		MaxTokens:   256,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
		MaxRetries:  2,
		RetryDelay:  200 * time.Millisecond,
		Logger:      slog.Default(),
	}
}

// DefaultGeminiConfig returns defaults for Gemini.
func DefaultGeminiConfig() *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = ""
	cfg.Model = "gemini-1.5-flash"
	return cfg
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	// API key is optional for local providers like Ollama
	if c.Model == "" {
		return ErrNoModel
	}
	return nil
}
