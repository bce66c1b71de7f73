package turn

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-parley/pkg/speech"
)

// Defaults for Config.
const (
	DefaultHistoryWindow = 5
	DefaultSystemPrompt  = "You are a helpful AI assistant. Keep your responses concise and natural."
	DefaultFallbackText  = "I apologize, but I'm having trouble processing your request."
)

// Config holds engine configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// HistoryWindow is how many prior turns are included in each prompt.
	HistoryWindow int

	// Capture bounds the listening step of each cycle.
	Capture speech.CaptureOptions

	// InterruptCapture bounds each capture attempt made while speaking.
	InterruptCapture speech.CaptureOptions

	// SystemPrompt precedes the history in every prompt.
	SystemPrompt string

	// FallbackText is spoken when generation fails.
	FallbackText string

	// RetryYield is the pause between unusable captures. Zero yields the
	// processor without sleeping.
	RetryYield time.Duration

	// Observers receive every turn event.
	Observers []Observer

	// Clock stamps turns and events.
	Clock func() time.Time

	Logger *slog.Logger
}

// Option is a functional option for configuring the engine.
type Option func(*Config)

// WithHistoryWindow sets the number of prior turns used in prompts.
func WithHistoryWindow(k int) Option {
	return func(c *Config) {
		c.HistoryWindow = k
	}
}

// WithCaptureOptions sets the bounds for the listening step.
func WithCaptureOptions(opts speech.CaptureOptions) Option {
	return func(c *Config) {
		c.Capture = opts
	}
}

// WithInterruptCaptureOptions sets the bounds for barge-in captures.
func WithInterruptCaptureOptions(opts speech.CaptureOptions) Option {
	return func(c *Config) {
		opts.Interrupt = true
		c.InterruptCapture = opts
	}
}

// WithSystemPrompt sets the prompt preamble.
func WithSystemPrompt(p string) Option {
	return func(c *Config) {
		c.SystemPrompt = p
	}
}

// WithFallbackText sets the reply used when generation fails.
func WithFallbackText(text string) Option {
	return func(c *Config) {
		c.FallbackText = text
	}
}

// WithRetryYield sets the pause between unusable captures.
func WithRetryYield(d time.Duration) Option {
	return func(c *Config) {
		c.RetryYield = d
	}
}

// WithObserver registers an observer at construction time.
func WithObserver(obs Observer) Option {
	return func(c *Config) {
		if obs != nil {
			c.Observers = append(c.Observers, obs)
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Clock = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns the reference conversational behavior: five turns
// of context, a 5s onset timeout and a 10s phrase limit.
func DefaultConfig() *Config {
	capture := speech.DefaultCaptureOptions()
	interrupt := capture
	interrupt.Interrupt = true

	return &Config{
		HistoryWindow:    DefaultHistoryWindow,
		Capture:          capture,
		InterruptCapture: interrupt,
		SystemPrompt:     DefaultSystemPrompt,
		FallbackText:     DefaultFallbackText,
		Clock:            time.Now,
		Logger:           slog.Default(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.HistoryWindow < 0 {
		return errors.New("turn: history window must be >= 0")
	}
	if strings.TrimSpace(c.FallbackText) == "" {
		return errors.New("turn: fallback text is required")
	}
	if c.RetryYield < 0 {
		return errors.New("turn: retry yield must be >= 0")
	}
	if c.Capture.Timeout <= 0 || c.Capture.PhraseLimit <= 0 {
		return errors.New("turn: capture timeout and phrase limit must be positive")
	}
	if c.InterruptCapture.Timeout <= 0 || c.InterruptCapture.PhraseLimit <= 0 {
		return errors.New("turn: interrupt capture timeout and phrase limit must be positive")
	}
	return nil
}
