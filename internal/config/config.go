// Package config loads process configuration for the parley binary.
//
// Values come from (lowest to highest precedence) built-in defaults, an
// optional YAML file, and PARLEY_* environment variables. Provider API keys
// additionally fall back to their conventional variable names
// (GOOGLE_API_KEY, OPENAI_API_KEY, ELEVENLABS_API_KEY).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// PARLEY_LLM_MODEL overrides llm.model.
const EnvPrefix = "PARLEY"

// Modes accepted by Config.Mode.
const (
	ModeVoice = "voice"
	ModeText  = "text"
)

// Config is the root configuration document.
type Config struct {
	Mode    string        `mapstructure:"mode"`
	Log     LogConfig     `mapstructure:"log"`
	Session SessionConfig `mapstructure:"session"`
	Listen  ListenConfig  `mapstructure:"listen"`
	LLM     LLMConfig     `mapstructure:"llm"`
	TTS     TTSConfig     `mapstructure:"tts"`
	Console ConsoleConfig `mapstructure:"console"`
	Web     WebConfig     `mapstructure:"web"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

type SessionConfig struct {
	HistoryWindow int           `mapstructure:"history_window"` // Turns included in each prompt
	SystemPrompt  string        `mapstructure:"system_prompt"`  // Preamble placed before the history
	FallbackText  string        `mapstructure:"fallback_text"`  // Spoken when generation fails
	RetryYield    time.Duration `mapstructure:"retry_yield"`    // Pause between empty captures
}

type ListenConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`      // Wait for speech onset
	PhraseLimit time.Duration `mapstructure:"phrase_limit"` // Maximum utterance length
	Calibration time.Duration `mapstructure:"calibration"`  // Ambient noise sampling
	SampleRate  int           `mapstructure:"sample_rate"`
	Transcriber string        `mapstructure:"transcriber"` // google, whisper
	Language    string        `mapstructure:"language"`
	APIKey      string        `mapstructure:"api_key"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // gemini, openai
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type TTSConfig struct {
	Provider     string  `mapstructure:"provider"` // google, elevenlabs
	Voice        string  `mapstructure:"voice"`
	APIKey       string  `mapstructure:"api_key"`
	SampleRate   int     `mapstructure:"sample_rate"`
	SpeakingRate float64 `mapstructure:"speaking_rate"`
}

type ConsoleConfig struct {
	WordsPerMinute int `mapstructure:"words_per_minute"`
}

type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Defaults mirror the behavior of the original speech bot.
func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeVoice)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("session.history_window", 5)
	v.SetDefault("session.system_prompt", "You are a helpful AI assistant. Keep your responses concise and natural.")
	v.SetDefault("session.fallback_text", "I apologize, but I'm having trouble processing your request.")
	v.SetDefault("session.retry_yield", "0s")

	v.SetDefault("listen.timeout", "5s")
	v.SetDefault("listen.phrase_limit", "10s")
	v.SetDefault("listen.calibration", "1s")
	v.SetDefault("listen.sample_rate", 16000)
	v.SetDefault("listen.transcriber", "google")
	v.SetDefault("listen.language", "en-US")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "") // provider default: gemini-1.5-flash or gpt-4o-mini
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 256)
	v.SetDefault("llm.timeout", "30s")

	v.SetDefault("tts.provider", "google")
	v.SetDefault("tts.sample_rate", 24000)
	v.SetDefault("tts.speaking_rate", 1.0)

	v.SetDefault("console.words_per_minute", 150)

	v.SetDefault("web.enabled", false)
	v.SetDefault("web.addr", ":8181")
}

// Load reads configuration from path (if non-empty) and the environment.
// A missing file at an explicit path is an error; with an empty path the
// working directory is searched for parley.yaml and its absence is ignored.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("parley")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.applyKeyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyKeyFallbacks() {
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			c.LLM.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}

	if c.Listen.APIKey == "" {
		switch c.Listen.Transcriber {
		case "whisper":
			c.Listen.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			c.Listen.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}

	if c.TTS.APIKey == "" {
		switch c.TTS.Provider {
		case "elevenlabs":
			c.TTS.APIKey = os.Getenv("ELEVENLABS_API_KEY")
		default:
			c.TTS.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}
	if c.TTS.Voice == "" && c.TTS.Provider == "elevenlabs" {
		c.TTS.Voice = os.Getenv("ELEVENLABS_VOICE_ID")
	}
}

// Validate checks the configuration for values the binary cannot run with.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeVoice, ModeText:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.Session.HistoryWindow < 0 {
		return errors.New("config: session.history_window must be >= 0")
	}
	if c.Session.RetryYield < 0 {
		return errors.New("config: session.retry_yield must be >= 0")
	}
	if c.Listen.Timeout <= 0 || c.Listen.PhraseLimit <= 0 {
		return errors.New("config: listen timeouts must be positive")
	}
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	if c.Mode == ModeVoice {
		switch c.Listen.Transcriber {
		case "google", "whisper":
		default:
			return fmt.Errorf("config: unknown transcriber %q", c.Listen.Transcriber)
		}
		switch c.TTS.Provider {
		case "google", "elevenlabs":
		default:
			return fmt.Errorf("config: unknown tts provider %q", c.TTS.Provider)
		}
	}
	return nil
}
