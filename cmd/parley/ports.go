package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/teslashibe/go-parley/internal/config"
	"github.com/teslashibe/go-parley/pkg/audioio"
	_ "github.com/teslashibe/go-parley/pkg/audioio/device" // registers the hardware backend
	"github.com/teslashibe/go-parley/pkg/console"
	"github.com/teslashibe/go-parley/pkg/inference"
	"github.com/teslashibe/go-parley/pkg/listen"
	"github.com/teslashibe/go-parley/pkg/speech"
	"github.com/teslashibe/go-parley/pkg/tts"
	"github.com/teslashibe/go-parley/pkg/turn"
)

// ports are the engine's collaborators plus whatever must be closed with
// them.
type ports struct {
	listener  speech.Listener
	speaker   speech.Speaker
	generator inference.Provider
	closers   []io.Closer
}

func (p *ports) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i].Close())
	}
	return errors.Join(errs...)
}

func buildPorts(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer, logger *slog.Logger) (*ports, error) {
	p := &ports{}

	gen, err := buildGenerator(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	p.generator = gen
	p.closers = append(p.closers, gen)

	switch cfg.Mode {
	case config.ModeText:
		p.listener = console.NewListener(stdin,
			console.WithPrompt(stdout, "You: "),
			console.WithListenerLogger(logger),
		)
		p.speaker = console.NewSpeaker(stdout,
			console.WithRate(cfg.Console.WordsPerMinute),
			console.WithSpeakerLogger(logger),
		)
		return p, nil

	case config.ModeVoice:
		if err := buildVoice(ctx, cfg, p, logger); err != nil {
			p.Close()
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
}

func buildVoice(ctx context.Context, cfg *config.Config, p *ports, logger *slog.Logger) error {
	capCfg := audioio.DefaultCaptureConfig()
	capCfg.SampleRate = cfg.Listen.SampleRate
	source, err := audioio.NewSource(capCfg, logger)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	p.closers = append(p.closers, source)
	logger.Info("audio input", "backend", source.Name(), "sample_rate", capCfg.SampleRate)

	tr, err := buildTranscriber(ctx, cfg.Listen, logger)
	if err != nil {
		return err
	}
	mic, err := listen.New(source, tr,
		listen.WithCalibration(cfg.Listen.Calibration),
		listen.WithMicrophoneLogger(logger),
	)
	if err != nil {
		return err
	}
	p.listener = mic

	provider, err := buildTTS(ctx, cfg.TTS, logger)
	if err != nil {
		return err
	}
	p.closers = append(p.closers, provider)

	sinkCfg := audioio.DefaultConfig()
	sinkCfg.SampleRate = cfg.TTS.SampleRate
	speaker, err := tts.NewSpeaker(provider,
		func() (audioio.Sink, error) { return audioio.NewSink(sinkCfg, logger) },
		tts.WithSpeakerLogger(logger),
	)
	if err != nil {
		return err
	}
	p.speaker = speaker
	p.closers = append(p.closers, speaker)
	return nil
}

func buildGenerator(ctx context.Context, c config.LLMConfig, logger *slog.Logger) (inference.Provider, error) {
	opts := []inference.Option{
		inference.WithAPIKey(c.APIKey),
		inference.WithTemperature(c.Temperature),
		inference.WithMaxTokens(c.MaxTokens),
		inference.WithTimeout(c.Timeout),
		inference.WithLogger(logger),
	}
	if c.Model != "" {
		opts = append(opts, inference.WithModel(c.Model))
	}
	if c.BaseURL != "" {
		opts = append(opts, inference.WithBaseURL(c.BaseURL))
	}

	switch c.Provider {
	case "openai":
		return inference.NewClient(opts...)
	default:
		return inference.NewGemini(ctx, opts...)
	}
}

func buildTranscriber(ctx context.Context, c config.ListenConfig, logger *slog.Logger) (listen.Transcriber, error) {
	opts := []listen.Option{
		listen.WithLanguage(c.Language),
		listen.WithLogger(logger),
	}
	if c.APIKey != "" {
		opts = append(opts, listen.WithAPIKey(c.APIKey))
	}

	switch c.Transcriber {
	case "whisper":
		return listen.NewWhisper(opts...)
	default:
		return listen.NewGoogleTranscriber(ctx, opts...)
	}
}

func buildTTS(ctx context.Context, c config.TTSConfig, logger *slog.Logger) (tts.Provider, error) {
	enc, ok := tts.EncodingForSampleRate(c.SampleRate)
	if !ok {
		return nil, fmt.Errorf("tts: unsupported sample rate %d", c.SampleRate)
	}
	opts := []tts.Option{
		tts.WithOutputFormat(enc),
		tts.WithSpeakingRate(c.SpeakingRate),
		tts.WithLogger(logger),
	}
	if c.APIKey != "" {
		opts = append(opts, tts.WithAPIKey(c.APIKey))
	}
	if c.Voice != "" {
		opts = append(opts, tts.WithVoice(c.Voice))
	}

	switch c.Provider {
	case "elevenlabs":
		return tts.NewElevenLabs(opts...)
	default:
		return tts.NewGoogle(ctx, opts...)
	}
}

func newEngine(cfg *config.Config, p *ports, logger *slog.Logger) (*turn.Engine, error) {
	capture := speech.CaptureOptions{
		Timeout:     cfg.Listen.Timeout,
		PhraseLimit: cfg.Listen.PhraseLimit,
	}
	return turn.New(p.listener, p.speaker, p.generator,
		turn.WithHistoryWindow(cfg.Session.HistoryWindow),
		turn.WithCaptureOptions(capture),
		turn.WithInterruptCaptureOptions(capture),
		turn.WithSystemPrompt(cfg.Session.SystemPrompt),
		turn.WithFallbackText(cfg.Session.FallbackText),
		turn.WithRetryYield(cfg.Session.RetryYield),
		turn.WithLogger(logger),
	)
}
