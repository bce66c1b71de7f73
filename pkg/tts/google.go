package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

const providerGoogle = "google"

// Google implements Provider with Google Cloud Text-to-Speech.
// The API has no streaming synthesis over REST, so Stream synthesizes the
// whole utterance and serves it in chunks.
type Google struct {
	config  *Config
	service *texttospeech.Service
	logger  *slog.Logger
}

// NewGoogle creates a Google Cloud TTS provider. Credentials come from the
// API key, the configured token source, or application default credentials,
// in that order.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if SampleRateFromEncoding(cfg.OutputFormat) == 0 {
		return nil, ErrUnsupportedFormat
	}

	var clientOpts []option.ClientOption
	switch {
	case cfg.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	case cfg.TokenSource != nil:
		clientOpts = append(clientOpts, option.WithTokenSource(cfg.TokenSource))
	default:
		ts, err := google.DefaultTokenSource(ctx, texttospeech.CloudPlatformScope)
		if err != nil {
			return nil, WrapError(providerGoogle, fmt.Errorf("default credentials: %w", err))
		}
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}

	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create service: %w", err))
	}

	return &Google{
		config:  cfg,
		service: svc,
		logger:  cfg.Logger.With("component", "tts.google"),
	}, nil
}

// Synthesize converts text to LINEAR16 audio.
func (g *Google) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()
	format := PCMFormat(SampleRateFromEncoding(g.config.OutputFormat))

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.config.LanguageCode,
			Name:         g.config.VoiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: int64(format.SampleRate),
			SpeakingRate:    g.config.SpeakingRate,
		},
	}

	resp, err := g.service.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, g.wrap(err)
	}

	raw, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio: %w", err))
	}
	audio := stripWAVHeader(raw)
	latency := time.Since(start)

	g.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency.Milliseconds(),
		"voice", g.config.VoiceID,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  PCMDuration(len(audio), format),
		Latency:   latency,
		CharCount: len(text),
	}, nil
}

// Stream synthesizes text and returns the audio as a chunked stream.
func (g *Google) Stream(ctx context.Context, text string) (AudioStream, error) {
	res, err := g.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	// 40ms of audio per chunk
	chunk := res.Format.SampleRate * 2 / 25
	return newBufferStream(res.Audio, res.Format, chunk), nil
}

// Health lists voices for the configured language.
func (g *Google) Health(ctx context.Context) error {
	_, err := g.service.Voices.List().LanguageCode(g.config.LanguageCode).Context(ctx).Do()
	if err != nil {
		return g.wrap(err)
	}
	return nil
}

// Close is a no-op; the service holds no resources beyond its HTTP client.
func (g *Google) Close() error {
	return nil
}

func (g *Google) wrap(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &APIError{
			StatusCode: gErr.Code,
			Message:    gErr.Message,
			Provider:   providerGoogle,
		}
	}
	return WrapError(providerGoogle, err)
}

// stripWAVHeader returns the sample data of a RIFF/WAVE file, or data
// unchanged when it is not one.
func stripWAVHeader(data []byte) []byte {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return data
	}
	pos := 12
	for pos+8 <= len(data) {
		id := data[pos : pos+4]
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		pos += 8
		if bytes.Equal(id, []byte("data")) {
			end := min(pos+size, len(data))
			return data[pos:end]
		}
		pos += size + size%2
	}
	return nil
}

var _ Provider = (*Google)(nil)
