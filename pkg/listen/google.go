package listen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	speechapi "google.golang.org/api/speech/v1"

	"github.com/teslashibe/go-parley/pkg/audioio"
)

// GoogleTranscriber uses Google Cloud Speech-to-Text synchronous recognition.
type GoogleTranscriber struct {
	config  *Config
	service *speechapi.Service
	logger  *slog.Logger
}

// NewGoogleTranscriber creates a transcriber. Credentials come from the API
// key, the configured token source, or application default credentials, in
// that order.
func NewGoogleTranscriber(ctx context.Context, opts ...Option) (*GoogleTranscriber, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	var clientOpts []option.ClientOption
	switch {
	case cfg.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	case cfg.TokenSource != nil:
		clientOpts = append(clientOpts, option.WithTokenSource(cfg.TokenSource))
	default:
		ts, err := google.DefaultTokenSource(ctx, speechapi.CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("listen: default credentials: %w", err)
		}
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}

	svc, err := speechapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("listen: create speech service: %w", err)
	}

	return &GoogleTranscriber{
		config:  cfg,
		service: svc,
		logger:  cfg.Logger.With("component", "listen.google"),
	}, nil
}

// Transcribe returns the top alternative of every result, joined by spaces.
func (g *GoogleTranscriber) Transcribe(ctx context.Context, audio audioio.AudioChunk) (string, error) {
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	req := &speechapi.RecognizeRequest{
		Config: &speechapi.RecognitionConfig{
			Encoding:          "LINEAR16",
			SampleRateHertz:   int64(audio.SampleRate),
			AudioChannelCount: int64(max(1, audio.Channels)),
			LanguageCode:      g.config.LanguageCode,
			Model:             g.config.Model,
		},
		Audio: &speechapi.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(audioio.SamplesToBytes(audio.Samples)),
		},
	}

	resp, err := g.service.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) {
			return "", &APIError{StatusCode: gErr.Code, Message: gErr.Message, Provider: "google"}
		}
		return "", fmt.Errorf("listen [google]: %w", err)
	}

	var parts []string
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	text := strings.Join(parts, " ")

	g.logger.Debug("recognized", "audio", audio.Duration(), "chars", len(text))
	return text, nil
}

var _ Transcriber = (*GoogleTranscriber)(nil)
