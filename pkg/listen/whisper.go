package listen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/teslashibe/go-parley/internal/httpc"
	"github.com/teslashibe/go-parley/pkg/audioio"
)

const (
	whisperBaseURL = "https://api.openai.com/v1"
	whisperModel   = "whisper-1"
)

// Whisper transcribes with an OpenAI-compatible /audio/transcriptions
// endpoint.
type Whisper struct {
	config *Config
	client *http.Client
	logger *slog.Logger
}

// NewWhisper creates a Whisper transcriber. An API key is required.
func NewWhisper(opts ...Option) (*Whisper, error) {
	cfg := DefaultConfig()
	cfg.Model = whisperModel
	cfg.BaseURL = whisperBaseURL
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	return &Whisper{
		config: cfg,
		client: httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "listen.whisper"),
	}, nil
}

// Transcribe uploads the utterance as a WAV file.
func (w *Whisper) Transcribe(ctx context.Context, audio audioio.AudioChunk) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(encodeWAV(audio)); err != nil {
		return "", err
	}
	if err := mw.WriteField("model", w.config.Model); err != nil {
		return "", err
	}
	if lang := isoLanguage(w.config.LanguageCode); lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	url := strings.TrimRight(w.config.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.config.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("listen [whisper]: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("listen [whisper]: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data), Provider: "whisper"}
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("listen [whisper]: decode response: %w", err)
	}

	w.logger.Debug("recognized", "audio", audio.Duration(), "chars", len(out.Text))
	return strings.TrimSpace(out.Text), nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// isoLanguage reduces a BCP-47 tag such as en-US to its ISO-639-1 part.
func isoLanguage(code string) string {
	lang, _, _ := strings.Cut(code, "-")
	return strings.ToLower(lang)
}

var _ Transcriber = (*Whisper)(nil)
