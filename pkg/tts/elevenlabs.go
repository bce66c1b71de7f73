package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-parley/internal/httpc"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs model IDs
const (
	// ModelTurboV2_5 is the fastest English model.
	ModelTurboV2_5 = "eleven_turbo_v2_5"

	// ModelFlashV2_5 is the fastest multilingual model.
	ModelFlashV2_5 = "eleven_flash_v2_5"

	// ModelMultilingualV2 is the highest quality multilingual model.
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabs implements Provider for ElevenLabs TTS.
type ElevenLabs struct {
	config  *Config
	client  *http.Client
	stream  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewElevenLabs creates a new ElevenLabs TTS provider.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	return &ElevenLabs{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		stream:  httpc.NewClient(cfg.StreamTimeout),
		logger:  cfg.Logger.With("component", "tts.elevenlabs"),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

type elevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	req, err := e.newRequest(ctx, "", text)
	if err != nil {
		return nil, err
	}

	resp, err := e.doWithRetry(ctx, e.client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("read response: %w", err))
	}

	latency := time.Since(start)
	format := e.outputFormat()

	e.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency.Milliseconds(),
		"model", e.config.ModelID,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  PCMDuration(len(audio), format),
		Latency:   latency,
		CharCount: len(text),
	}, nil
}

// Stream converts text to audio with streaming output for lowest latency.
func (e *ElevenLabs) Stream(ctx context.Context, text string) (AudioStream, error) {
	req, err := e.newRequest(ctx, "/stream", text)
	if err != nil {
		return nil, err
	}

	resp, err := e.doWithRetry(ctx, e.stream, req)
	if err != nil {
		return nil, err
	}

	return &httpStream{
		body:   resp.Body,
		format: e.outputFormat(),
	}, nil
}

// Health checks API connectivity and API key validity.
func (e *ElevenLabs) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/user", nil)
	if err != nil {
		return WrapError(providerElevenLabs, err)
	}
	req.Header.Set("xi-api-key", e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return WrapError(providerElevenLabs, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return e.parseError(resp)
	}
	return nil
}

// Close releases resources held by the provider.
func (e *ElevenLabs) Close() error {
	e.client.CloseIdleConnections()
	e.stream.CloseIdleConnections()
	return nil
}

// VoiceID returns the configured voice ID.
func (e *ElevenLabs) VoiceID() string {
	return e.config.VoiceID
}

func (e *ElevenLabs) newRequest(ctx context.Context, suffix, text string) (*http.Request, error) {
	body, err := json.Marshal(elevenLabsRequest{
		Text:          text,
		ModelID:       e.config.ModelID,
		VoiceSettings: e.config.VoiceSettings,
	})
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s%s?output_format=%s",
		e.baseURL, url.PathEscape(e.config.VoiceID), suffix, url.QueryEscape(string(e.config.OutputFormat)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("xi-api-key", e.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/pcm")
	return req, nil
}

// doWithRetry performs the request, retrying rate limits and server errors.
// The returned response always has status 200.
func (e *ElevenLabs) doWithRetry(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.config.RetryDelay * time.Duration(attempt)):
			}

			body, err := req.GetBody()
			if err != nil {
				return nil, WrapError(providerElevenLabs, err)
			}
			req.Body = body
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(providerElevenLabs, err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := e.parseError(resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		e.logger.Warn("retrying request",
			"attempt", attempt+1,
			"status", resp.StatusCode,
		)
	}

	return nil, lastErr
}

// parseError reads and parses an error response.
func (e *ElevenLabs) parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}

	message := string(body)
	var code string
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		message = errResp.Detail.Message
		code = errResp.Detail.Status
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerElevenLabs,
	}
}

func (e *ElevenLabs) outputFormat() AudioFormat {
	return PCMFormat(SampleRateFromEncoding(e.config.OutputFormat))
}

// httpStream wraps an HTTP response body as AudioStream.
type httpStream struct {
	body   io.ReadCloser
	format AudioFormat
	buf    [4096]byte
	done   bool
}

// Read returns the next audio chunk.
func (s *httpStream) Read() ([]byte, error) {
	if s.done {
		return nil, nil
	}
	n, err := s.body.Read(s.buf[:])
	if err == io.EOF {
		s.done = true
		err = nil
	}
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if s.done {
			return nil, nil
		}
		return []byte{}, nil
	}
	chunk := make([]byte, n)
	copy(chunk, s.buf[:n])
	return chunk, nil
}

// Close stops the stream.
func (s *httpStream) Close() error {
	return s.body.Close()
}

// Format returns the audio format.
func (s *httpStream) Format() AudioFormat {
	return s.format
}

var _ Provider = (*ElevenLabs)(nil)
