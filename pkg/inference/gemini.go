package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/teslashibe/go-parley/internal/httpc"
)

const providerGemini = "gemini"

// Gemini generates replies with Google's Gemini models through the genai
// SDK.
type Gemini struct {
	client *genai.Client
	config *Config
	logger *slog.Logger
}

// NewGemini creates a Gemini generator. WithBaseURL overrides the API
// endpoint, which tests point at a local server.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultGeminiConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpc.NewClient(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("create client: %w", err))
	}

	return &Gemini{
		client: client,
		config: cfg,
		logger: cfg.Logger.With("component", "inference.gemini"),
	}, nil
}

// Name returns "gemini".
func (g *Gemini) Name() string { return providerGemini }

func (g *Gemini) contentConfig() *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(g.config.Temperature)),
	}
	if g.config.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(g.config.MaxTokens)
	}
	if g.config.SystemInstruction != "" {
		gc.SystemInstruction = genai.NewContentFromText(g.config.SystemInstruction, genai.RoleUser)
	}
	return gc
}

// Generate sends prompt as a single user turn.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(prompt), g.contentConfig())
	if err != nil {
		return "", WrapError(providerGemini, toAPIError(err))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", WrapError(providerGemini, ErrEmptyReply)
	}

	g.logger.Debug("completion", "model", g.config.Model, "latency", time.Since(start), "chars", len(text))
	return text, nil
}

// Health issues a minimal generation request.
func (g *Gemini) Health(ctx context.Context) error {
	_, err := g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text("ping"),
		&genai.GenerateContentConfig{MaxOutputTokens: 1})
	if err != nil {
		return WrapError(providerGemini, toAPIError(err))
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources beyond its
// HTTP client.
func (g *Gemini) Close() error { return nil }

// toAPIError maps SDK errors onto APIError so callers can check
// IsRetryable the same way for every provider.
func toAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Code:       apiErr.Status,
			Provider:   providerGemini,
		}
	}
	return err
}

var _ Provider = (*Gemini)(nil)
