package tts

import (
	"context"
	"fmt"
	"log/slog"
)

// Chain implements Provider by falling back through providers in order.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a provider chain. At least one provider is required.
func NewChain(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "tts.chain"),
	}, nil
}

// Synthesize returns the first successful provider's result.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	return firstOf(ctx, c, "synthesize", func(p Provider) (*AudioResult, error) {
		return p.Synthesize(ctx, text)
	})
}

// Stream returns the first stream a provider manages to open. Failures
// after the stream is open are not retried on another provider.
func (c *Chain) Stream(ctx context.Context, text string) (AudioStream, error) {
	return firstOf(ctx, c, "stream", func(p Provider) (AudioStream, error) {
		return p.Stream(ctx, text)
	})
}

func firstOf[T any](ctx context.Context, c *Chain, op string, call func(Provider) (T, error)) (T, error) {
	var (
		zero T
		errs []error
	)
	for i, p := range c.providers {
		v, err := call(p)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded", "op", op, "provider_index", i)
			}
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		errs = append(errs, err)
		c.logger.Warn("provider failed, trying next", "op", op, "provider_index", i, "error", err)
	}
	return zero, &ChainError{Errors: errs}
}

// Health succeeds if any provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var lastErr error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("all %d providers unhealthy: %w", len(c.providers), lastErr)
}

// Close closes all providers and returns the last error.
func (c *Chain) Close() error {
	var lastErr error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

var _ Provider = (*Chain)(nil)
