package inference

import (
	"context"
	"log/slog"
)

// Chain tries multiple providers in order until one succeeds.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a provider chain.
// At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		providers: providers,
		logger:    slog.Default().With("component", "inference.chain"),
	}, nil
}

// NewChainWithLogger creates a provider chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	chain, err := NewChain(providers...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "inference.chain")
	return chain, nil
}

// Name returns "chain".
func (c *Chain) Name() string { return "chain" }

// Generate tries each provider until one succeeds.
func (c *Chain) Generate(ctx context.Context, prompt string) (string, error) {
	var errs []error

	for i, p := range c.providers {
		reply, err := p.Generate(ctx, prompt)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded", "provider", p.Name())
			}
			return reply, nil
		}

		errs = append(errs, err)
		c.logger.Warn("provider failed, trying next", "provider", p.Name(), "error", err)

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", &ChainError{Errors: errs}
}

// Health succeeds if any provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return &ChainError{Errors: errs}
}

// Close closes every provider and returns the first error.
func (c *Chain) Close() error {
	var first error
	for _, p := range c.providers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ Provider = (*Chain)(nil)
