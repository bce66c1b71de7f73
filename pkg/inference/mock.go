package inference

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
type Mock struct {
	// GenerateFunc is called when Generate is invoked.
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	// Delay is applied before GenerateFunc runs, honoring ctx.
	Delay time.Duration

	mu      sync.Mutex
	prompts []string
	closed  bool
}

// NewMock creates a mock that always replies "Mock response".
func NewMock() *Mock {
	return &Mock{
		GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
			return "Mock response", nil
		},
	}
}

// WithError creates a mock whose every call fails with err.
func WithError(err error) *Mock {
	m := NewMock()
	m.GenerateFunc = func(ctx context.Context, prompt string) (string, error) {
		return "", err
	}
	m.HealthFunc = func(ctx context.Context) error { return err }
	return m
}

// WithReply creates a mock that always answers reply.
func WithReply(reply string) *Mock {
	m := NewMock()
	m.GenerateFunc = func(ctx context.Context, prompt string) (string, error) {
		return reply, nil
	}
	return m
}

// Name returns "mock".
func (m *Mock) Name() string { return "mock" }

// Generate records the prompt and calls GenerateFunc.
func (m *Mock) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	return "", WrapError("mock", ErrProviderUnavailable)
}

// Health calls HealthFunc.
func (m *Mock) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Prompts returns every prompt received.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Provider = (*Mock)(nil)
