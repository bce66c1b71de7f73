package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
// Behavior can be customized via the function fields.
type Mock struct {
	// SynthesizeFunc is called by Synthesize and, when StreamFunc is nil,
	// by Stream.
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)

	// StreamFunc overrides Stream.
	StreamFunc func(ctx context.Context, text string) (AudioStream, error)

	// HealthFunc is called by Health. Nil means healthy.
	HealthFunc func(ctx context.Context) error

	// ChunkBytes sets the Read size of streams built from SynthesizeFunc.
	ChunkBytes int

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock returns a mock that synthesizes 20ms of 24kHz silence per
// character.
func NewMock() *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*AudioResult, error) {
			return Silence(len(text), 24000), nil
		},
	}
}

// Silence builds a result of n 20ms frames of silence at rate.
func Silence(n, rate int) *AudioResult {
	format := PCMFormat(rate)
	audio := make([]byte, n*rate/50*2)
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  PCMDuration(len(audio), format),
		CharCount: n,
	}
}

// WithError returns a mock whose every call fails with err.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*AudioResult, error) {
			return nil, err
		},
		StreamFunc: func(ctx context.Context, text string) (AudioStream, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
	}
}

// Synthesize calls SynthesizeFunc and records the call.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.record("Synthesize", text)
	if m.SynthesizeFunc == nil {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return m.SynthesizeFunc(ctx, text)
}

// Stream calls StreamFunc, or chunks the SynthesizeFunc result.
func (m *Mock) Stream(ctx context.Context, text string) (AudioStream, error) {
	m.record("Stream", text)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, text)
	}
	if m.SynthesizeFunc == nil {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	res, err := m.SynthesizeFunc(ctx, text)
	if err != nil {
		return nil, err
	}
	return newBufferStream(res.Audio, res.Format, m.ChunkBytes), nil
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", "")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close records the call.
func (m *Mock) Close() error {
	m.record("Close", "")
	return nil
}

func (m *Mock) record(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of times method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

var _ Provider = (*Mock)(nil)
