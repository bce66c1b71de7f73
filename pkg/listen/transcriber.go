package listen

import (
	"context"
	"sync"

	"github.com/teslashibe/go-parley/pkg/audioio"
)

// Transcriber converts one captured utterance to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio audioio.AudioChunk) (string, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, audio audioio.AudioChunk) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, audio audioio.AudioChunk) (string, error) {
	return f(ctx, audio)
}

// MockTranscriber returns scripted transcripts in order, repeating the last
// one when the script runs out.
type MockTranscriber struct {
	Texts []string
	Err   error

	mu    sync.Mutex
	calls []audioio.AudioChunk
}

// NewMockTranscriber creates a mock returning texts in order.
func NewMockTranscriber(texts ...string) *MockTranscriber {
	return &MockTranscriber{Texts: texts}
}

func (m *MockTranscriber) Transcribe(ctx context.Context, audio audioio.AudioChunk) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, audio)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Texts) == 0 {
		return "", nil
	}
	i := min(len(m.calls)-1, len(m.Texts)-1)
	return m.Texts[i], nil
}

// Calls returns the audio passed to each Transcribe call.
func (m *MockTranscriber) Calls() []audioio.AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audioio.AudioChunk, len(m.calls))
	copy(out, m.calls)
	return out
}
