package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource replays scripted audio. Once the script runs out it produces
// silence, or a sine wave when configured with WithSineWave.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	queue    []int16
	paced    bool
	startErr error
	readErr  error
	errAfter int64

	phase     float64
	frequency float64
	amplitude float64

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	starts      atomic.Int64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave fills unscripted time with a tone instead of silence.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithScript queues mono segments to be played back in order.
func WithScript(segments ...[]int16) MockSourceOption {
	return func(m *MockSource) {
		for _, s := range segments {
			m.queue = append(m.queue, s...)
		}
	}
}

// WithPacing makes Read wait one buffer duration per chunk, like hardware.
func WithPacing() MockSourceOption {
	return func(m *MockSource) { m.paced = true }
}

// WithReadError makes Read fail with err after n chunks.
func WithReadError(n int, err error) MockSourceOption {
	return func(m *MockSource) {
		m.errAfter = int64(n)
		m.readErr = err
	}
}

// WithStartError makes Start fail with err.
func WithStartError(err error) MockSourceOption {
	return func(m *MockSource) { m.startErr = err }
}

// NewMockSource creates a mock capture device.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{
		cfg:       cfg,
		logger:    logger.With("component", "audioio.mock_source"),
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Feed appends mono segments to the script.
func (m *MockSource) Feed(segments ...[]int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range segments {
		m.queue = append(m.queue, s...)
	}
}

// Remaining returns the number of scripted samples not yet read.
func (m *MockSource) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Starts returns how many times Start succeeded.
func (m *MockSource) Starts() int {
	return int(m.starts.Load())
}

// Start begins capture.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.startErr != nil {
		return m.startErr
	}
	if !m.running {
		m.running = true
		m.starts.Add(1)
		m.logger.Debug("started", "sample_rate", m.cfg.SampleRate, "scripted", len(m.queue))
	}
	return nil
}

// Stop halts capture. Scripted audio is kept for the next Start.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Read returns the next chunk.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	if err := ctx.Err(); err != nil {
		return AudioChunk{}, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return AudioChunk{}, io.ErrClosedPipe
	}
	if !m.running {
		m.mu.Unlock()
		return AudioChunk{}, io.EOF
	}
	if m.readErr != nil && m.chunksRead.Load() >= m.errAfter {
		err := m.readErr
		m.mu.Unlock()
		return AudioChunk{}, err
	}
	chunk := m.nextChunk()
	paced := m.paced
	m.mu.Unlock()

	if paced {
		t := time.NewTimer(m.cfg.BufferDuration)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return AudioChunk{}, ctx.Err()
		case <-t.C:
		}
	}

	m.chunksRead.Add(1)
	m.samplesRead.Add(int64(len(chunk.Samples)))
	return chunk, nil
}

// nextChunk must be called with mu held.
func (m *MockSource) nextChunk() AudioChunk {
	n := m.cfg.BufferSize()
	mono := make([]int16, n)
	k := copy(mono, m.queue)
	m.queue = m.queue[k:]

	if m.frequency > 0 {
		for i := k; i < n; i++ {
			mono[i] = int16(m.amplitude * 32767 * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate)))
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}

	samples := mono
	if m.cfg.Channels == 2 {
		samples = MonoToStereo(mono)
	}
	return AudioChunk{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels}
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config { return m.cfg }

// Name returns "mock".
func (m *MockSource) Name() string { return string(BackendMock) }

// Close releases the source.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.running = false
	return nil
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	return SourceStats{
		ChunksRead:  m.chunksRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Running:     running,
		Backend:     string(BackendMock),
	}
}

var _ SourceWithStats = (*MockSource)(nil)

// MockSink records what would have been played.
type MockSink struct {
	cfg    Config
	logger *slog.Logger
	paced  bool

	mu      sync.Mutex
	running bool
	closed  bool
	buffer  int64
	played  []int16
	clears  int

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// MockSinkOption configures a MockSink.
type MockSinkOption func(*MockSink)

// WithRealtime makes Write block for the chunk's duration, like hardware.
func WithRealtime() MockSinkOption {
	return func(m *MockSink) { m.paced = true }
}

// NewMockSink creates a mock playback device.
func NewMockSink(cfg Config, logger *slog.Logger, opts ...MockSinkOption) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSink{cfg: cfg, logger: logger.With("component", "audioio.mock_sink")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins accepting audio.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return io.ErrClosedPipe
	}
	m.running = true
	return nil
}

// Stop halts playback.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Write queues a chunk and records its samples.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	m.mu.Lock()
	if m.closed || !m.running {
		m.mu.Unlock()
		return io.ErrClosedPipe
	}
	m.buffer += int64(len(chunk.Samples))
	m.played = append(m.played, chunk.Samples...)
	m.mu.Unlock()

	m.chunksWritten.Add(1)
	m.samplesWritten.Add(int64(len(chunk.Samples)))

	if m.paced {
		t := time.NewTimer(chunk.Duration())
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// Flush marks queued audio as played.
func (m *MockSink) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = 0
	return nil
}

// Clear discards queued audio.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = 0
	m.clears++
	return nil
}

// Played returns a copy of every sample written so far.
func (m *MockSink) Played() []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int16(nil), m.played...)
}

// Clears returns how many times Clear was called.
func (m *MockSink) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config { return m.cfg }

// Name returns "mock".
func (m *MockSink) Name() string { return string(BackendMock) }

// Close releases the sink.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.running = false
	return nil
}

// Stats returns sink statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SinkStats{
		ChunksWritten:   m.chunksWritten.Load(),
		SamplesWritten:  m.samplesWritten.Load(),
		Running:         m.running,
		Backend:         string(BackendMock),
		BufferedSamples: m.buffer,
	}
}

var _ SinkWithStats = (*MockSink)(nil)
