package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/teslashibe/go-parley/pkg/audioio"
)

const (
	// highWater is how far Write may run ahead of playback.
	highWater = 120 * time.Millisecond
	pollEvery = 5 * time.Millisecond
)

// oto supports a single context per process, so every Speaker shares it.
var (
	otoMu       sync.Mutex
	otoCtx      *oto.Context
	otoRate     int
	otoChannels int
)

func sharedContext(rate, channels int, buffer time.Duration) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if rate != otoRate || channels != otoChannels {
			return nil, fmt.Errorf("device: playback already opened at %d Hz x%d", otoRate, otoChannels)
		}
		return otoCtx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   buffer,
	})
	if err != nil {
		return nil, fmt.Errorf("device: init playback: %w", err)
	}
	<-ready
	otoCtx, otoRate, otoChannels = ctx, rate, channels
	return ctx, nil
}

// Speaker plays PCM16 through the default output device.
type Speaker struct {
	cfg    audioio.Config
	logger *slog.Logger
	player *oto.Player
	queue  *pcmQueue

	mu      sync.Mutex
	running bool
	closed  bool

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// OpenSpeaker prepares playback at cfg's format.
func OpenSpeaker(cfg audioio.Config, logger *slog.Logger) (*Speaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, err := sharedContext(cfg.SampleRate, cfg.Channels, 2*cfg.BufferDuration)
	if err != nil {
		return nil, err
	}

	q := &pcmQueue{}
	return &Speaker{
		cfg:    cfg,
		logger: logger.With("component", "device.speaker"),
		player: ctx.NewPlayer(q),
		queue:  q,
	}, nil
}

// Start enables Write.
func (s *Speaker) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	s.running = true
	return nil
}

// Stop discards queued audio and disables Write.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return s.Clear()
}

// Write queues a chunk, blocking while more than highWater is queued.
func (s *Speaker) Write(ctx context.Context, chunk audioio.AudioChunk) error {
	s.mu.Lock()
	ok := s.running && !s.closed
	s.mu.Unlock()
	if !ok {
		return io.ErrClosedPipe
	}

	s.queue.push(audioio.SamplesToBytes(chunk.Samples))
	s.kick()
	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))

	limit := s.bytesFor(highWater)
	if s.queue.len() <= limit {
		return nil
	}
	t := time.NewTicker(pollEvery)
	defer t.Stop()
	for s.queue.len() > limit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.kick()
		}
	}
	return s.player.Err()
}

// Flush waits until queued audio has reached the device.
func (s *Speaker) Flush(ctx context.Context) error {
	t := time.NewTicker(pollEvery)
	defer t.Stop()
	for s.queue.len() > 0 || s.player.IsPlaying() {
		s.kick()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return s.player.Err()
}

// Clear drops queued audio and oto's internal buffer.
func (s *Speaker) Clear() error {
	s.queue.reset()
	s.player.Pause()
	if _, err := s.player.Seek(0, io.SeekCurrent); err != nil {
		return fmt.Errorf("device: clear playback: %w", err)
	}
	return nil
}

// kick restarts a player that paused after draining the queue.
func (s *Speaker) kick() {
	if s.queue.len() == 0 || s.player.IsPlaying() {
		return
	}
	// Seeking clears the player's sticky end-of-stream flag.
	s.player.Seek(0, io.SeekCurrent)
	s.player.Play()
}

func (s *Speaker) bytesFor(d time.Duration) int {
	return int(d.Seconds()*float64(s.cfg.SampleRate)) * s.cfg.Channels * 2
}

// Config returns the playback format.
func (s *Speaker) Config() audioio.Config { return s.cfg }

// Name returns "device".
func (s *Speaker) Name() string { return string(audioio.BackendDevice) }

// Close stops playback. The shared oto context stays alive for later
// speakers.
func (s *Speaker) Close() error {
	s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Stats returns playback statistics.
func (s *Speaker) Stats() audioio.SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return audioio.SinkStats{
		ChunksWritten:   s.chunksWritten.Load(),
		SamplesWritten:  s.samplesWritten.Load(),
		Running:         running,
		Backend:         string(audioio.BackendDevice),
		BufferedSamples: int64(s.queue.len() / 2),
	}
}

var _ audioio.SinkWithStats = (*Speaker)(nil)

// pcmQueue is the player's source. Read reports io.EOF when empty so oto
// pauses instead of spinning; kick resumes it.
type pcmQueue struct {
	mu  sync.Mutex
	buf []byte
}

func (q *pcmQueue) push(b []byte) {
	q.mu.Lock()
	q.buf = append(q.buf, b...)
	q.mu.Unlock()
}

func (q *pcmQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *pcmQueue) reset() {
	q.mu.Lock()
	q.buf = q.buf[:0]
	q.mu.Unlock()
}

func (q *pcmQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}

// Seek lets the player reset its buffer; the queue has no position.
func (q *pcmQueue) Seek(offset int64, whence int) (int64, error) {
	return 0, nil
}
