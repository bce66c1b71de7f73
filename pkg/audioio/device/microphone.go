package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/teslashibe/go-parley/pkg/audioio"
)

// chunkBacklog bounds how many unread chunks are kept before new ones are
// dropped.
const chunkBacklog = 64

// Microphone captures PCM16 from the default (or named) input device.
type Microphone struct {
	cfg    audioio.Config
	logger *slog.Logger

	mctx   *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex
	running bool
	closed  bool
	stopCh  chan struct{}
	pending []byte
	chunks  chan audioio.AudioChunk

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// OpenMicrophone initializes the capture device. Capture begins on Start.
func OpenMicrophone(cfg audioio.Config, logger *slog.Logger) (*Microphone, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{
		ThreadPriority: malgo.ThreadPriorityRealtime,
	}, func(msg string) {
		logger.Debug("miniaudio", "message", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("device: init audio context: %w", err)
	}

	m := &Microphone{
		cfg:    cfg,
		logger: logger.With("component", "device.microphone"),
		mctx:   mctx,
		stopCh: make(chan struct{}),
		chunks: make(chan audioio.AudioChunk, chunkBacklog),
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(cfg.Channels)
	devCfg.SampleRate = uint32(cfg.SampleRate)
	devCfg.PeriodSizeInMilliseconds = uint32(cfg.BufferDuration.Milliseconds())

	if cfg.Device != "" {
		id, err := findDevice(mctx, cfg.Device)
		if err != nil {
			m.release()
			return nil, err
		}
		devCfg.Capture.DeviceID = id.Pointer()
	}

	dev, err := malgo.InitDevice(mctx.Context, devCfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.onData(input)
		},
	})
	if err != nil {
		m.release()
		return nil, fmt.Errorf("device: init capture device: %w", err)
	}
	m.device = dev

	return m, nil
}

func findDevice(mctx *malgo.AllocatedContext, name string) (*malgo.DeviceID, error) {
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("device: list capture devices: %w", err)
	}
	for i := range infos {
		if infos[i].Name() == name {
			id := infos[i].ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("device: capture device %q not found", name)
}

// onData runs on the audio thread.
func (m *Microphone) onData(input []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}

	m.pending = append(m.pending, input...)
	size := m.cfg.BufferBytes()
	for len(m.pending) >= size {
		chunk := audioio.AudioChunk{
			Samples:    audioio.BytesToSamples(m.pending[:size]),
			SampleRate: m.cfg.SampleRate,
			Channels:   m.cfg.Channels,
		}
		m.pending = m.pending[size:]
		select {
		case m.chunks <- chunk:
		default:
			m.overruns.Add(1)
		}
	}
}

// Start begins capture.
func (m *Microphone) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return io.ErrClosedPipe
	}
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.pending = m.pending[:0]
	m.mu.Unlock()

	// Stale chunks from an earlier run would look like fresh speech.
	for drained := false; !drained; {
		select {
		case <-m.chunks:
		default:
			drained = true
		}
	}

	if err := m.device.Start(); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return fmt.Errorf("device: start capture: %w", err)
	}
	m.logger.Debug("capture started", "sample_rate", m.cfg.SampleRate)
	return nil
}

// Stop halts capture.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	if err := m.device.Stop(); err != nil {
		return fmt.Errorf("device: stop capture: %w", err)
	}
	return nil
}

// Read returns the next captured chunk.
func (m *Microphone) Read(ctx context.Context) (audioio.AudioChunk, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return audioio.AudioChunk{}, io.ErrClosedPipe
	}
	if !m.running {
		m.mu.Unlock()
		return audioio.AudioChunk{}, io.EOF
	}
	stop := m.stopCh
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return audioio.AudioChunk{}, ctx.Err()
	case <-stop:
		return audioio.AudioChunk{}, io.EOF
	case chunk := <-m.chunks:
		m.chunksRead.Add(1)
		m.samplesRead.Add(int64(len(chunk.Samples)))
		return chunk, nil
	}
}

// Config returns the capture format.
func (m *Microphone) Config() audioio.Config { return m.cfg }

// Name returns "device".
func (m *Microphone) Name() string { return string(audioio.BackendDevice) }

// Close releases the device and the audio context.
func (m *Microphone) Close() error {
	m.Stop()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.release()
	return nil
}

func (m *Microphone) release() {
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.mctx != nil {
		_ = m.mctx.Uninit()
		m.mctx.Free()
		m.mctx = nil
	}
}

// Stats returns capture statistics.
func (m *Microphone) Stats() audioio.SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	return audioio.SourceStats{
		ChunksRead:  m.chunksRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     string(audioio.BackendDevice),
	}
}

var _ audioio.SourceWithStats = (*Microphone)(nil)
