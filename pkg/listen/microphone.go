// Package listen implements speech.Listener over an audioio.Source: an
// energy VAD finds the utterance and a Transcriber turns it into text.
//
// Timeouts are measured in captured audio, not wall-clock time, so a
// capture from a paced device and from an unpaced mock behave the same.
package listen

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-parley/pkg/audioio"
	"github.com/teslashibe/go-parley/pkg/speech"
)

// Microphone defaults.
const (
	DefaultCalibration = time.Second
	DefaultPreroll     = 300 * time.Millisecond
)

// Microphone captures one utterance per Capture call.
type Microphone struct {
	source      audioio.Source
	transcriber Transcriber
	vadCfg      VADConfig
	calibration time.Duration
	preroll     time.Duration
	logger      *slog.Logger

	// one capture at a time; the source is not shareable
	mu sync.Mutex
}

// MicrophoneOption configures a Microphone.
type MicrophoneOption func(*Microphone)

// WithVAD replaces the detector configuration.
func WithVAD(cfg VADConfig) MicrophoneOption {
	return func(m *Microphone) { m.vadCfg = cfg }
}

// WithCalibration sets how much ambient audio is measured before each
// capture. Zero disables calibration.
func WithCalibration(d time.Duration) MicrophoneOption {
	return func(m *Microphone) { m.calibration = d }
}

// WithPreroll sets how much audio before the detected onset is kept.
func WithPreroll(d time.Duration) MicrophoneOption {
	return func(m *Microphone) { m.preroll = d }
}

// WithMicrophoneLogger sets the logger.
func WithMicrophoneLogger(logger *slog.Logger) MicrophoneOption {
	return func(m *Microphone) { m.logger = logger }
}

// New creates a Microphone reading from source.
func New(source audioio.Source, transcriber Transcriber, opts ...MicrophoneOption) (*Microphone, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if transcriber == nil {
		return nil, ErrNilTranscriber
	}
	m := &Microphone{
		source:      source,
		transcriber: transcriber,
		vadCfg:      DefaultVADConfig(),
		calibration: DefaultCalibration,
		preroll:     DefaultPreroll,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "listen.microphone")
	return m, nil
}

// Capture listens for one utterance. It starts the source and stops it
// again before returning.
func (m *Microphone) Capture(ctx context.Context, opts speech.CaptureOptions) speech.Capture {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return speech.Empty()
	}
	if err := m.source.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return speech.Empty()
		}
		m.logger.Error("start capture failed", "error", err)
		return speech.DeviceFault(err)
	}
	defer m.source.Stop()

	rate := m.source.Config().SampleRate
	vad := NewVAD(m.vadCfg, rate)

	if m.calibration > 0 {
		noise, c, ok := m.calibrate(ctx)
		if !ok {
			return c
		}
		vad.Calibrate(noise)
		on, off := vad.Thresholds()
		m.logger.Debug("calibrated", "noise_dbfs", noise, "on_dbfs", on, "off_dbfs", off)
	}

	utterance, c, ok := m.record(ctx, vad, rate, opts)
	if !ok {
		return c
	}

	audio := audioio.AudioChunk{Samples: utterance, SampleRate: rate, Channels: 1}
	text, err := m.transcriber.Transcribe(ctx, audio)
	if err != nil {
		if ctx.Err() != nil {
			return speech.Empty()
		}
		m.logger.Debug("transcription failed", "error", err, "audio", audio.Duration())
		return speech.Unrecognized(err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return speech.Unrecognized(ErrNoTranscript)
	}
	return speech.Recognized(text)
}

// calibrate measures the ambient level. ok is false when c should be
// returned instead.
func (m *Microphone) calibrate(ctx context.Context) (noise float64, c speech.Capture, ok bool) {
	var (
		heard   time.Duration
		samples []int16
	)
	for heard < m.calibration {
		chunk, err := m.source.Read(ctx)
		if err != nil {
			return 0, m.readFailure(ctx, err), false
		}
		heard += chunk.Duration()
		samples = append(samples, mono(chunk)...)
	}
	return audioio.DBFS(samples), speech.Capture{}, true
}

// record waits for onset and returns the utterance. ok is false when c
// should be returned instead.
func (m *Microphone) record(ctx context.Context, vad *VAD, rate int, opts speech.CaptureOptions) ([]int16, speech.Capture, bool) {
	prerollN := int(m.preroll.Seconds() * float64(rate))

	var (
		pre       []int16
		utterance []int16
		waited    time.Duration
		phrase    time.Duration
		recording bool
	)
	for {
		chunk, err := m.source.Read(ctx)
		if err != nil {
			return nil, m.readFailure(ctx, err), false
		}
		samples := mono(chunk)
		active := vad.Feed(samples)
		d := chunk.Duration()

		if !recording {
			pre = append(pre, samples...)
			if n := len(pre); n > prerollN {
				pre = append(pre[:0], pre[n-prerollN:]...)
			}
			if active {
				recording = true
				utterance = append(utterance, pre...)
				phrase = time.Duration(len(pre)) * time.Second / time.Duration(rate)
				m.logger.Debug("speech started", "level_dbfs", vad.Level(), "waited", waited)
				continue
			}
			waited += d
			if opts.Timeout > 0 && waited >= opts.Timeout {
				return nil, speech.Empty(), false
			}
			continue
		}

		utterance = append(utterance, samples...)
		phrase += d
		if !active {
			m.logger.Debug("speech ended", "phrase", phrase)
			return utterance, speech.Capture{}, true
		}
		if opts.PhraseLimit > 0 && phrase >= opts.PhraseLimit {
			m.logger.Debug("phrase limit reached", "phrase", phrase)
			return utterance, speech.Capture{}, true
		}
	}
}

func (m *Microphone) readFailure(ctx context.Context, err error) speech.Capture {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return speech.Empty()
	}
	m.logger.Error("read capture failed", "error", err)
	return speech.DeviceFault(err)
}

// Close closes the underlying source.
func (m *Microphone) Close() error {
	return m.source.Close()
}

func mono(c audioio.AudioChunk) []int16 {
	if c.Channels == 2 {
		return audioio.StereoToMono(c.Samples)
	}
	return c.Samples
}

var _ speech.Listener = (*Microphone)(nil)
