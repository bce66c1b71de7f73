package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-parley/pkg/audioio"
	"github.com/teslashibe/go-parley/pkg/speech"
)

// DefaultFrameDuration is how much audio Speaker writes between token checks.
const DefaultFrameDuration = 40 * time.Millisecond

// ErrNilProvider is returned by NewSpeaker without a provider or sink factory.
var ErrNilProvider = errors.New("tts: nil provider or sink factory")

// SinkFactory opens a fresh output device.
type SinkFactory func() (audioio.Sink, error)

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithFrameDuration sets the playback granularity. Cancellation is honored
// within one frame.
func WithFrameDuration(d time.Duration) SpeakerOption {
	return func(s *Speaker) {
		if d > 0 {
			s.frame = d
		}
	}
}

// WithSpeakerLogger sets the speaker's logger.
func WithSpeakerLogger(logger *slog.Logger) SpeakerOption {
	return func(s *Speaker) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Speaker plays synthesized replies into an audio sink.
//
// The sink is opened lazily on the first Speak and kept between utterances.
// Reset closes it so the next Speak opens a new one.
type Speaker struct {
	provider Provider
	factory  SinkFactory
	frame    time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	sink audioio.Sink
}

// NewSpeaker creates a speaker for provider that plays through sinks made
// by factory.
func NewSpeaker(provider Provider, factory SinkFactory, opts ...SpeakerOption) (*Speaker, error) {
	if provider == nil || factory == nil {
		return nil, ErrNilProvider
	}
	s := &Speaker{
		provider: provider,
		factory:  factory,
		frame:    DefaultFrameDuration,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "tts.speaker")
	return s, nil
}

// Speak synthesizes text and plays it until done or tok is canceled. On
// cancellation buffered audio is discarded.
func (s *Speaker) Speak(tok *speech.Token, text string) (speech.Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return speech.OutcomeCompleted, speech.ErrEmptyText
	}
	if tok.Canceled() {
		return speech.OutcomeCanceled, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sink, err := s.openSink()
	if err != nil {
		return speech.OutcomeCompleted, err
	}

	start := time.Now()
	stream, err := s.provider.Stream(tok.Context(), text)
	if err != nil {
		if tok.Canceled() {
			return speech.OutcomeCanceled, nil
		}
		return speech.OutcomeCompleted, fmt.Errorf("tts: open stream: %w", err)
	}
	defer stream.Close()

	p := &playback{
		tok:  tok,
		sink: sink,
		in:   stream.Format(),
		out:  sink.Config(),
	}
	p.frameLen = int(float64(p.out.SampleRate)*s.frame.Seconds()) * max(p.out.Channels, 1)
	if p.frameLen <= 0 {
		p.frameLen = 1
	}

	canceled, err := p.run(stream)
	if canceled {
		s.logger.Debug("playback canceled", "period", tok.ID(), "frames", p.frames)
		return speech.OutcomeCanceled, nil
	}
	if err != nil {
		return speech.OutcomeCompleted, err
	}

	s.logger.Debug("playback complete",
		"period", tok.ID(),
		"frames", p.frames,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return speech.OutcomeCompleted, nil
}

// Reset closes the current sink. The next Speak opens a new one.
func (s *Speaker) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeSink()
}

// Close releases the sink. The provider is owned by the caller.
func (s *Speaker) Close() error {
	return s.Reset()
}

func (s *Speaker) openSink() (audioio.Sink, error) {
	if s.sink != nil {
		return s.sink, nil
	}
	sink, err := s.factory()
	if err != nil {
		return nil, fmt.Errorf("tts: open sink: %w", err)
	}
	if err := sink.Start(context.Background()); err != nil {
		sink.Close()
		return nil, fmt.Errorf("tts: start sink: %w", err)
	}
	s.logger.Debug("sink opened", "backend", sink.Name(), "sample_rate", sink.Config().SampleRate)
	s.sink = sink
	return sink, nil
}

func (s *Speaker) closeSink() error {
	if s.sink == nil {
		return nil
	}
	sink := s.sink
	s.sink = nil
	sink.Clear()
	return sink.Close()
}

// playback converts one stream to sink frames.
type playback struct {
	tok      *speech.Token
	sink     audioio.Sink
	in       AudioFormat
	out      audioio.Config
	frameLen int
	frames   int

	odd     []byte
	pending []int16
}

// run reports canceled=true if the token was canceled at any point.
func (p *playback) run(stream AudioStream) (canceled bool, err error) {
	for {
		if p.tok.Canceled() {
			return p.abort(), nil
		}
		data, err := stream.Read()
		if err != nil {
			if p.tok.Canceled() {
				return p.abort(), nil
			}
			return false, fmt.Errorf("tts: read stream: %w", err)
		}
		if data == nil {
			break
		}
		p.push(data)
		for len(p.pending) >= p.frameLen {
			if err := p.write(p.pending[:p.frameLen]); err != nil {
				return p.fail(err)
			}
			p.pending = p.pending[p.frameLen:]
		}
	}

	if len(p.pending) > 0 {
		if err := p.write(p.pending); err != nil {
			return p.fail(err)
		}
	}

	if err := p.sink.Flush(p.tok.Context()); err != nil {
		return p.fail(fmt.Errorf("tts: flush: %w", err))
	}
	return false, nil
}

func (p *playback) push(data []byte) {
	if len(p.odd) > 0 {
		data = append(p.odd, data...)
		p.odd = nil
	}
	if len(data)%2 == 1 {
		p.odd = []byte{data[len(data)-1]}
		data = data[:len(data)-1]
	}
	samples := audioio.BytesToSamples(data)
	if p.in.Channels == 2 {
		samples = audioio.StereoToMono(samples)
	}
	if p.in.SampleRate > 0 && p.in.SampleRate != p.out.SampleRate {
		samples = audioio.Resample(samples, p.in.SampleRate, p.out.SampleRate)
	}
	if p.out.Channels == 2 {
		samples = audioio.MonoToStereo(samples)
	}
	p.pending = append(p.pending, samples...)
}

// write sends one frame.
func (p *playback) write(frame []int16) error {
	if p.tok.Canceled() {
		return context.Canceled
	}
	chunk := audioio.AudioChunk{
		Samples:    append([]int16(nil), frame...),
		SampleRate: p.out.SampleRate,
		Channels:   p.out.Channels,
	}
	if err := p.sink.Write(p.tok.Context(), chunk); err != nil {
		return fmt.Errorf("tts: write sink: %w", err)
	}
	p.frames++
	return nil
}

// fail treats any error after cancellation as cancellation.
func (p *playback) fail(err error) (bool, error) {
	if p.tok.Canceled() {
		return p.abort(), nil
	}
	return false, err
}

// abort discards queued audio and reports cancellation.
func (p *playback) abort() bool {
	p.pending = nil
	p.sink.Clear()
	return true
}

var (
	_ speech.Speaker  = (*Speaker)(nil)
	_ speech.Resetter = (*Speaker)(nil)
)
