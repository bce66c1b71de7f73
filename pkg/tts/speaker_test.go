package tts_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-parley/pkg/audioio"
	"github.com/teslashibe/go-parley/pkg/speech"
	"github.com/teslashibe/go-parley/pkg/tts"
)

func sinkConfig(rate int) audioio.Config {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	cfg.SampleRate = rate
	return cfg
}

// countingFactory hands out mock sinks and remembers them.
type countingFactory struct {
	rate  int
	sinks []*audioio.MockSink
	err   error
}

func (f *countingFactory) open() (audioio.Sink, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := audioio.NewMockSink(sinkConfig(f.rate), nil)
	f.sinks = append(f.sinks, s)
	return s, nil
}

// cancelingSink cancels the period after a number of writes.
type cancelingSink struct {
	*audioio.MockSink
	tok     *speech.Token
	after   int64
	writes  atomic.Int64
	cleared atomic.Bool
}

func (s *cancelingSink) Write(ctx context.Context, chunk audioio.AudioChunk) error {
	if err := s.MockSink.Write(ctx, chunk); err != nil {
		return err
	}
	if s.writes.Add(1) == s.after {
		s.tok.Cancel()
	}
	return nil
}

func (s *cancelingSink) Clear() error {
	s.cleared.Store(true)
	return s.MockSink.Clear()
}

func TestSpeakerCompletes(t *testing.T) {
	f := &countingFactory{rate: 24000}
	sp, err := tts.NewSpeaker(tts.NewMock(), f.open)
	if err != nil {
		t.Fatalf("NewSpeaker: %v", err)
	}
	defer sp.Close()

	// 5 chars = 100ms = 2400 samples = 40ms + 40ms + 20ms frames
	out, err := sp.Speak(speech.NewToken(context.Background()), "hello")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if out != speech.OutcomeCompleted {
		t.Errorf("expected completed, got %v", out)
	}

	stats := f.sinks[0].Stats()
	if stats.ChunksWritten != 3 {
		t.Errorf("expected 3 frames, got %d", stats.ChunksWritten)
	}
	if stats.SamplesWritten != 2400 {
		t.Errorf("expected 2400 samples, got %d", stats.SamplesWritten)
	}
	if stats.BufferedSamples != 0 {
		t.Errorf("expected flushed sink, got %d buffered", stats.BufferedSamples)
	}
}

func TestSpeakerResamples(t *testing.T) {
	f := &countingFactory{rate: 16000}
	sp, _ := tts.NewSpeaker(tts.NewMock(), f.open)

	if _, err := sp.Speak(speech.NewToken(context.Background()), "hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	got := f.sinks[0].Stats().SamplesWritten
	if got < 1590 || got > 1600 {
		t.Errorf("expected about 1600 samples at 16kHz, got %d", got)
	}
}

func TestSpeakerCanceledBeforeStart(t *testing.T) {
	mock := tts.NewMock()
	f := &countingFactory{rate: 24000}
	sp, _ := tts.NewSpeaker(mock, f.open)

	tok := speech.NewToken(context.Background())
	tok.Cancel()

	out, err := sp.Speak(tok, "hello")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if out != speech.OutcomeCanceled {
		t.Errorf("expected canceled, got %v", out)
	}
	if mock.CallCount("Stream") != 0 {
		t.Errorf("expected no synthesis after cancel")
	}
}

func TestSpeakerCanceledMidUtterance(t *testing.T) {
	tok := speech.NewToken(context.Background())
	sink := &cancelingSink{
		MockSink: audioio.NewMockSink(sinkConfig(24000), nil),
		tok:      tok,
		after:    2,
	}
	sp, _ := tts.NewSpeaker(tts.NewMock(), func() (audioio.Sink, error) { return sink, nil },
		tts.WithFrameDuration(20*time.Millisecond))

	// 50 chars = 1s = 50 frames of 20ms
	out, err := sp.Speak(tok, "this sentence is long enough to need many frames..")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if out != speech.OutcomeCanceled {
		t.Errorf("expected canceled, got %v", out)
	}
	if n := sink.writes.Load(); n != 2 {
		t.Errorf("expected no writes after cancel, got %d", n)
	}
	if !sink.cleared.Load() {
		t.Error("expected sink to be cleared")
	}
}

func TestSpeakerEmptyText(t *testing.T) {
	f := &countingFactory{rate: 24000}
	sp, _ := tts.NewSpeaker(tts.NewMock(), f.open)

	_, err := sp.Speak(speech.NewToken(context.Background()), "   ")
	if !errors.Is(err, speech.ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
	if len(f.sinks) != 0 {
		t.Error("expected no sink to be opened")
	}
}

func TestSpeakerErrors(t *testing.T) {
	boom := errors.New("synth failed")

	t.Run("provider", func(t *testing.T) {
		f := &countingFactory{rate: 24000}
		sp, _ := tts.NewSpeaker(tts.WithError(boom), f.open)
		_, err := sp.Speak(speech.NewToken(context.Background()), "hi")
		if !errors.Is(err, boom) {
			t.Errorf("expected provider error, got %v", err)
		}
	})

	t.Run("sink", func(t *testing.T) {
		f := &countingFactory{err: boom}
		sp, _ := tts.NewSpeaker(tts.NewMock(), f.open)
		_, err := sp.Speak(speech.NewToken(context.Background()), "hi")
		if !errors.Is(err, boom) {
			t.Errorf("expected sink error, got %v", err)
		}
	})

	t.Run("nil provider", func(t *testing.T) {
		if _, err := tts.NewSpeaker(nil, nil); !errors.Is(err, tts.ErrNilProvider) {
			t.Errorf("expected ErrNilProvider, got %v", err)
		}
	})
}

func TestSpeakerReset(t *testing.T) {
	f := &countingFactory{rate: 24000}
	sp, _ := tts.NewSpeaker(tts.NewMock(), f.open)
	ctx := context.Background()

	if _, err := sp.Speak(speech.NewToken(ctx), "one"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if _, err := sp.Speak(speech.NewToken(ctx), "two"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(f.sinks) != 1 {
		t.Fatalf("expected sink reuse, got %d sinks", len(f.sinks))
	}

	if err := sp.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if f.sinks[0].Stats().Running {
		t.Error("expected old sink to be stopped")
	}

	if _, err := sp.Speak(speech.NewToken(ctx), "three"); err != nil {
		t.Fatalf("Speak after reset: %v", err)
	}
	if len(f.sinks) != 2 {
		t.Errorf("expected a fresh sink after reset, got %d", len(f.sinks))
	}
}
