package turn

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/teslashibe/go-parley/pkg/speech"
)

type funcListener func(ctx context.Context, opts speech.CaptureOptions) speech.Capture

func (f funcListener) Capture(ctx context.Context, opts speech.CaptureOptions) speech.Capture {
	return f(ctx, opts)
}

func TestMonitorReturnsFirstRecognized(t *testing.T) {
	script := []speech.Capture{
		speech.Empty(),
		speech.Unrecognized(errors.New("mumble")),
		speech.Recognized("  "),
		speech.Recognized(" wait a second "),
		speech.Recognized("never reached"),
	}
	var calls atomic.Int32
	l := funcListener(func(ctx context.Context, opts speech.CaptureOptions) speech.Capture {
		if !opts.Interrupt {
			t.Error("monitor capture not marked as interrupt")
		}
		n := calls.Add(1)
		return script[n-1]
	})

	m := NewMonitor(l, speech.DefaultCaptureOptions(), nil)
	tok := speech.NewToken(context.Background())
	defer tok.Cancel()

	sig, ok := m.Watch(tok)
	if !ok {
		t.Fatal("Watch() reported no interrupt")
	}
	if sig.Text != "wait a second" {
		t.Errorf("Text = %q", sig.Text)
	}
	if sig.Period != tok.ID() {
		t.Errorf("Period = %d, want %d", sig.Period, tok.ID())
	}
	if calls.Load() != 4 {
		t.Errorf("captures = %d, want 4", calls.Load())
	}
}

func TestMonitorNoCaptureAfterCancel(t *testing.T) {
	var calls atomic.Int32
	l := funcListener(func(context.Context, speech.CaptureOptions) speech.Capture {
		calls.Add(1)
		return speech.Recognized("hello")
	})

	m := NewMonitor(l, speech.DefaultCaptureOptions(), nil)
	tok := speech.NewToken(context.Background())
	tok.Cancel()

	if _, ok := m.Watch(tok); ok {
		t.Error("Watch() on canceled token reported an interrupt")
	}
	if calls.Load() != 0 {
		t.Errorf("captures after cancel = %d", calls.Load())
	}
}

func TestMonitorDiscardsResultAfterCancel(t *testing.T) {
	tok := speech.NewToken(context.Background())
	l := funcListener(func(context.Context, speech.CaptureOptions) speech.Capture {
		tok.Cancel()
		return speech.Recognized("too late")
	})

	m := NewMonitor(l, speech.DefaultCaptureOptions(), nil)
	if _, ok := m.Watch(tok); ok {
		t.Error("result completing after cancellation was reported")
	}
}

func TestMonitorStopsOnCancelMidCapture(t *testing.T) {
	started := make(chan struct{})
	var calls atomic.Int32
	l := funcListener(func(ctx context.Context, _ speech.CaptureOptions) speech.Capture {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-ctx.Done()
		return speech.Empty()
	})

	m := NewMonitor(l, speech.DefaultCaptureOptions(), nil)
	tok := speech.NewToken(context.Background())

	done := make(chan bool)
	go func() {
		_, ok := m.Watch(tok)
		done <- ok
	}()

	<-started
	tok.Cancel()
	if <-done {
		t.Error("Watch() reported an interrupt after cancel")
	}
	if calls.Load() != 1 {
		t.Errorf("captures = %d, want 1", calls.Load())
	}
}

func TestMonitorDisarmsOnDeviceFault(t *testing.T) {
	var calls atomic.Int32
	l := funcListener(func(context.Context, speech.CaptureOptions) speech.Capture {
		calls.Add(1)
		return speech.DeviceFault(errors.New("gone"))
	})

	m := NewMonitor(l, speech.DefaultCaptureOptions(), nil)
	tok := speech.NewToken(context.Background())
	defer tok.Cancel()

	if _, ok := m.Watch(tok); ok {
		t.Error("device fault reported as interrupt")
	}
	if calls.Load() != 1 {
		t.Errorf("captures = %d, want 1", calls.Load())
	}
}
