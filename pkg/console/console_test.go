package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-parley/pkg/speech"
)

func TestListenerLines(t *testing.T) {
	l := NewListener(strings.NewReader("hello\n\n  what time is it? \n"))
	ctx := context.Background()
	opts := speech.CaptureOptions{Timeout: time.Second}

	want := []speech.Capture{
		speech.Recognized("hello"),
		speech.Unrecognized(ErrBlankLine),
		speech.Recognized("what time is it?"),
	}
	for i, w := range want {
		got := l.Capture(ctx, opts)
		if got.Status != w.Status || got.Text != w.Text {
			t.Errorf("capture %d: expected %v %q, got %v %q", i, w.Status, w.Text, got.Status, got.Text)
		}
	}

	c := l.Capture(ctx, opts)
	if c.Status != speech.CaptureDeviceFault || !errors.Is(c.Err, io.EOF) {
		t.Errorf("Expected device fault at end of input, got %v (%v)", c.Status, c.Err)
	}
}

func TestListenerTimeoutAndCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	var out bytes.Buffer
	l := NewListener(r, WithPrompt(&out, "> "))

	for range 2 {
		c := l.Capture(context.Background(), speech.CaptureOptions{Timeout: 20 * time.Millisecond})
		if c.Status != speech.CaptureEmpty {
			t.Fatalf("Expected empty on timeout, got %v", c.Status)
		}
	}
	if out.String() != "> " {
		t.Errorf("Expected a single prompt, got %q", out.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if c := l.Capture(ctx, speech.CaptureOptions{Interrupt: true}); c.Status != speech.CaptureEmpty {
		t.Errorf("Expected empty on cancel, got %v", c.Status)
	}
}

func TestSpeakerPrints(t *testing.T) {
	var out bytes.Buffer
	s := NewSpeaker(&out, WithRate(0))

	outcome, err := s.Speak(speech.NewToken(context.Background()), "Hello  there,\nfriend.")
	if err != nil || outcome != speech.OutcomeCompleted {
		t.Fatalf("Expected completed, got %v (%v)", outcome, err)
	}
	if out.String() != "Assistant: Hello there, friend.\n" {
		t.Errorf("Unexpected output %q", out.String())
	}

	if _, err := s.Speak(speech.NewToken(context.Background()), "   "); !errors.Is(err, speech.ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText, got %v", err)
	}
}

func TestSpeakerCanceled(t *testing.T) {
	var out bytes.Buffer
	s := NewSpeaker(&out, WithRate(600), WithPrefix(""))

	tok := speech.NewToken(context.Background())
	tok.Cancel()
	if outcome, _ := s.Speak(tok, "never printed"); outcome != speech.OutcomeCanceled {
		t.Errorf("Expected canceled, got %v", outcome)
	}
	if out.Len() != 0 {
		t.Errorf("Expected no output, got %q", out.String())
	}

	text := strings.Repeat("word ", 20)
	tok = speech.NewToken(context.Background())
	time.AfterFunc(150*time.Millisecond, tok.Cancel)

	start := time.Now()
	outcome, err := s.Speak(tok, text)
	if err != nil || outcome != speech.OutcomeCanceled {
		t.Fatalf("Expected canceled, got %v (%v)", outcome, err)
	}
	if time.Since(start) > time.Second {
		t.Error("Expected prompt return after cancel")
	}
	printed := strings.Fields(strings.TrimSuffix(out.String(), "...\n"))
	if len(printed) == 0 || len(printed) >= 20 {
		t.Errorf("Expected a partial reply, got %d words", len(printed))
	}
	if !strings.HasSuffix(out.String(), " ...\n") {
		t.Errorf("Expected interruption marker, got %q", out.String())
	}
}
