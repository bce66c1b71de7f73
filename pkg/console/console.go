// Package console provides text-mode conversation ports: a Listener that
// reads lines from stdin and a Speaker that types replies to stdout at a
// speaking pace. Typing a line while a reply is being printed interrupts
// it, the same way speech does in voice mode.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-parley/pkg/speech"
)

// ErrBlankLine is the Unrecognized cause for an empty input line.
var ErrBlankLine = errors.New("console: blank line")

// Listener reads one line per Capture.
type Listener struct {
	in     io.Reader
	out    io.Writer
	prompt string
	logger *slog.Logger

	once  sync.Once
	lines chan string
	err   error // set before lines is closed

	mu       sync.Mutex
	prompted bool
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithPrompt prints prompt to out before waiting for a new line. Interrupt
// captures never print it.
func WithPrompt(out io.Writer, prompt string) ListenerOption {
	return func(l *Listener) {
		l.out = out
		l.prompt = prompt
	}
}

// WithListenerLogger sets the logger.
func WithListenerLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) { l.logger = logger }
}

// NewListener reads lines from in. The reader goroutine starts on the first
// Capture and runs until in is exhausted.
func NewListener(in io.Reader, opts ...ListenerOption) *Listener {
	l := &Listener{
		in:    in,
		lines: make(chan string),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "console.listener")
	return l
}

func (l *Listener) scan() {
	sc := bufio.NewScanner(l.in)
	for sc.Scan() {
		l.lines <- sc.Text()
	}
	l.err = sc.Err()
	if l.err == nil {
		l.err = io.EOF
	}
	close(l.lines)
}

// Capture waits for the next line. The end of input is a device fault,
// which ends the session.
func (l *Listener) Capture(ctx context.Context, opts speech.CaptureOptions) speech.Capture {
	l.once.Do(func() { go l.scan() })

	if !opts.Interrupt {
		l.showPrompt()
	}

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		t := time.NewTimer(opts.Timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-ctx.Done():
		return speech.Empty()
	case <-timeout:
		return speech.Empty()
	case line, ok := <-l.lines:
		l.mu.Lock()
		l.prompted = false
		l.mu.Unlock()
		if !ok {
			l.logger.Debug("input closed", "error", l.err)
			return speech.DeviceFault(l.err)
		}
		text := strings.TrimSpace(line)
		if text == "" {
			return speech.Unrecognized(ErrBlankLine)
		}
		return speech.Recognized(text)
	}
}

func (l *Listener) showPrompt() {
	if l.out == nil || l.prompt == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.prompted {
		fmt.Fprint(l.out, l.prompt)
		l.prompted = true
	}
}

var _ speech.Listener = (*Listener)(nil)
