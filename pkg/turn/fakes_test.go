package turn_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-parley/pkg/speech"
	"github.com/teslashibe/go-parley/pkg/turn"
)

// scriptListener returns scripted results for main captures and feeds
// interrupt captures from a channel. With nothing scripted, a capture
// blocks until its context is done and returns Empty.
type scriptListener struct {
	mu   sync.Mutex
	main []speech.Capture

	interrupts chan speech.Capture

	mainCalls      atomic.Int32
	interruptCalls atomic.Int32
	activeMonitors atomic.Int32
	maxMonitors    atomic.Int32
}

func newScriptListener(main ...speech.Capture) *scriptListener {
	return &scriptListener{
		main:       main,
		interrupts: make(chan speech.Capture, 16),
	}
}

func (l *scriptListener) Capture(ctx context.Context, opts speech.CaptureOptions) speech.Capture {
	if opts.Interrupt {
		l.interruptCalls.Add(1)
		n := l.activeMonitors.Add(1)
		defer l.activeMonitors.Add(-1)
		for {
			m := l.maxMonitors.Load()
			if n <= m || l.maxMonitors.CompareAndSwap(m, n) {
				break
			}
		}

		select {
		case c := <-l.interrupts:
			return c
		case <-ctx.Done():
			return speech.Empty()
		}
	}

	l.mainCalls.Add(1)
	l.mu.Lock()
	if len(l.main) > 0 {
		c := l.main[0]
		l.main = l.main[1:]
		l.mu.Unlock()
		return c
	}
	l.mu.Unlock()

	<-ctx.Done()
	return speech.Empty()
}

type speakCall struct {
	text    string
	tok     *speech.Token
	outcome speech.Outcome
	err     error
}

// fakeSpeaker completes immediately unless hold reports true for the
// text, in which case it plays until its token is canceled.
type fakeSpeaker struct {
	mu     sync.Mutex
	calls  []speakCall
	errs   []error
	resets int
	tokens []*speech.Token

	hold    func(text string) bool
	started chan string

	active    atomic.Int32
	maxActive atomic.Int32
	overlap   atomic.Bool // a Speak began while an older token was live
}

func newFakeSpeaker() *fakeSpeaker {
	return &fakeSpeaker{started: make(chan string, 32)}
}

func (s *fakeSpeaker) Speak(tok *speech.Token, text string) (speech.Outcome, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	if n > s.maxActive.Load() {
		s.maxActive.Store(n)
	}

	s.mu.Lock()
	for _, old := range s.tokens {
		if old != tok && !old.Canceled() {
			s.overlap.Store(true)
		}
	}
	s.tokens = append(s.tokens, tok)
	var err error
	if len(s.errs) > 0 {
		err = s.errs[0]
		s.errs = s.errs[1:]
	}
	s.mu.Unlock()

	select {
	case s.started <- text:
	default:
	}

	outcome := speech.OutcomeCompleted
	if err == nil && s.hold != nil && s.hold(text) {
		<-tok.Done()
		outcome = speech.OutcomeCanceled
	}

	s.mu.Lock()
	s.calls = append(s.calls, speakCall{text: text, tok: tok, outcome: outcome, err: err})
	s.mu.Unlock()
	return outcome, err
}

func (s *fakeSpeaker) Reset() error {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
	return nil
}

func (s *fakeSpeaker) Calls() []speakCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]speakCall(nil), s.calls...)
}

func (s *fakeSpeaker) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// lastUser extracts the newest user line from a prompt.
func lastUser(prompt string) string {
	prompt = strings.TrimSuffix(prompt, "\nAssistant:")
	i := strings.LastIndex(prompt, "User: ")
	if i < 0 {
		return ""
	}
	return prompt[i+len("User: "):]
}

// replies answers from a map keyed by the newest user text.
func replies(m map[string]string) func(context.Context, string) (string, error) {
	return func(_ context.Context, prompt string) (string, error) {
		if r, ok := m[lastUser(prompt)]; ok {
			return r, nil
		}
		return "ok", nil
	}
}

// recorder collects events delivered to an observer.
type recorder struct {
	mu     sync.Mutex
	events []turn.Event
}

func (r *recorder) Observe(ev turn.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) Events() []turn.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]turn.Event(nil), r.events...)
}

// Transitions lists "from>to" for every state change.
func (r *recorder) Transitions() []string {
	var out []string
	for _, ev := range r.Events() {
		if ev.Kind == turn.EventStateChanged {
			out = append(out, ev.From.String()+">"+ev.To.String())
		}
	}
	return out
}

func (r *recorder) Count(match func(turn.Event) bool) int {
	n := 0
	for _, ev := range r.Events() {
		if match(ev) {
			n++
		}
	}
	return n
}

type speakerFunc func(tok *speech.Token, text string) (speech.Outcome, error)

func (f speakerFunc) Speak(tok *speech.Token, text string) (speech.Outcome, error) {
	return f(tok, text)
}
