package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/teslashibe/go-parley/pkg/conversation"
	"github.com/teslashibe/go-parley/pkg/speech"
)

// Generator turns a prompt into a reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var errEmptyReply = errors.New("empty reply")

// CycleResult is returned by RunOnce.
type CycleResult struct {
	State State
	Turns []conversation.Turn // turns appended during the cycle
}

// Engine drives one conversation session.
//
// An Engine is single-use: Start runs the session until Stop is called or
// the input device fails, after which the engine stays Terminated.
type Engine struct {
	listener speech.Listener
	speaker  speech.Speaker
	gen      Generator
	monitor  *Monitor
	history  *conversation.History

	cfg       Config
	log       *slog.Logger
	sessionID string

	// ctx is canceled by Stop and parents every speaking token.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	running bool
	started bool

	stopped    atomic.Bool
	terminated atomic.Bool

	emitMu sync.Mutex // serializes delivery
	seq    uint64
	ended  bool

	obsMu     sync.Mutex
	observers []Observer

	subMu sync.Mutex
	queue *EventQueue
}

// New creates an engine around its three collaborators.
func New(listener speech.Listener, speaker speech.Speaker, gen Generator, opts ...Option) (*Engine, error) {
	if listener == nil || speaker == nil || gen == nil {
		return nil, ErrNilPort
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	id := uuid.NewString()
	logger := cfg.Logger.With("component", "turn.engine", "session", id)

	monitor := NewMonitor(listener, cfg.InterruptCapture, cfg.Logger.With("session", id))
	monitor.yield = cfg.RetryYield
	monitor.now = cfg.Clock

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		listener:  listener,
		speaker:   speaker,
		gen:       gen,
		monitor:   monitor,
		history:   conversation.NewHistory(conversation.WithClock(cfg.Clock)),
		cfg:       *cfg,
		log:       logger,
		sessionID: id,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		observers: append([]Observer(nil), cfg.Observers...),
	}, nil
}

// SessionID returns the session's unique ID.
func (e *Engine) SessionID() string { return e.sessionID }

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// History returns a copy of every turn recorded so far.
func (e *Engine) History() []conversation.Turn {
	return e.history.Snapshot()
}

// OnTurnEvent registers an observer for every subsequent event. It may be
// called from inside an observer; the new observer sees the next event.
func (e *Engine) OnTurnEvent(obs Observer) {
	if obs == nil {
		return
	}
	e.obsMu.Lock()
	e.observers = append(e.observers, obs)
	e.obsMu.Unlock()
}

// Subscribe attaches the session's single event-stream consumer. The
// queue receives every event from now on, ending with the terminal state
// change. Closing the queue frees the slot for another subscriber.
func (e *Engine) Subscribe() (*EventQueue, error) {
	if e.terminated.Load() {
		return nil, ErrStopped
	}

	e.subMu.Lock()
	defer e.subMu.Unlock()

	if e.queue != nil {
		return nil, ErrAlreadySubscribed
	}

	var q *EventQueue
	q = newEventQueue(func() {
		e.subMu.Lock()
		if e.queue == q {
			e.queue = nil
		}
		e.subMu.Unlock()
	})
	e.queue = q
	return q, nil
}

// Start runs the conversation loop. It returns nil after Stop (or after
// ctx is canceled, which calls Stop), and an error wrapping
// speech.ErrDeviceFault if the input device fails.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.begin(true); err != nil {
		return err
	}
	release := context.AfterFunc(ctx, e.Stop)
	defer release()
	defer e.finish()

	e.log.Info("session started")

	for !e.stopped.Load() {
		e.setState(StateListening)
		in := e.listener.Capture(e.ctx, e.cfg.Capture)
		if e.stopped.Load() {
			break
		}

		if err := e.cycle(in); err != nil {
			return err
		}
		if !usable(in) {
			e.yield()
		}
	}

	e.log.Info("session stopped", "turns", e.history.Len())
	return nil
}

// RunOnce executes exactly one cycle using in as the captured input,
// without listening first. The monitor still listens through the engine's
// listener while the reply is spoken. Canceling ctx stops the engine.
func (e *Engine) RunOnce(ctx context.Context, in speech.Capture) (CycleResult, error) {
	if err := e.begin(false); err != nil {
		return CycleResult{State: e.State()}, err
	}
	release := context.AfterFunc(ctx, e.Stop)
	defer release()

	before := e.history.Len()
	err := e.cycle(in)
	e.finish()

	return CycleResult{
		State: e.State(),
		Turns: e.history.Since(before),
	}, err
}

// Stop ends the session. Any utterance in flight is canceled. Stop is
// idempotent and safe to call from any goroutine, including observers.
func (e *Engine) Stop() {
	if !e.stopped.CompareAndSwap(false, true) {
		return
	}
	e.log.Debug("stop requested")
	e.cancel()

	e.mu.Lock()
	running := e.running
	e.mu.Unlock()

	if !running {
		e.terminate()
	}
}

func (e *Engine) begin(start bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.stopped.Load():
		return ErrStopped
	case start && e.started:
		return ErrAlreadyStarted
	case e.running:
		return ErrBusy
	}
	if start {
		e.started = true
	}
	e.running = true
	return nil
}

func (e *Engine) finish() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	if e.stopped.Load() {
		e.terminate()
	}
}

// terminate emits the terminal transition exactly once.
func (e *Engine) terminate() {
	if !e.terminated.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	from := e.state
	e.state = StateTerminated
	e.mu.Unlock()

	e.emit(Event{Kind: EventStateChanged, From: from, To: StateTerminated})
}

// cycle runs capture handling, generation and speech for one input,
// following barge-ins until an utterance ends without interruption.
func (e *Engine) cycle(in speech.Capture) error {
	if in.Status == speech.CaptureDeviceFault {
		return e.fault(in.Err)
	}
	if !usable(in) {
		e.log.Debug("no usable input", "status", in.Status, "error", in.Err)
		e.setState(StateIdle)
		return nil
	}

	text := strings.TrimSpace(in.Text)
	for !e.stopped.Load() {
		prior := e.history.Recent(e.cfg.HistoryWindow)
		e.record(conversation.RoleUser, text)
		e.setState(StateGenerating)

		reply := e.generate(prior, text)
		if e.stopped.Load() {
			return nil
		}
		e.record(conversation.RoleAssistant, reply)
		if e.stopped.Load() {
			return nil
		}

		sig, interrupted := e.speak(reply)
		if !interrupted {
			if !e.stopped.Load() {
				e.setState(StateIdle)
			}
			return nil
		}

		e.log.Info("barge-in", "period", sig.Period, "chars", len(sig.Text))
		text = sig.Text
	}
	return nil
}

func (e *Engine) generate(prior []conversation.Turn, user string) string {
	prompt := conversation.BuildPrompt(e.cfg.SystemPrompt, prior, user)

	started := time.Now()
	reply, err := e.gen.Generate(e.ctx, prompt)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errEmptyReply
	}
	if err != nil {
		if e.stopped.Load() {
			return ""
		}
		e.log.Warn("generation failed, using fallback", "error", err, "elapsed", time.Since(started))
		e.emit(Event{Kind: EventError, Err: fmt.Errorf("%w: %w", ErrGeneration, err)})
		return e.cfg.FallbackText
	}

	e.log.Debug("reply generated", "elapsed", time.Since(started), "chars", len(reply))
	return strings.TrimSpace(reply)
}

type speakResult struct {
	outcome speech.Outcome
	err     error
}

// speak runs one speaking period: the speaker and the monitor race under a
// fresh token, and both have returned before speak does.
func (e *Engine) speak(text string) (InterruptSignal, bool) {
	tok := speech.NewToken(e.ctx)
	e.setState(StateSpeaking)

	interrupts := make(chan InterruptSignal, 1)
	spoken := make(chan speakResult, 1)

	var wg conc.WaitGroup
	wg.Go(func() {
		out, err := e.speakWithRetry(tok, text)
		spoken <- speakResult{outcome: out, err: err}
	})
	wg.Go(func() {
		if sig, ok := e.monitor.Watch(tok); ok {
			interrupts <- sig
		}
	})

	var (
		sig         InterruptSignal
		interrupted bool
		res         speakResult
		finished    bool
	)
	select {
	case sig = <-interrupts:
		interrupted = true
	case res = <-spoken:
		finished = true
		// An interrupt that is already waiting wins over completion.
		select {
		case sig = <-interrupts:
			interrupted = true
		default:
		}
	case <-e.ctx.Done():
	}

	tok.Cancel()
	wg.Wait()

	if !finished {
		res = <-spoken
	}

	if res.err != nil {
		e.log.Warn("utterance abandoned", "period", tok.ID(), "error", res.err)
		e.emit(Event{Kind: EventError, Err: res.err})
	}
	if interrupted {
		e.log.Debug("period interrupted", "period", tok.ID())
	}
	return sig, interrupted
}

// speakWithRetry retries a failed utterance once with a fresh output
// resource. A second failure abandons the utterance.
func (e *Engine) speakWithRetry(tok *speech.Token, text string) (speech.Outcome, error) {
	out, err := e.speaker.Speak(tok, text)
	if err == nil || tok.Canceled() {
		return out, nil
	}

	e.log.Warn("speech output failed, retrying", "period", tok.ID(), "error", err)
	if r, ok := e.speaker.(speech.Resetter); ok {
		if rerr := r.Reset(); rerr != nil {
			e.log.Warn("speech output reset failed", "error", rerr)
		}
	}
	if tok.Canceled() {
		return speech.OutcomeCanceled, nil
	}

	out, err = e.speaker.Speak(tok, text)
	if err != nil && !tok.Canceled() {
		return out, fmt.Errorf("%w: %w", ErrSpeakAbandoned, err)
	}
	return out, nil
}

func (e *Engine) fault(cause error) error {
	if cause == nil {
		cause = speech.ErrDeviceFault
	}
	e.log.Error("input device fault", "error", cause)
	e.emit(Event{Kind: EventError, Err: cause, Fatal: true})
	e.Stop()
	return fmt.Errorf("turn: session ended: %w", cause)
}

func (e *Engine) record(role conversation.Role, text string) {
	t := e.history.Append(role, text)

	kind := EventUserUtterance
	if role == conversation.RoleAssistant {
		kind = EventAssistantUtterance
	}
	e.emit(Event{Kind: kind, Turn: &t})
}

func (e *Engine) setState(to State) {
	e.mu.Lock()
	from := e.state
	if from == to || from == StateTerminated {
		e.mu.Unlock()
		return
	}
	e.state = to
	e.mu.Unlock()

	e.log.Debug("state changed", "from", from, "to", to)
	e.emit(Event{Kind: EventStateChanged, From: from, To: to})
}

// emit delivers ev to observers and the subscriber. Nothing is delivered
// after the terminal event.
func (e *Engine) emit(ev Event) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	if e.ended {
		return
	}
	e.seq++
	ev.Seq = e.seq
	ev.SessionID = e.sessionID
	ev.Time = e.cfg.Clock()

	e.obsMu.Lock()
	observers := e.observers
	e.obsMu.Unlock()

	for _, obs := range observers {
		obs(ev)
	}

	e.subMu.Lock()
	q := e.queue
	e.subMu.Unlock()

	if q != nil {
		q.push(ev)
	}

	if ev.Terminal() {
		e.ended = true
		if q != nil {
			q.end()
		}
	}
}

func (e *Engine) yield() {
	if e.cfg.RetryYield <= 0 {
		runtime.Gosched()
		return
	}
	t := time.NewTimer(e.cfg.RetryYield)
	defer t.Stop()
	select {
	case <-t.C:
	case <-e.ctx.Done():
	}
}

func usable(c speech.Capture) bool {
	return c.Status == speech.CaptureRecognized && strings.TrimSpace(c.Text) != ""
}
