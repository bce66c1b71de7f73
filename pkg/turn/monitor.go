package turn

import (
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/teslashibe/go-parley/pkg/speech"
)

// InterruptSignal carries the user speech that interrupted a speaking
// period.
type InterruptSignal struct {
	Text   string
	Period uint64 // token ID of the interrupted period
	At     time.Time
}

// Monitor listens for barge-in while the assistant speaks.
type Monitor struct {
	listener speech.Listener
	opts     speech.CaptureOptions
	yield    time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// NewMonitor creates a monitor that captures with opts. A nil logger uses
// slog.Default.
func NewMonitor(listener speech.Listener, opts speech.CaptureOptions, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	opts.Interrupt = true
	return &Monitor{
		listener: listener,
		opts:     opts,
		now:      time.Now,
		log:      logger.With("component", "turn.monitor"),
	}
}

// Watch captures repeatedly until it recognizes non-empty speech or tok is
// canceled. It returns the signal and true on recognition.
//
// Watch never starts a capture after tok is canceled, and discards any
// result that completes after cancellation. A device fault disarms the
// monitor for the rest of the period; the engine's next listen reports it.
func (m *Monitor) Watch(tok *speech.Token) (InterruptSignal, bool) {
	attempts := 0
	for !tok.Canceled() {
		attempts++
		c := m.listener.Capture(tok.Context(), m.opts)
		if tok.Canceled() {
			break
		}

		switch c.Status {
		case speech.CaptureRecognized:
			if text := strings.TrimSpace(c.Text); text != "" {
				m.log.Debug("interrupt detected", "period", tok.ID(), "attempts", attempts)
				return InterruptSignal{Text: text, Period: tok.ID(), At: m.now()}, true
			}
		case speech.CaptureDeviceFault:
			m.log.Warn("monitor disarmed", "period", tok.ID(), "error", c.Err)
			return InterruptSignal{}, false
		}

		m.pause(tok)
	}
	return InterruptSignal{}, false
}

func (m *Monitor) pause(tok *speech.Token) {
	if m.yield <= 0 {
		runtime.Gosched()
		return
	}
	t := time.NewTimer(m.yield)
	defer t.Stop()
	select {
	case <-t.C:
	case <-tok.Done():
	}
}
