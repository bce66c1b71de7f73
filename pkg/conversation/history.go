package conversation

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// History is a thread-safe, append-only log of turns.
//
// Reads return copies, so callers may keep or modify the returned slices
// while appends continue.
type History struct {
	mu      sync.RWMutex
	turns   []Turn
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithClock sets the time source used to stamp turns.
func WithClock(now func() time.Time) HistoryOption {
	return func(h *History) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHistory creates an empty history.
func NewHistory(opts ...HistoryOption) *History {
	h := &History{
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Append records a turn and returns it.
func (h *History) Append(role Role, text string) Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	t := Turn{
		ID:   h.newID(now),
		Role: role,
		Text: text,
		Time: now,
	}
	h.turns = append(h.turns, t)
	return t
}

// newID stamps a ULID with now, clamped to the range ULIDs can encode.
// Callers hold h.mu.
func (h *History) newID(now time.Time) string {
	var ms uint64
	if !now.Before(time.UnixMilli(0)) {
		ms = min(ulid.Timestamp(now), ulid.MaxTime())
	}
	id, err := ulid.New(ms, h.entropy)
	if err != nil {
		// monotonic entropy overflowed within one millisecond
		id = ulid.Make()
	}
	return id.String()
}

// Recent returns the last k turns, oldest first.
// k <= 0 returns nil.
func (h *History) Recent(k int) []Turn {
	if k <= 0 {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	start := len(h.turns) - k
	if start < 0 {
		start = 0
	}
	return clone(h.turns[start:])
}

// Since returns the turns appended after the first n, oldest first.
func (h *History) Since(n int) []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n >= len(h.turns) {
		return nil
	}
	return clone(h.turns[n:])
}

// Snapshot returns every turn.
func (h *History) Snapshot() []Turn {
	return h.Since(0)
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

func clone(src []Turn) []Turn {
	if len(src) == 0 {
		return nil
	}
	out := make([]Turn, len(src))
	copy(out, src)
	return out
}
