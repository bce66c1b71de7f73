package speech

import (
	"context"
	"sync/atomic"
)

var tokenSeq atomic.Uint64

// Token scopes one speaking period. It is created when speech starts and
// canceled when the period ends, whether the utterance finished, was
// interrupted, or the session stopped. Tokens are never reused: a fresh
// period always gets a fresh token, so a cancellation can not leak into a
// later utterance.
//
// Cancel is one-way and idempotent. All methods are safe for concurrent use.
type Token struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// NewToken creates a token whose lifetime is also bounded by parent.
func NewToken(parent context.Context) *Token {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Token{
		id:     tokenSeq.Add(1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID identifies the period. IDs increase monotonically per process.
func (t *Token) ID() uint64 { return t.id }

// Cancel invalidates the token.
func (t *Token) Cancel() { t.cancel() }

// Canceled reports whether the token has been invalidated, either directly
// or through its parent context.
func (t *Token) Canceled() bool { return t.ctx.Err() != nil }

// Done is closed when the token is invalidated.
func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Context returns a context canceled together with the token, for passing
// to blocking calls made on the period's behalf.
func (t *Token) Context() context.Context { return t.ctx }
