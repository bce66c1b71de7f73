// Package speech defines the capability contracts between the turn engine
// and its audio collaborators: a Listener that captures and transcribes one
// utterance, a Speaker that plays one utterance under a cancellation Token,
// and the value types exchanged across them.
//
// Implementations live elsewhere (pkg/listen, pkg/tts, pkg/console). This
// package has no dependencies on them so the engine can be tested against
// scripted fakes.
package speech

import (
	"context"
	"errors"
)

// Errors
var (
	// ErrDeviceFault reports that the input device is unusable.
	// The engine treats it as fatal for the session.
	ErrDeviceFault = errors.New("speech: device fault")

	// ErrEmptyText is returned by speakers asked to say nothing.
	ErrEmptyText = errors.New("speech: empty text")
)

// Listener captures one utterance and returns its transcript.
//
// Capture blocks until speech was recognized, the onset timeout expired,
// the phrase limit was reached, or ctx was canceled. Cancellation yields
// an Empty result, never a DeviceFault.
type Listener interface {
	Capture(ctx context.Context, opts CaptureOptions) Capture
}

// Speaker plays one utterance.
//
// Speak returns OutcomeCompleted when the whole text was played and
// OutcomeCanceled when tok was canceled first. After cancellation the
// speaker must produce no further audio and return promptly. A non-nil
// error means playback failed; the outcome is then meaningless.
type Speaker interface {
	Speak(tok *Token, text string) (Outcome, error)
}

// Resetter is implemented by speakers that can rebuild their output
// resource (device handle, engine) after a failure.
type Resetter interface {
	Reset() error
}

// Outcome is the result of a Speak call.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}
