package turn

import "errors"

// Sentinel errors for the turn package.
var (
	// ErrNilPort is returned by New when a collaborator is missing.
	ErrNilPort = errors.New("turn: listener, speaker and generator are required")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("turn: already started")

	// ErrBusy is returned when RunOnce overlaps Start or another RunOnce.
	ErrBusy = errors.New("turn: cycle already running")

	// ErrStopped is returned for operations on a stopped engine.
	ErrStopped = errors.New("turn: session stopped")

	// ErrAlreadySubscribed is returned when a second event subscriber
	// attaches before the first has closed its queue.
	ErrAlreadySubscribed = errors.New("turn: event stream already has a subscriber")

	// ErrEventsClosed is returned by EventQueue.Next once the queue is
	// closed and drained.
	ErrEventsClosed = errors.New("turn: event stream closed")

	// ErrGeneration wraps generator failures reported in Error events.
	ErrGeneration = errors.New("turn: generation failed")

	// ErrSpeakAbandoned is reported when an utterance failed twice and was
	// skipped.
	ErrSpeakAbandoned = errors.New("turn: utterance abandoned")
)
