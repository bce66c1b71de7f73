package speech

import (
	"fmt"
	"time"
)

// CaptureStatus classifies a capture result.
type CaptureStatus int

const (
	// CaptureRecognized carries non-empty transcribed text.
	CaptureRecognized CaptureStatus = iota
	// CaptureEmpty means no speech started before the timeout.
	CaptureEmpty
	// CaptureUnrecognized means speech was heard but could not be transcribed.
	CaptureUnrecognized
	// CaptureDeviceFault means the input device is unavailable.
	CaptureDeviceFault
)

func (s CaptureStatus) String() string {
	switch s {
	case CaptureRecognized:
		return "recognized"
	case CaptureEmpty:
		return "empty"
	case CaptureUnrecognized:
		return "unrecognized"
	case CaptureDeviceFault:
		return "device_fault"
	default:
		return fmt.Sprintf("CaptureStatus(%d)", int(s))
	}
}

// Capture is the result of one Listener.Capture call.
type Capture struct {
	Status CaptureStatus
	Text   string
	Err    error // cause, for Unrecognized and DeviceFault
}

// Recognized returns a recognized capture with text.
func Recognized(text string) Capture {
	return Capture{Status: CaptureRecognized, Text: text}
}

// Empty returns a capture in which no speech was heard.
func Empty() Capture {
	return Capture{Status: CaptureEmpty}
}

// Unrecognized returns a capture whose audio could not be transcribed.
func Unrecognized(err error) Capture {
	return Capture{Status: CaptureUnrecognized, Err: err}
}

// DeviceFault returns a capture reporting an unusable input device.
// The cause is wrapped so errors.Is(c.Err, ErrDeviceFault) holds.
func DeviceFault(err error) Capture {
	if err == nil {
		err = ErrDeviceFault
	} else {
		err = fmt.Errorf("%w: %w", ErrDeviceFault, err)
	}
	return Capture{Status: CaptureDeviceFault, Err: err}
}

// OK reports whether the capture carries usable text.
func (c Capture) OK() bool {
	return c.Status == CaptureRecognized && c.Text != ""
}

// CaptureOptions bounds a capture.
type CaptureOptions struct {
	// Timeout is how long to wait for speech to begin.
	Timeout time.Duration
	// PhraseLimit caps the length of the captured utterance.
	PhraseLimit time.Duration
	// Interrupt marks captures made while the assistant is speaking.
	// Listeners may use it to skip calibration or raise thresholds.
	Interrupt bool
}

// DefaultCaptureOptions returns the 5s onset timeout and 10s phrase limit.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		Timeout:     5 * time.Second,
		PhraseLimit: 10 * time.Second,
	}
}
