package turn

import "fmt"

// State is the engine's conversation state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateGenerating
	StateSpeaking
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateGenerating:
		return "generating"
	case StateSpeaking:
		return "speaking"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
