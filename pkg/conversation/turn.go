// Package conversation holds the session transcript: an append-only log of
// user and assistant turns, and the prompt built from its recent tail.
package conversation

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label returns the speaker label used in prompts.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Turn is one recorded utterance. Turns are values and never change after
// they are appended.
type Turn struct {
	ID   string    `json:"id"` // ULID, sortable in append order
	Role Role      `json:"role"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}
