// Package turn implements the conversational turn engine: the state machine
// that drives capture, generation and speech, and lets the user barge in
// while the assistant is talking.
//
// # Cycle
//
// Each cycle captures one utterance, appends it as a user turn, asks the
// Generator for a reply, appends the reply as an assistant turn and speaks
// it. While the reply is being spoken a Monitor keeps listening. If it
// hears the user, the engine cancels playback, records what the user said
// and goes straight back to generation without listening again.
//
//	Idle ──capture──▶ Listening ──text──▶ Generating ──reply──▶ Speaking
//	  ▲                  │                    ▲                    │
//	  └──────empty───────┘                    └──────barge-in──────┤
//	  ▲                                                            │
//	  └───────────────────────────completed────────────────────────┘
//
// Stop moves the engine to Terminated from any state.
//
// # Concurrency
//
// All state transitions and history appends happen on the goroutine
// running Start (or RunOnce). During a speaking period exactly two extra
// goroutines exist, the speaker and the monitor, and both are retired
// before the next period can begin. Each period is scoped by a fresh
// speech.Token.
//
// The monitor is armed only while speaking. Generation can not be
// interrupted.
package turn
