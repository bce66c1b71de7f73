package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-parley/pkg/conversation"
)

// EventKind classifies turn events.
type EventKind int

const (
	EventUserUtterance EventKind = iota
	EventAssistantUtterance
	EventStateChanged
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventUserUtterance:
		return "user_utterance"
	case EventAssistantUtterance:
		return "assistant_utterance"
	case EventStateChanged:
		return "state_changed"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event reports one history append, state transition or error.
// Seq increases by one per event within a session.
type Event struct {
	Seq       uint64
	Kind      EventKind
	SessionID string
	Time      time.Time

	// Turn is set for utterance events.
	Turn *conversation.Turn

	// From and To are set for state changes.
	From State
	To   State

	// Err and Fatal are set for error events.
	Err   error
	Fatal bool
}

// Terminal reports whether this is the session's final event.
func (e Event) Terminal() bool {
	return e.Kind == EventStateChanged && e.To == StateTerminated
}

type eventJSON struct {
	Seq       uint64             `json:"seq"`
	Kind      string             `json:"kind"`
	SessionID string             `json:"session_id"`
	Time      time.Time          `json:"time"`
	Turn      *conversation.Turn `json:"turn,omitempty"`
	From      string             `json:"from,omitempty"`
	To        string             `json:"to,omitempty"`
	Error     string             `json:"error,omitempty"`
	Fatal     bool               `json:"fatal,omitempty"`
}

// MarshalJSON renders the event for presentation layers.
func (e Event) MarshalJSON() ([]byte, error) {
	v := eventJSON{
		Seq:       e.Seq,
		Kind:      e.Kind.String(),
		SessionID: e.SessionID,
		Time:      e.Time,
		Turn:      e.Turn,
		Fatal:     e.Fatal,
	}
	if e.Kind == EventStateChanged {
		v.From = e.From.String()
		v.To = e.To.String()
	}
	if e.Err != nil {
		v.Error = e.Err.Error()
	}
	return json.Marshal(v)
}

// Observer receives turn events synchronously on the engine's control
// goroutine. Observers must return quickly and must not call back into
// RunOnce. They may call Stop or OnTurnEvent.
type Observer func(Event)

// Fanout returns an observer that forwards each event to every non-nil
// observer in order.
func Fanout(observers ...Observer) Observer {
	var list []Observer
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return func(ev Event) {
		for _, o := range list {
			o(ev)
		}
	}
}

// EventQueue is the ordered event stream handed to a subscriber.
// It buffers without bound, so a slow subscriber never stalls the engine.
type EventQueue struct {
	mu      sync.Mutex
	items   []Event
	ended   bool // no more events will be pushed
	notify  chan struct{}
	release func()
	once    sync.Once
}

func newEventQueue(release func()) *EventQueue {
	return &EventQueue{
		notify:  make(chan struct{}, 1),
		release: release,
	}
}

func (q *EventQueue) push(ev Event) {
	q.mu.Lock()
	if q.ended {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.wake()
}

// end marks the stream complete. Buffered events remain readable.
func (q *EventQueue) end() {
	q.mu.Lock()
	q.ended = true
	q.mu.Unlock()
	q.wake()
}

func (q *EventQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Next returns the next event, blocking until one is available, the
// stream ends (ErrEventsClosed) or ctx is done.
func (q *EventQueue) Next(ctx context.Context) (Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = Event{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, nil
		}
		ended := q.ended
		q.mu.Unlock()

		if ended {
			return Event{}, ErrEventsClosed
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Close detaches the subscriber and discards buffered events. Another
// subscriber may attach afterwards.
func (q *EventQueue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.ended = true
		q.items = nil
		q.mu.Unlock()
		q.wake()
		if q.release != nil {
			q.release()
		}
	})
}
