package turn

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-parley/pkg/conversation"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateIdle, "idle"},
		{StateListening, "listening"},
		{StateGenerating, "generating"},
		{StateSpeaking, "speaking"},
		{StateTerminated, "terminated"},
		{State(42), "State(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

func TestEventMarshalJSON(t *testing.T) {
	tr := conversation.Turn{ID: "01J", Role: conversation.RoleUser, Text: "hello"}
	tests := []struct {
		name string
		ev   Event
		want map[string]any
	}{
		{
			name: "state change",
			ev:   Event{Seq: 3, Kind: EventStateChanged, From: StateSpeaking, To: StateGenerating},
			want: map[string]any{"kind": "state_changed", "from": "speaking", "to": "generating"},
		},
		{
			name: "utterance",
			ev:   Event{Seq: 1, Kind: EventUserUtterance, Turn: &tr},
			want: map[string]any{"kind": "user_utterance"},
		},
		{
			name: "fatal error",
			ev:   Event{Kind: EventError, Err: errors.New("mic gone"), Fatal: true},
			want: map[string]any{"kind": "error", "error": "mic gone", "fatal": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.ev)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(b, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
			if tt.ev.Kind != EventStateChanged {
				if _, ok := got["from"]; ok {
					t.Error("from set on non state event")
				}
			}
		})
	}
}

func TestEventQueueOrderAndEnd(t *testing.T) {
	q := newEventQueue(nil)
	for i := 1; i <= 3; i++ {
		q.push(Event{Seq: uint64(i)})
	}
	q.end()
	q.push(Event{Seq: 99})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 1; i <= 3; i++ {
		ev, err := q.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if ev.Seq != uint64(i) {
			t.Errorf("Seq = %d, want %d", ev.Seq, i)
		}
	}
	if _, err := q.Next(ctx); !errors.Is(err, ErrEventsClosed) {
		t.Errorf("Next() after end error = %v", err)
	}
}

func TestEventQueueBlocksUntilPush(t *testing.T) {
	q := newEventQueue(nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.push(Event{Seq: 7})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, err := q.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if ev.Seq != 7 {
		t.Errorf("Seq = %d", ev.Seq)
	}
}

func TestEventQueueContextDone(t *testing.T) {
	q := newEventQueue(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() error = %v", err)
	}
}

func TestEventQueueCloseReleases(t *testing.T) {
	released := 0
	q := newEventQueue(func() { released++ })
	q.push(Event{Seq: 1})
	q.Close()
	q.Close()

	if released != 1 {
		t.Errorf("released = %d, want 1", released)
	}
	if _, err := q.Next(context.Background()); !errors.Is(err, ErrEventsClosed) {
		t.Errorf("Next() after Close error = %v", err)
	}
}

func TestFanout(t *testing.T) {
	var order []int
	obs := Fanout(
		func(Event) { order = append(order, 1) },
		nil,
		func(Event) { order = append(order, 2) },
	)
	obs(Event{})
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v", order)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative window", WithHistoryWindow(-1), true},
		{"blank fallback", WithFallbackText(" "), true},
		{"negative yield", WithRetryYield(-time.Second), true},
		{"zero capture timeout", func(c *Config) { c.Capture.Timeout = 0 }, true},
		{"zero interrupt limit", func(c *Config) { c.InterruptCapture.PhraseLimit = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Apply(tt.opt)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfigInterruptFlag(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Capture.Interrupt {
		t.Error("main capture marked as interrupt")
	}
	if !cfg.InterruptCapture.Interrupt {
		t.Error("interrupt capture not marked")
	}
	if cfg.HistoryWindow != 5 {
		t.Errorf("HistoryWindow = %d", cfg.HistoryWindow)
	}
}
