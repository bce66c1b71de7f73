package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-parley/internal/config"
	"github.com/teslashibe/go-parley/internal/log"
	"github.com/teslashibe/go-parley/pkg/conversation"
	"github.com/teslashibe/go-parley/pkg/turn"
)

// chatServer answers every chat completion with reply.
func chatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTextModeSession(t *testing.T) {
	srv := chatServer(t, "Hi! How can I help?")
	t.Chdir(t.TempDir())
	t.Setenv("PARLEY_MODE", "text")
	t.Setenv("PARLEY_LLM_PROVIDER", "openai")
	t.Setenv("PARLEY_LLM_BASE_URL", srv.URL)
	t.Setenv("PARLEY_LLM_API_KEY", "sk-test")
	t.Setenv("PARLEY_CONSOLE_WORDS_PER_MINUTE", "0")

	var out bytes.Buffer
	code := run(nil, strings.NewReader("hello there\n"), &out)

	// End of input is a device fault for the text listener.
	if code != 1 {
		t.Errorf("Expected exit 1 at end of input, got %d", code)
	}
	if !strings.Contains(out.String(), "Assistant: Hi! How can I help?") {
		t.Errorf("Expected the reply on stdout, got %q", out.String())
	}
}

func TestRunRejectsBadMode(t *testing.T) {
	t.Chdir(t.TempDir())
	if code := run([]string{"-mode", "telepathy"}, strings.NewReader(""), &bytes.Buffer{}); code != 2 {
		t.Errorf("Expected exit 2, got %d", code)
	}
}

func TestBuildPortsText(t *testing.T) {
	cfg := &config.Config{
		Mode:    config.ModeText,
		LLM:     config.LLMConfig{Provider: "openai", Timeout: time.Second},
		Console: config.ConsoleConfig{WordsPerMinute: 0},
	}
	p, err := buildPorts(context.Background(), cfg, strings.NewReader(""), &bytes.Buffer{}, log.L())
	if err != nil {
		t.Fatalf("buildPorts: %v", err)
	}
	defer p.Close()
	if p.listener == nil || p.speaker == nil || p.generator == nil {
		t.Errorf("Expected all ports, got %+v", p)
	}
	if p.generator.Name() != "openai" {
		t.Errorf("Expected openai generator, got %s", p.generator.Name())
	}
}

func TestEventLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := log.Setup(&buf, "debug", "text")
	obs := eventLogger(logger)

	obs(turn.Event{Seq: 1, Kind: turn.EventUserUtterance, Turn: &conversation.Turn{Text: "hi"}})
	obs(turn.Event{Seq: 2, Kind: turn.EventStateChanged, From: turn.StateListening, To: turn.StateGenerating})
	obs(turn.Event{Seq: 3, Kind: turn.EventError, Err: errors.New("mic gone"), Fatal: true})

	got := buf.String()
	for _, want := range []string{"msg=user", "text=hi", "to=generating", "level=ERROR", "mic gone"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in log output:\n%s", want, got)
		}
	}
}
