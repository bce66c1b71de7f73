package audioio

import (
	"log/slog"
	"slices"
	"testing"
)

func TestNewSourceMock(t *testing.T) {
	cfg := DefaultCaptureConfig()
	cfg.Backend = BackendMock

	src, err := NewSource(cfg, nil)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if src.Name() != "mock" {
		t.Errorf("Expected mock source, got %s", src.Name())
	}
	if src.Config().Backend != BackendMock {
		t.Errorf("Expected resolved backend in config, got %s", src.Config().Backend)
	}
}

func TestNewSinkInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 0
	if _, err := NewSink(cfg, nil); err == nil {
		t.Error("Expected validation error")
	}

	cfg = DefaultConfig()
	cfg.Backend = "alsa"
	if _, err := NewSink(cfg, nil); err == nil {
		t.Error("Expected unsupported backend error")
	}
}

func TestRegister(t *testing.T) {
	const backend Backend = "test-only"
	var opened bool
	Register(backend, Driver{
		OpenSink: func(cfg Config, logger *slog.Logger) (Sink, error) {
			opened = true
			return NewMockSink(cfg, logger), nil
		},
	})

	cfg := DefaultConfig()
	cfg.Backend = backend
	if _, err := NewSink(cfg, nil); err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	if !opened {
		t.Error("Expected registered driver to be used")
	}
	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("Expected error for backend without capture")
	}
	if !slices.Contains(AvailableBackends(), backend) {
		t.Errorf("Expected %s in %v", backend, AvailableBackends())
	}

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	Register(backend, Driver{})
}
