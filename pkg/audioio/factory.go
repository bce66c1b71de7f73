package audioio

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Driver opens devices for a backend.
type Driver struct {
	OpenSource func(cfg Config, logger *slog.Logger) (Source, error)
	OpenSink   func(cfg Config, logger *slog.Logger) (Sink, error)
}

var (
	driversMu sync.RWMutex
	drivers   = map[Backend]Driver{
		BackendMock: {
			OpenSource: func(cfg Config, logger *slog.Logger) (Source, error) {
				return NewMockSource(cfg, logger), nil
			},
			OpenSink: func(cfg Config, logger *slog.Logger) (Sink, error) {
				return NewMockSink(cfg, logger), nil
			},
		},
	}
)

// Register makes a backend available to NewSource and NewSink. It panics if
// the backend is registered twice.
func Register(backend Backend, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[backend]; dup {
		panic("audioio: Register called twice for backend " + string(backend))
	}
	drivers[backend] = d
}

// NewSource opens a capture device.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d, backend, err := lookup(&cfg)
	if err != nil {
		return nil, err
	}
	if d.OpenSource == nil {
		return nil, fmt.Errorf("audioio: backend %s cannot capture", backend)
	}
	logger.Info("opening audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)
	return d.OpenSource(cfg, logger)
}

// NewSink opens a playback device.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d, backend, err := lookup(&cfg)
	if err != nil {
		return nil, err
	}
	if d.OpenSink == nil {
		return nil, fmt.Errorf("audioio: backend %s cannot play", backend)
	}
	logger.Info("opening audio sink",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)
	return d.OpenSink(cfg, logger)
}

func lookup(cfg *Config) (Driver, Backend, error) {
	if err := cfg.Validate(); err != nil {
		return Driver{}, "", err
	}

	driversMu.RLock()
	defer driversMu.RUnlock()

	backend := cfg.Backend
	if backend == "" || backend == BackendAuto {
		backend = BackendMock
		if _, ok := drivers[BackendDevice]; ok {
			backend = BackendDevice
		}
	}
	d, ok := drivers[backend]
	if !ok {
		return Driver{}, backend, fmt.Errorf("audioio: unsupported backend: %s", backend)
	}
	cfg.Backend = backend
	return d, backend, nil
}

// AvailableBackends lists registered backends in sorted order.
func AvailableBackends() []Backend {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]Backend, 0, len(drivers))
	for b := range drivers {
		out = append(out, b)
	}
	slices.Sort(out)
	return out
}
