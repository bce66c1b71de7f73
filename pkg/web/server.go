// Package web serves the conversation dashboard: session status, the
// transcript, recent turn events, a websocket event feed and Prometheus
// metrics. The server learns everything from turn events passed to Observe.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-parley/pkg/conversation"
	"github.com/teslashibe/go-parley/pkg/hub"
	"github.com/teslashibe/go-parley/pkg/metrics"
	"github.com/teslashibe/go-parley/pkg/turn"
)

// Config configures the dashboard.
type Config struct {
	Addr      string
	MaxEvents int // recent events kept for /api/events and new websocket clients
	MaxTurns  int

	// Metrics is served at /metrics when set.
	Metrics http.Handler
	// Summary adds latency figures to /api/status when set.
	Summary func() metrics.Summary
	// OnStop handles POST /api/stop. The route answers 503 when nil.
	OnStop func()

	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// DefaultConfig listens on :8181 and keeps 200 events and 100 turns.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8181",
		MaxEvents:       200,
		MaxTurns:        100,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Status is the dashboard's view of the session.
type Status struct {
	SessionID     string           `json:"session_id"`
	State         string           `json:"state"`
	Turns         int              `json:"turns"`
	Clients       int              `json:"clients"`
	LastUser      string           `json:"last_user,omitempty"`
	LastAssistant string           `json:"last_assistant,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Metrics       *metrics.Summary `json:"metrics,omitempty"`
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg    Config
	app    *fiber.App
	events *hub.Hub
	logger *slog.Logger

	mu           sync.RWMutex
	status       Status
	recent       []turn.Event
	conversation []conversation.Turn
}

// NewServer builds the fiber app and its routes.
func NewServer(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = def.MaxEvents
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = def.MaxTurns
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		events: hub.New("events", cfg.Logger),
		logger: cfg.Logger.With("component", "web.server"),
		status: Status{State: turn.StateIdle.String()},
	}

	app := fiber.New(fiber.Config{
		AppName:               "parley dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/conversation", s.handleConversation)
	api.Get("/events", s.handleEvents)
	api.Post("/stop", s.handleStop)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Start listens on the configured address until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.events.Run(ctx)

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listener(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(s.cfg.ShutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	}
}

// Shutdown stops the server immediately.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Observe records ev and broadcasts it to websocket clients. It has the
// turn.Observer signature and never blocks.
func (s *Server) Observe(ev turn.Event) {
	s.mu.Lock()
	s.status.SessionID = ev.SessionID
	s.status.UpdatedAt = ev.Time

	switch ev.Kind {
	case turn.EventUserUtterance, turn.EventAssistantUtterance:
		if ev.Turn != nil {
			s.conversation = append(s.conversation, *ev.Turn)
			if len(s.conversation) > s.cfg.MaxTurns {
				s.conversation = s.conversation[1:]
			}
			s.status.Turns++
			if ev.Turn.Role == conversation.RoleUser {
				s.status.LastUser = ev.Turn.Text
			} else {
				s.status.LastAssistant = ev.Turn.Text
			}
		}
	case turn.EventStateChanged:
		s.status.State = ev.To.String()
	case turn.EventError:
		if ev.Err != nil {
			s.status.LastError = ev.Err.Error()
		}
	}

	s.recent = append(s.recent, ev)
	if len(s.recent) > s.cfg.MaxEvents {
		s.recent = s.recent[1:]
	}
	s.mu.Unlock()

	if err := s.events.BroadcastJSON(ev); err != nil {
		s.logger.Warn("encode event", "seq", ev.Seq, "error", err)
	}
}
