package web

import (
	"slices"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-parley/pkg/hub"
	"github.com/teslashibe/go-parley/pkg/turn"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()

	st.Clients = s.events.ClientCount()
	if s.cfg.Summary != nil {
		sum := s.cfg.Summary()
		st.Metrics = &sum
	}
	return c.JSON(st)
}

func (s *Server) handleConversation(c *fiber.Ctx) error {
	s.mu.RLock()
	turns := slices.Clone(s.conversation)
	s.mu.RUnlock()
	return c.JSON(turns)
}

// handleEvents returns recent events, optionally only those after ?since=seq.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	since := uint64(max(c.QueryInt("since", 0), 0))

	s.mu.RLock()
	out := make([]turn.Event, 0, len(s.recent))
	for _, ev := range s.recent {
		if ev.Seq > since {
			out = append(out, ev)
		}
	}
	s.mu.RUnlock()
	return c.JSON(out)
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if s.cfg.OnStop == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "stop not configured",
		})
	}
	s.logger.Info("stop requested from dashboard", "ip", c.IP())
	s.cfg.OnStop()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"stopping": true})
}

// handleEventsWS replays recent events, then streams new ones.
func (s *Server) handleEventsWS(conn *websocket.Conn) {
	s.mu.RLock()
	backlog := slices.Clone(s.recent)
	s.mu.RUnlock()

	for _, ev := range backlog {
		if err := conn.WriteJSON(ev); err != nil {
			conn.Close()
			return
		}
	}

	client, ok := hub.NewClient(s.events, conn)
	if !ok {
		conn.Close()
		return
	}
	client.Run()
}
