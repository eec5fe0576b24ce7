package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/faults"
	"github.com/harun/toolgate/pkg/orchestrator"
)

const wsWriteWait = 10 * time.Second

// handleWebSocket serves /ws/chat. Every text frame is a chat request and is answered
// with one response frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upgrade connection")
		return
	}
	conn.SetReadLimit(s.cfg.MaxBodyBytes)

	now := time.Now()
	c := &Connection{
		ID:           gonanoid.Must(),
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    r.RemoteAddr,
		RateLimiter:  NewClientRateLimiterWithLimits(s.cfg.WSMessagesPerMinute, DefaultMaxInFlight),
	}
	s.conns.Add(c)

	s.logger.Info().Str("connection_id", c.ID).Str("ip", r.RemoteAddr).Msg("WebSocket client connected")
	s.serveConnection(r.Context(), c)
}

func (s *Server) serveConnection(ctx context.Context, c *Connection) {
	ctx, cancel := context.WithCancel(ctx)
	var pending sync.WaitGroup

	defer func() {
		cancel()
		pending.Wait()
		_ = c.Conn.Close()
		s.conns.Remove(c.ID)
		s.logger.Info().Str("connection_id", c.ID).Msg("WebSocket client disconnected")
	}()

	for {
		msgType, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("connection_id", c.ID).Msg("WebSocket error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.conns.Touch(c.ID)

		if s.shuttingDown.Load() {
			s.reply(c, ErrorResponse{Error: string(faults.KindUnavailable), Message: "server is shutting down"})
			return
		}

		if allowed, reason := c.RateLimiter.Acquire(); !allowed {
			s.reply(c, ErrorResponse{Error: string(faults.KindRateLimit), Message: reason})
			continue
		}

		var req orchestrator.Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.RateLimiter.Release()
			s.reply(c, ErrorResponse{Error: string(faults.KindValidation), Message: "invalid request: " + err.Error()})
			continue
		}

		pending.Add(1)
		s.inFlight.Add(1)
		go func() {
			defer pending.Done()
			defer s.inFlight.Done()
			defer c.RateLimiter.Release()

			resp := s.cfg.Chat.Handle(tracing.NewRequestContext(ctx), req)
			s.reply(c, resp)
		}()
	}
}

func (s *Server) reply(c *Connection, v interface{}) {
	if err := c.writeJSON(v); err != nil {
		s.logger.Warn().Err(err).Str("connection_id", c.ID).Msg("Failed to send WebSocket reply")
	}
}

func (c *Connection) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.Conn.WriteJSON(v)
}

func (c *Connection) close(code int, text string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
	_ = c.Conn.Close()
}
