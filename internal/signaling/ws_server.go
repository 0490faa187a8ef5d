package signaling

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/peterroe/roomsignal/internal/config"
	"github.com/peterroe/roomsignal/internal/origin"
	"github.com/peterroe/roomsignal/internal/ratelimit"
)

// WebSocketServer upgrades signaling connections and hands them to the hub.
//
// Browser origins are checked against the configured allowlist before the
// upgrade; non-browser clients (no Origin header) are always admitted.
type WebSocketServer struct {
	cfg      config.Config
	hub      *Hub
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWebSocketServer(cfg config.Config, hub *Hub, logger *slog.Logger) *WebSocketServer {
	s := &WebSocketServer{
		cfg: cfg,
		hub: hub,
		log: logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			originHeader := strings.TrimSpace(r.Header.Get("Origin"))
			if originHeader == "" {
				return true
			}
			normalized, originHost, ok := origin.Normalize(originHeader)
			return ok && origin.Allowed(normalized, originHost, r.Host, cfg.AllowedOrigins)
		},
	}
	return s
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &Client{
		id:   uuid.NewString(),
		hub:  s.hub,
		conn: conn,
		log:  s.log,

		send: make(chan []byte, s.cfg.SendBufferMessages),
		limiter: ratelimit.NewTokenBucket(
			ratelimit.RealClock{},
			int64(s.cfg.MaxMessagesPerSec),
			int64(s.cfg.MaxMessagesPerSec),
		),

		maxMessageBytes: s.cfg.MaxMessageBytes,
		idleTimeout:     s.cfg.WSIdleTimeout,
		pingInterval:    s.cfg.WSPingInterval,
	}

	select {
	case s.hub.register <- c:
	case <-s.hub.done:
		writeClose(conn, websocket.CloseGoingAway, "server shutting down")
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}
