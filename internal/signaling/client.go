package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peterroe/roomsignal/internal/metrics"
	"github.com/peterroe/roomsignal/internal/ratelimit"
)

const wsWriteWait = 1 * time.Second

// Client is one WebSocket connection registered with the hub. The read pump
// and write pump are the only goroutines that touch the conn.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	log  *slog.Logger

	send    chan []byte
	limiter *ratelimit.TokenBucket

	maxMessageBytes int64
	idleTimeout     time.Duration
	pingInterval    time.Duration
}

// readPump relays inbound messages to the hub until the connection drops.
// Idle connections are closed when no message or pong arrives within the
// idle timeout.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))

		if msgType != websocket.TextMessage {
			writeClose(c.conn, websocket.CloseUnsupportedData, "expected text message")
			return
		}

		if !c.limiter.Allow(1) {
			c.hub.metrics.Inc(metrics.EventRateLimited)
			writeClose(c.conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		env, err := ParseEnvelope(data)
		msg := inboundMessage{sender: c, env: env}
		if err != nil {
			// The error reply goes through the hub so the send channel is
			// only ever written by the hub goroutine.
			c.log.Debug("malformed signaling message", "client", c.id, "err", err)
			msg.malformed = true
		}

		select {
		case c.hub.inbound <- msg:
		case <-c.hub.done:
			return
		}
	}
}

// writePump drains the send buffer and keeps the connection alive with
// periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
