// Package signalclient is the Go-side signaling channel: a dialing WebSocket
// client with keepalive and automatic reconnect. Reconnection does not restore
// room membership; the application must re-join from OnReconnect.
package signalclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/peterroe/roomsignal/internal/signaling"
)

var (
	ErrNotConnected = errors.New("signalclient: not connected")
)

const (
	defaultPingInterval = 20 * time.Second
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 60 * time.Second

	// backoffResetAfter is how long a connection must stay up before the
	// retry backoff resets. A server that accepts and immediately drops
	// connections keeps escalating the delay instead of being redialed hot.
	backoffResetAfter = 10 * time.Second
)

type Config struct {
	URL    string
	Logger *slog.Logger

	PingInterval time.Duration
	WriteTimeout time.Duration
	// ReadTimeout closes the connection when neither a message nor a pong
	// arrives in time, forcing a reconnect.
	ReadTimeout time.Duration

	// OnEvent receives every server envelope, called from the read loop.
	OnEvent func(signaling.Envelope)
	// OnDisconnect fires when an established connection is lost.
	OnDisconnect func(error)
	// OnReconnect fires after a connection is re-established. Room
	// membership is gone at that point; re-join here.
	OnReconnect func()

	Dialer *websocket.Dialer
}

type Client struct {
	cfg Config
	log *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("signalclient: URL is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("signalclient: Logger is required")
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{cfg: cfg, log: cfg.Logger}, nil
}

// Run dials and maintains the connection until ctx is cancelled. Dial
// failures and dropped connections are retried with exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	connectedBefore := false
	for {
		conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := bo.NextBackOff()
			c.log.Warn("signaling dial failed", "url", c.cfg.URL, "err", err, "retry_in", wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		connectedAt := time.Now()
		c.setConn(conn)
		if connectedBefore {
			c.log.Info("signaling reconnected", "url", c.cfg.URL)
			if c.cfg.OnReconnect != nil {
				c.cfg.OnReconnect()
			}
		} else {
			c.log.Info("signaling connected", "url", c.cfg.URL)
			connectedBefore = true
		}

		err = c.readLoop(ctx, conn)
		c.setConn(nil)
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("signaling connection lost", "err", err)
		if c.cfg.OnDisconnect != nil {
			c.cfg.OnDisconnect(err)
		}

		if time.Since(connectedAt) >= backoffResetAfter {
			bo.Reset()
			continue
		}
		wait := bo.NextBackOff()
		c.log.Warn("signaling redial delayed", "retry_in", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go c.pingLoop(pingCtx, conn)

	for {
		var env signaling.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		if c.cfg.OnEvent != nil {
			c.cfg.OnEvent(env)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Unblock the read loop when the supervisor is shutting down.
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) sendEnvelope(env signaling.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteJSON(env)
}

func (c *Client) CreateRoom() error {
	return c.sendEnvelope(signaling.Envelope{Type: signaling.EventCreateRoom})
}

func (c *Client) JoinRoom(roomID string) error {
	return c.sendEnvelope(signaling.Envelope{Type: signaling.EventJoinRoom, Room: roomID})
}

func (c *Client) LeaveRoom(roomID string) error {
	return c.sendEnvelope(signaling.Envelope{Type: signaling.EventLeaveRoom, Room: roomID})
}

func (c *Client) SendOffer(roomID string, desc webrtc.SessionDescription) error {
	payload, err := signaling.MarshalPayload(signaling.SDPPayloadFromPion(desc))
	if err != nil {
		return err
	}
	return c.sendEnvelope(signaling.Envelope{Type: signaling.EventOffer, Room: roomID, Payload: payload})
}

func (c *Client) SendAnswer(roomID string, desc webrtc.SessionDescription) error {
	payload, err := signaling.MarshalPayload(signaling.SDPPayloadFromPion(desc))
	if err != nil {
		return err
	}
	return c.sendEnvelope(signaling.Envelope{Type: signaling.EventAnswer, Room: roomID, Payload: payload})
}

func (c *Client) SendCandidate(roomID string, init webrtc.ICECandidateInit) error {
	payload, err := signaling.MarshalPayload(signaling.CandidatePayloadFromPion(init))
	if err != nil {
		return err
	}
	return c.sendEnvelope(signaling.Envelope{Type: signaling.EventICECandidate, Room: roomID, Payload: payload})
}

func (c *Client) SendToggleAudio(roomID string, enabled bool) error {
	payload, err := signaling.MarshalPayload(signaling.AudioTogglePayload{Enabled: enabled})
	if err != nil {
		return err
	}
	return c.sendEnvelope(signaling.Envelope{Type: signaling.EventToggleAudio, Room: roomID, Payload: payload})
}

func (c *Client) SendChat(roomID, text, sentAt string) error {
	payload, err := signaling.MarshalPayload(signaling.ChatPayload{Text: text, Time: sentAt})
	if err != nil {
		return err
	}
	return c.sendEnvelope(signaling.Envelope{Type: signaling.EventChatMessage, Room: roomID, Payload: payload})
}
