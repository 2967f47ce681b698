package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientConfig tunes per-connection timing.
type ClientConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongTimeout {
		c.PingInterval = c.PongTimeout * 9 / 10
	}
	return c
}

// Client is one websocket subscriber. The hub owns its registry entry;
// the client owns its connection via the two pump goroutines.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	scope  string
	send   chan []byte
	cfg    ClientConfig
	logger *zap.Logger

	// mu guards send against the hub closing the channel while the
	// connection goroutines (snapshot, refresh, pong reply) still
	// enqueue. After close, enqueue drops instead of panicking.
	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection subscribed to one scope.
func NewClient(hub *Hub, conn *websocket.Conn, scope string, cfg ClientConfig, logger *zap.Logger) *Client {
	if scope == "" {
		scope = ScopeGlobal
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Client{
		hub:    hub,
		conn:   conn,
		scope:  scope,
		send:   make(chan []byte, cfg.SendBuffer),
		cfg:    cfg,
		logger: logger,
	}
}

// Serve registers the client, pushes the initial snapshot and runs the
// read/write pumps until the connection dies. It blocks until the
// reader exits.
func (c *Client) Serve(ctx context.Context) {
	c.hub.Register(c)
	if err := c.sendSnapshot(ctx); err != nil {
		c.logger.Warn("initial snapshot failed", zap.Error(err), zap.String("scope", c.scope))
	}

	go c.writePump()
	c.readPump(ctx)
}

// matches reports whether the client should receive an event published
// for the given scope.
func (c *Client) matches(scope string) bool {
	return scope == c.scope || scope == ScopeGlobal || c.scope == ScopeGlobal
}

// enqueue queues a frame without blocking; a full buffer or an already
// closed client reports false and the hub prunes the client.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) sendSnapshot(ctx context.Context) error {
	if c.hub.snapshots == nil {
		return nil
	}
	data, err := c.hub.snapshots.Snapshot(ctx, c.scope)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(outbound{Type: "snapshot", Data: data})
	if err != nil {
		return err
	}
	c.enqueue(payload)
	return nil
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("client read error", zap.Error(err), zap.String("scope", c.scope))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))

		switch msg.Action {
		case actionRefresh:
			if err := c.sendSnapshot(ctx); err != nil {
				c.logger.Warn("refresh snapshot failed", zap.Error(err), zap.String("scope", c.scope))
			}
		case actionPing:
			if payload, err := json.Marshal(outbound{Type: "pong"}); err == nil {
				c.enqueue(payload)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close marks the client dead and shuts the send queue. Only the hub
// calls it; enqueues arriving afterwards are dropped.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
