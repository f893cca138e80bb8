// Package ws streams session events to browser clients over websockets.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	service "github.com/EdinaDepner/CadenceCoach/internal/app"
	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
	"github.com/EdinaDepner/CadenceCoach/pkg/metrics"
)

const (
	defaultSendBuffer = 32
	defaultPongWait   = 60 * time.Second
	writeTimeout      = 5 * time.Second
)

// Hub fans session events out to every connected client. A client that
// cannot keep up is disconnected rather than slowing the others.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
	status   func() service.Snapshot
	buffer   int
	pongWait time.Duration
	logger   logger.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithStatus sends the current snapshot to each client when it connects.
func WithStatus(fn func() service.Snapshot) Option {
	return func(h *Hub) { h.status = fn }
}

// WithSendBuffer sets how many messages may wait per client.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithPongWait sets how long a client may stay silent before it is dropped.
// Pings go out at nine tenths of this interval.
func WithPongWait(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pongWait = d
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		buffer:   defaultSendBuffer,
		pongWait: defaultPongWait,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Observe broadcasts e. It never blocks.
func (h *Hub) Observe(e service.Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		h.logger.Error(context.Background(), "marshal event", logger.Error(err))
		return
	}
	h.broadcast(msg)
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			metrics.RecordErrorByComponent("ws", "slow_client")
			delete(h.clients, c)
			c.close()
		}
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade error", logger.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.buffer)}
	if h.status != nil {
		if msg, err := json.Marshal(service.Event{Kind: service.EventStatus, Snapshot: h.status()}); err == nil {
			c.send <- msg
		}
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// readLoop discards client messages; it exists to notice disconnects. Any
// frame or pong extends the read deadline.
func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	}
}

func (h *Hub) writeLoop(c *client) {
	ping := time.NewTicker(h.pongWait * 9 / 10)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				h.sendClose(c)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

func (h *Hub) sendClose(c *client) {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
