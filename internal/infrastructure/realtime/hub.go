// Package realtime pushes order events to connected displays over WebSocket.
package realtime

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/brewtopia/cafepos/internal/infrastructure/notify"
	"github.com/brewtopia/cafepos/internal/observability"
	"github.com/brewtopia/cafepos/internal/observability/logctx"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	componentHub = "realtime_hub"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	DefaultSendBuffer = 32
)

// Hub keeps the set of live subscribers. There is no replay: a client only
// receives events published while it is connected.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]struct{}
	closed     bool
	upgrader   websocket.Upgrader
	sendBuffer int
	log        observability.Logger
	gauge      observability.Gauge
	dropped    observability.Counter
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

type Option func(*Hub)

// WithSendBuffer bounds how many messages may wait for one slow client.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithCheckOrigin overrides the upgrader origin policy.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		if fn != nil {
			h.upgrader.CheckOrigin = fn
		}
	}
}

// AllowOrigins accepts browsers whose Origin matches the request host or one
// of origins ("*" matches anything). Requests without an Origin header come
// from non-browser clients and are accepted.
func AllowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed["*"] {
			return true
		}
		if allowed[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func NewHub(tel observability.Observability, opts ...Option) *Hub {
	if tel == nil {
		tel = observability.Nop()
	}
	h := &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     AllowOrigins(nil),
		},
		sendBuffer: DefaultSendBuffer,
		log:        tel.Logger().With(observability.F("component", componentHub)),
		gauge:      tel.Metrics().Gauge(observability.MRealtimeSubscribers),
		dropped:    tel.Metrics().Counter(observability.MRealtimeDropped),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Name() string { return "realtime" }

// Deliver broadcasts msg; it never blocks on a client.
func (h *Hub) Deliver(ctx context.Context, msg notify.Message) error {
	delivered := h.Broadcast(msg.Body)
	logctx.FromOr(ctx, h.log).Debug("realtime_broadcast",
		observability.F("order_id", msg.Key),
		observability.F("delivered", delivered),
	)
	return nil
}

// Broadcast queues msg for every client and reports how many accepted it.
// A client whose buffer is full misses this message.
func (h *Hub) Broadcast(msg []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.clients {
		select {
		case c.send <- msg:
			delivered++
		default:
			h.dropped.Add(1)
			h.log.Warn("realtime_message_dropped", observability.F("client_id", c.id))
		}
	}
	return delivered
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logctx.FromOr(r.Context(), h.log).Warn("realtime_upgrade_failed", observability.F("error", err.Error()))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
		close(c.send)
	}
	h.gauge.Set(0)
	h.mu.Unlock()

	h.log.Info("realtime_hub_closed", observability.F("clients", len(clients)))
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.gauge.Set(float64(len(h.clients)))
	h.log.Info("realtime_client_connected",
		observability.F("client_id", c.id),
		observability.F("clients", len(h.clients)),
	)
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.gauge.Set(float64(len(h.clients)))
	h.log.Info("realtime_client_disconnected",
		observability.F("client_id", c.id),
		observability.F("clients", len(h.clients)),
	)
}

// readPump discards client input and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
