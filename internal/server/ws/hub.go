// Package ws relays committed market events from the signal bus to
// WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	sendBufferSize = 256

	// catchUpLimit bounds how many stream entries a reconnecting client is
	// sent; it stays below sendBufferSize so the queue cannot overflow.
	catchUpLimit = 200
)

// DefaultChannel is the bus channel the hub relays.
const DefaultChannel = "ch:events"

// client is a single WebSocket connection. An empty markets set means the
// client receives every market.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	mu      sync.RWMutex
	markets map[uint64]bool
	kinds   map[domain.EventKind]bool
}

// subscribeMsg is sent by clients to narrow or widen their feed.
//
//	{"action":"subscribe","markets":[7,9],"kinds":["market_settled"]}
//	{"action":"unsubscribe","markets":[7]}
type subscribeMsg struct {
	Action  string             `json:"action"`
	Markets []uint64           `json:"markets"`
	Kinds   []domain.EventKind `json:"kinds"`
}

// Config captures metadata reported to clients on connect.
type Config struct {
	Mode    string
	Channel string
	// Stream is the durable stream replayed to clients that connect with
	// ?since=. Empty disables catch-up.
	Stream         string
	AllowedOrigins []string
	StartedAt      time.Time
}

// Hub fans bus messages out to subscribed clients.
type Hub struct {
	bus      domain.SignalBus
	channel  string
	stream   string
	mode     string
	started  time.Time
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool
	closed  bool
}

// NewHub creates a Hub over bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	origins := cfg.AllowedOrigins
	return &Hub{
		bus:     bus,
		channel: cfg.Channel,
		stream:  cfg.Stream,
		mode:    mode,
		started: cfg.StartedAt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return originAllowed(origins, r.Header.Get("Origin")) },
		},
		logger:  logger.With(slog.String("component", "ws_hub")),
		clients: make(map[*client]bool),
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Run subscribes to the bus and relays until ctx is cancelled, then closes
// every client.
func (h *Hub) Run(ctx context.Context) error {
	msgs, err := h.bus.Subscribe(ctx, h.channel)
	if err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "ws: subscribed", slog.String("channel", h.channel))

	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgs:
			if !ok {
				h.logger.WarnContext(ctx, "ws: bus subscription closed", slog.String("channel", h.channel))
				return nil
			}
			h.Broadcast(data)
		}
	}
}

// Broadcast delivers one event payload to every client whose filter matches.
// Slow clients drop messages rather than stall the hub.
func (h *Hub) Broadcast(data []byte) {
	var head struct {
		Kind     domain.EventKind `json:"kind"`
		MarketID uint64           `json:"market_id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		h.logger.Warn("ws: undecodable event", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(head.MarketID, head.Kind) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("ws: dropping message for slow client")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = true
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client. A client that
// reconnects with since set to a stream id, or to the unix milliseconds of
// the last event it saw, first receives up to catchUpLimit newer events from
// the stream. Catch-up runs before the client joins the live feed, so an
// event published in between can be missed; clients dedupe by event id.
// GET /ws?since=1700000000000-0
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		markets: make(map[uint64]bool),
		kinds:   make(map[domain.EventKind]bool),
	}
	c.sendStatus()
	if since := r.URL.Query().Get("since"); since != "" {
		c.catchUp(r.Context(), since)
	}
	if !h.add(c) {
		conn.Close()
		return
	}
	h.logger.Info("ws: client connected", slog.Int("total_clients", h.ClientCount()))

	go c.writePump()
	go c.readPump()
}

// catchUp queues stream entries after since. Read errors are logged and
// leave the client on the live feed only.
func (c *client) catchUp(ctx context.Context, since string) {
	if c.hub.stream == "" || !validStreamID(since) {
		return
	}
	msgs, err := c.hub.bus.StreamRead(ctx, c.hub.stream, since, catchUpLimit)
	if err != nil {
		c.hub.logger.Warn("ws: catch-up read failed", slog.String("error", err.Error()))
		return
	}
	for _, m := range msgs {
		select {
		case c.send <- m.Payload:
		default:
			return
		}
	}
}

// validStreamID accepts "<ms>" or "<ms>-<seq>".
func validStreamID(id string) bool {
	ms, seq, hasSeq := strings.Cut(id, "-")
	return digits(ms) && (!hasSeq || digits(seq))
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c *client) wants(marketID uint64, kind domain.EventKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.markets) > 0 && !c.markets[marketID] {
		return false
	}
	if len(c.kinds) > 0 && !c.kinds[kind] {
		return false
	}
	return true
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, id := range msg.Markets {
			c.markets[id] = true
		}
		for _, k := range msg.Kinds {
			c.kinds[k] = true
		}
	case "unsubscribe":
		for _, id := range msg.Markets {
			delete(c.markets, id)
		}
		for _, k := range msg.Kinds {
			delete(c.kinds, k)
		}
	}
}

func (c *client) sendStatus() {
	msg, err := json.Marshal(map[string]any{
		"type": "status",
		"payload": map[string]any{
			"mode":           c.hub.mode,
			"channel":        c.hub.channel,
			"uptime_seconds": max(int64(time.Since(c.hub.started).Seconds()), 0),
		},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// readPump handles subscription messages and detects disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		c.hub.logger.Info("ws: client disconnected", slog.Int("total_clients", c.hub.ClientCount()))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// writePump sends JSON text frames and keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
