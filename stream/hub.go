package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/testharbor/testharbor/metrics"
)

const (
	// sendBufferSize bounds the per-connection outbound queue. A slow
	// consumer drops events rather than blocking the emitter.
	sendBufferSize = 256

	writeWait = 10 * time.Second
)

// connection is one registered transport with its subscriptions.
type connection struct {
	id             string
	ws             *websocket.Conn
	send           chan []byte
	channels       map[string]struct{}
	disconnected   bool
	disconnectedAt time.Time
}

// subscribeMessage is the only inbound message shape the hub understands.
type subscribeMessage struct {
	Action  string `json:"action"` // subscribe | unsubscribe
	Channel string `json:"channel"`
}

// Hub owns the connection registry and fans events out to subscribers.
// It is constructed once at startup and passed to collaborators; there is
// no package-level registry.
type Hub struct {
	log           zerolog.Logger
	sweepInterval time.Duration
	grace         time.Duration

	mu    sync.RWMutex
	conns map[string]*connection

	done chan struct{}
	wg   sync.WaitGroup
}

// Config holds configuration for creating a new hub.
type Config struct {
	Log           zerolog.Logger
	SweepInterval time.Duration // how often disconnected connections are reaped
	Grace         time.Duration // how long a disconnected connection may linger
}

// NewHub creates a hub and starts its periodic sweep.
func NewHub(cfg Config) *Hub {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.Grace <= 0 {
		cfg.Grace = time.Minute
	}
	h := &Hub{
		log:           cfg.Log.With().Str("component", "stream-hub").Logger(),
		sweepInterval: cfg.SweepInterval,
		grace:         cfg.Grace,
		conns:         make(map[string]*connection),
		done:          make(chan struct{}),
	}
	h.wg.Add(1)
	go h.sweepLoop()
	return h
}

// Stop terminates the sweep loop and closes every live connection.
func (h *Hub) Stop() {
	close(h.done)

	h.mu.Lock()
	for id, conn := range h.conns {
		close(conn.send)
		_ = conn.ws.Close()
		delete(h.conns, id)
	}
	h.mu.Unlock()
	metrics.RecordStreamConnections(0)

	h.wg.Wait()
}

// Register adds a websocket connection to the registry and starts its
// reader and writer pumps. The returned id addresses the connection for
// unicast sends.
func (h *Hub) Register(ws *websocket.Conn) string {
	conn := &connection{
		id:       uuid.New().String(),
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
		channels: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.conns[conn.id] = conn
	n := len(h.conns)
	h.mu.Unlock()
	metrics.RecordStreamConnections(n)

	h.log.Debug().Str("connection", conn.id).Msg("connection registered")

	h.wg.Add(2)
	go h.writePump(conn)
	go h.readPump(conn)
	return conn.id
}

// Subscribe adds the connection to a named channel.
func (h *Hub) Subscribe(id, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.conns[id]; ok {
		conn.channels[channel] = struct{}{}
	}
}

// Unsubscribe removes the connection from a named channel.
func (h *Hub) Unsubscribe(id, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.conns[id]; ok {
		delete(conn.channels, channel)
	}
}

// Broadcast delivers the event to every live connection.
func (h *Hub) Broadcast(event Event) {
	h.deliver(event, func(*connection) bool { return true })
}

// SendToChannel delivers the event to subscribers of the channel only.
func (h *Hub) SendToChannel(channel string, event Event) {
	h.deliver(event, func(c *connection) bool {
		_, ok := c.channels[channel]
		return ok
	})
}

// SendToConnection unicasts the event to one connection id.
func (h *Hub) SendToConnection(id string, event Event) {
	h.deliver(event, func(c *connection) bool { return c.id == id })
}

// Emit implements Emitter. Events are scoped to the session's channel and
// mirrored to the all-executions channel.
func (h *Hub) Emit(sessionID string, event Event) {
	event.SessionID = sessionID
	h.deliver(event, func(c *connection) bool {
		if _, ok := c.channels[sessionID]; ok {
			return true
		}
		_, ok := c.channels[ChannelAll]
		return ok
	})
}

// deliver serializes the event once and queues it on every matching
// connection. Dead connections found along the way are pruned; a full send
// buffer drops the event for that connection only.
func (h *Hub) deliver(event Event, match func(*connection) bool) {
	payload, err := json.Marshal(event.stamped())
	if err != nil {
		h.log.Error().Err(err).Str("event", string(event.Type)).Msg("failed to marshal event")
		return
	}

	var stale []*connection
	h.mu.RLock()
	for _, conn := range h.conns {
		if conn.disconnected {
			stale = append(stale, conn)
			continue
		}
		if !match(conn) {
			continue
		}
		select {
		case conn.send <- payload:
		default:
			h.log.Debug().Str("connection", conn.id).Msg("send buffer full, dropping event")
		}
	}
	h.mu.RUnlock()

	for _, conn := range stale {
		h.remove(conn.id)
	}
}

// markDisconnected flags a connection for removal without touching the
// registry, so iteration over the map stays safe.
func (h *Hub) markDisconnected(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.conns[id]; ok && !conn.disconnected {
		conn.disconnected = true
		conn.disconnectedAt = time.Now()
		_ = conn.ws.Close()
	}
}

// remove deletes the connection from the registry and releases its writer.
func (h *Hub) remove(id string) {
	h.mu.Lock()
	conn, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
		close(conn.send)
		_ = conn.ws.Close()
	}
	n := len(h.conns)
	h.mu.Unlock()

	if ok {
		metrics.RecordStreamConnections(n)
		h.log.Debug().Str("connection", id).Msg("connection removed")
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// sweepLoop reaps connections that were marked disconnected but never hit
// a send path, after the configured grace period.
func (h *Hub) sweepLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.sweep()
		case <-h.done:
			return
		}
	}
}

func (h *Hub) sweep() {
	cutoff := time.Now().Add(-h.grace)

	var stale []string
	h.mu.RLock()
	for id, conn := range h.conns {
		if conn.disconnected && conn.disconnectedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		h.remove(id)
	}
	if len(stale) > 0 {
		h.log.Debug().Int("count", len(stale)).Msg("swept disconnected connections")
	}
}

// writePump drains the connection's send queue onto the transport.
func (h *Hub) writePump(conn *connection) {
	defer h.wg.Done()

	for payload := range conn.send {
		_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug().Str("connection", conn.id).Err(err).Msg("write failed")
			h.markDisconnected(conn.id)
			// Keep draining so deliver never blocks on a dead connection.
		}
	}
}

// readPump consumes subscription messages until the transport closes,
// then eagerly marks the connection disconnected.
func (h *Hub) readPump(conn *connection) {
	defer h.wg.Done()

	for {
		_, payload, err := conn.ws.ReadMessage()
		if err != nil {
			h.markDisconnected(conn.id)
			return
		}
		var msg subscribeMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.log.Debug().Str("connection", conn.id).Err(err).Msg("ignoring malformed message")
			continue
		}
		switch msg.Action {
		case "subscribe":
			h.Subscribe(conn.id, msg.Channel)
		case "unsubscribe":
			h.Unsubscribe(conn.id, msg.Channel)
		default:
			h.log.Debug().Str("action", msg.Action).Msg("ignoring unknown action")
		}
	}
}
