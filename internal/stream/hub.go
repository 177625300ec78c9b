// Package stream implements the per-session fan-out hub: typed stream
// messages, bounded per-connection queues, and single-subscriber
// displacement on reconnect.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/mcphost/internal/metrics"
	"github.com/haasonsaas/mcphost/pkg/models"
)

const (
	// DefaultQueueSize bounds each connection's inbound FIFO.
	DefaultQueueSize = 100

	// DefaultMaxConnections caps the hub.
	DefaultMaxConnections = 50

	// HeartbeatInterval is how long a subscriber may sit idle before the
	// transport writer should emit a liveness record.
	HeartbeatInterval = 30 * time.Second

	// InactiveSweepAge is how old an inactive connection may get before
	// the sweeper removes it.
	InactiveSweepAge = time.Hour
)

// ErrHubFull is returned by Open when the connection cap is reached.
var ErrHubFull = errors.New("stream: connection limit reached")

// Connection is one subscriber attached to a session.
type Connection struct {
	id        string
	sessionID string
	queue     chan *models.StreamMessage
	createdAt time.Time

	// guarded by the hub mutex
	active bool
	closed bool
	// lastActivity is the last successful enqueue, used by the sweeper.
	lastActivity time.Time
}

// ID returns the connection id.
func (c *Connection) ID() string { return c.id }

// SessionID returns the session this connection subscribes to.
func (c *Connection) SessionID() string { return c.sessionID }

// Receive is the subscriber's message channel. It is closed when the
// connection is displaced, swept, or closed.
func (c *Connection) Receive() <-chan *models.StreamMessage { return c.queue }

// Hub fans stream messages out to per-session subscribers.
type Hub struct {
	logger         *slog.Logger
	queueSize      int
	maxConnections int

	mu        sync.Mutex
	conns     map[string]*Connection
	bySession map[string]map[string]*Connection

	nowFunc func() time.Time
}

// NewHub creates a hub with the default bounds.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:         logger.With("component", "stream-hub"),
		queueSize:      DefaultQueueSize,
		maxConnections: DefaultMaxConnections,
		conns:          make(map[string]*Connection),
		bySession:      make(map[string]map[string]*Connection),
		nowFunc:        time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (h *Hub) SetNowFunc(now func() time.Time) { h.nowFunc = now }

// NewSessionID generates a server-side session id.
func NewSessionID() string { return "session_" + shortID() }

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Open registers a new connection for the session. Any pre-existing
// connections for the same session receive a session_end record and are
// closed first, so at most one subscriber survives.
func (h *Hub) Open(sessionID string) (*Connection, error) {
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, old := range h.bySession[sessionID] {
		h.enqueueLocked(old, &models.StreamMessage{
			Type:      models.StreamSessionEnd,
			Content:   "session taken over by a new connection",
			SessionID: sessionID,
			Timestamp: h.nowFunc(),
		})
		h.removeLocked(old)
	}

	if len(h.conns) >= h.maxConnections {
		return nil, ErrHubFull
	}

	conn := &Connection{
		id:           "conn_" + shortID(),
		sessionID:    sessionID,
		queue:        make(chan *models.StreamMessage, h.queueSize),
		createdAt:    h.nowFunc(),
		active:       true,
		lastActivity: h.nowFunc(),
	}
	h.conns[conn.id] = conn
	if h.bySession[sessionID] == nil {
		h.bySession[sessionID] = make(map[string]*Connection)
	}
	h.bySession[sessionID][conn.id] = conn
	metrics.ActiveStreamConnections.Set(float64(len(h.conns)))

	h.logger.Debug("connection opened", "connection", conn.id, "session", sessionID)
	return conn, nil
}

// SendToSession delivers a message to every active connection of a
// session and returns the delivery count.
func (h *Hub) SendToSession(sessionID string, msg *models.StreamMessage) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for _, conn := range h.bySession[sessionID] {
		if h.enqueueLocked(conn, msg) {
			delivered++
		}
	}
	return delivered
}

// SendToConnection delivers to one connection. Reports success.
func (h *Hub) SendToConnection(connectionID string, msg *models.StreamMessage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[connectionID]
	if !ok {
		return false
	}
	return h.enqueueLocked(conn, msg)
}

// Broadcast delivers to every active connection and returns the count.
func (h *Hub) Broadcast(msg *models.StreamMessage) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for _, conn := range h.conns {
		if h.enqueueLocked(conn, msg) {
			delivered++
		}
	}
	return delivered
}

// enqueueLocked pushes without blocking. A full queue deactivates the
// connection; the producer is never stalled by a slow subscriber.
func (h *Hub) enqueueLocked(conn *Connection, msg *models.StreamMessage) bool {
	if !conn.active || conn.closed {
		return false
	}
	select {
	case conn.queue <- msg:
		conn.lastActivity = h.nowFunc()
		return true
	default:
		conn.active = false
		h.logger.Warn("connection queue full, deactivating",
			"connection", conn.id, "session", conn.sessionID)
		return false
	}
}

// Close removes a connection and closes its channel.
func (h *Hub) Close(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.conns[connectionID]; ok {
		h.removeLocked(conn)
	}
}

func (h *Hub) removeLocked(conn *Connection) {
	if conn.closed {
		return
	}
	conn.closed = true
	conn.active = false
	close(conn.queue)
	delete(h.conns, conn.id)
	if set := h.bySession[conn.sessionID]; set != nil {
		delete(set, conn.id)
		if len(set) == 0 {
			delete(h.bySession, conn.sessionID)
		}
	}
	metrics.ActiveStreamConnections.Set(float64(len(h.conns)))
	h.logger.Debug("connection closed", "connection", conn.id, "session", conn.sessionID)
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// SessionConnectionCount returns how many connections a session has.
func (h *Hub) SessionConnectionCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bySession[sessionID])
}

// SweepInactive removes deactivated connections older than maxAge and
// returns the count removed.
func (h *Hub) SweepInactive(maxAge time.Duration) int {
	now := h.nowFunc()
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for _, conn := range h.conns {
		if !conn.active && now.Sub(conn.lastActivity) > maxAge {
			h.removeLocked(conn)
			removed++
		}
	}
	return removed
}

// RunSweeper periodically sweeps inactive connections until the context
// is cancelled.
func (h *Hub) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(InactiveSweepAge / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.SweepInactive(InactiveSweepAge); n > 0 {
				h.logger.Info("inactive connections swept", "count", n)
			}
		}
	}
}
