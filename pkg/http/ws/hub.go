package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub tracks connections keyed by connection ID and fans messages out to
// session groups. The host of each session has a private channel on top of
// the session group so answer keys never reach participants.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection
	sessions    map[uuid.UUID][]uuid.UUID // session_id -> []connection_id
	hosts       map[uuid.UUID]uuid.UUID   // session_id -> host connection_id
	logger      zerolog.Logger
	onDrop      func()
}

// NewHub creates an empty hub. onDrop is invoked whenever a message is
// discarded because a client's send queue was full; it may be nil.
func NewHub(logger zerolog.Logger, onDrop func()) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID]*Connection),
		sessions:    make(map[uuid.UUID][]uuid.UUID),
		hosts:       make(map[uuid.UUID]uuid.UUID),
		logger:      logger,
		onDrop:      onDrop,
	}
}

// Register adds a connection under its ID.
func (h *Hub) Register(connID uuid.UUID, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, exists := h.connections[connID]; exists {
		old.Close()
	}
	h.connections[connID] = conn
}

// Unregister drops a connection and detaches it from all groups.
func (h *Hub) Unregister(connID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn, exists := h.connections[connID]; exists {
		conn.Close()
		delete(h.connections, connID)
	}
	for sessionID, conns := range h.sessions {
		for i, id := range conns {
			if id == connID {
				h.sessions[sessionID] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
	}
	for sessionID, hostConn := range h.hosts {
		if hostConn == connID {
			delete(h.hosts, sessionID)
		}
	}
}

// JoinSession attaches a connection to a session's broadcast group.
func (h *Hub) JoinSession(sessionID, connID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.sessions[sessionID]
	for _, id := range conns {
		if id == connID {
			return
		}
	}
	h.sessions[sessionID] = append(conns, connID)
}

// LeaveSession detaches a connection from a session's group.
func (h *Hub) LeaveSession(sessionID, connID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.sessions[sessionID]
	for i, id := range conns {
		if id == connID {
			h.sessions[sessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
}

// BindHost marks a connection as a session's host channel. It also joins the
// session group so the host receives group broadcasts.
func (h *Hub) BindHost(sessionID, connID uuid.UUID) {
	h.JoinSession(sessionID, connID)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hosts[sessionID] = connID
}

// DropSession removes a whole session group, e.g. after termination.
func (h *Hub) DropSession(sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
	delete(h.hosts, sessionID)
}

// BroadcastToSession sends to every connection in the session group.
// Delivery is best effort: a full client queue drops the message for that
// client rather than stalling the rest.
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, msg Message) {
	h.mu.RLock()
	conns := make([]uuid.UUID, len(h.sessions[sessionID]))
	copy(conns, h.sessions[sessionID])
	h.mu.RUnlock()

	for _, connID := range conns {
		h.send(connID, msg)
	}
}

// SendToHost delivers on a session's private host channel.
func (h *Hub) SendToHost(sessionID uuid.UUID, msg Message) {
	h.mu.RLock()
	connID, ok := h.hosts[sessionID]
	h.mu.RUnlock()
	if ok {
		h.send(connID, msg)
	}
}

// SendToConnection delivers to one connection.
func (h *Hub) SendToConnection(connID uuid.UUID, msg Message) {
	h.send(connID, msg)
}

func (h *Hub) send(connID uuid.UUID, msg Message) {
	h.mu.RLock()
	conn, exists := h.connections[connID]
	h.mu.RUnlock()
	if !exists {
		return
	}

	if err := conn.Send(msg); err != nil {
		if err == ErrSendQueueFull && h.onDrop != nil {
			h.onDrop()
		}
		h.logger.Warn().Err(err).
			Str("conn_id", connID.String()).
			Str("type", msg.Type).
			Msg("send failed")
	}
}

// Connection wraps a WebSocket with a buffered send queue. The write pump is
// the only goroutine touching the socket for writes.
type Connection struct {
	conn   *websocket.Conn
	sendCh chan Message
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

// NewConnection wraps a WebSocket connection.
func NewConnection(conn *websocket.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		conn:   conn,
		sendCh: make(chan Message, 256),
		logger: logger,
	}
}

// Send queues a message for delivery.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts down the connection. Safe to call more than once.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.sendCh)
	if c.conn != nil {
		c.conn.Close()
	}
}

// WritePump drains the send queue onto the socket.
func (c *Connection) WritePump() {
	defer c.conn.Close()

	for msg := range c.sendCh {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.logger.Warn().Err(err).Msg("write error")
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ReadPump reads messages and calls the handler until the socket drops.
func (c *Connection) ReadPump(handler func(Message) error) {
	defer c.conn.Close()

	// 60s read deadline, extended on pong
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			break
		}

		if err := handler(msg); err != nil {
			c.logger.Warn().Err(err).Str("type", msg.Type).Msg("message handler error")
		}
	}
}

var (
	ErrConnectionClosed = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull    = &Error{Code: "send_queue_full", Message: "Send queue is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
