package handlers

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/arnold/steady-api/internal/engine"
	"github.com/arnold/steady-api/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
	// sendBuffer is how many events may queue for one connection.
	sendBuffer = 16
)

// messageWriter is the part of *websocket.Conn the hub writes to.
type messageWriter interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// connection wraps a websocket connection with its user ID. Events are
// queued on send and written by writeLoop, so a slow client never blocks
// the notifier.
type connection struct {
	conn   messageWriter
	userID uuid.UUID
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func newConnection(conn messageWriter, userID uuid.UUID) *connection {
	return &connection{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue reports false when the queue is full or the connection closed.
func (c *connection) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *connection) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *connection) writeLoop(log logrus.FieldLogger) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.WithError(err).WithField("user_id", c.userID).Warn("WS write failed")
				c.close()
				return
			}
		}
	}
}

// Hub manages WebSocket connections per user. Every device of a user has its
// own connection and all of them receive the user's events.
type Hub struct {
	log   logrus.FieldLogger
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*connection]bool // userID -> set of connections

	onConnect func(userID uuid.UUID)
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		log:   log,
		rooms: make(map[uuid.UUID]map[*connection]bool),
	}
}

// OnConnect registers a callback run for every new connection, before it
// starts receiving events.
func (h *Hub) OnConnect(fn func(userID uuid.UUID)) {
	h.onConnect = fn
}

func (h *Hub) register(conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[conn.userID] == nil {
		h.rooms[conn.userID] = make(map[*connection]bool)
	}
	h.rooms[conn.userID][conn] = true
	h.log.WithFields(logrus.Fields{"user_id": conn.userID, "total": len(h.rooms[conn.userID])}).Debug("WS register")
}

func (h *Hub) unregister(conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[conn.userID]; ok {
		delete(conns, conn)
		h.log.WithFields(logrus.Fields{"user_id": conn.userID, "remaining": len(conns)}).Debug("WS unregister")
		if len(conns) == 0 {
			delete(h.rooms, conn.userID)
		}
	}
	conn.close()
}

// Connections counts the open connections of a user.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Notify queues an event for every connection of the user. It never blocks;
// a connection whose queue is full misses the event.
func (h *Hub) Notify(userID uuid.UUID, event engine.Event) {
	h.mu.RLock()
	conns := make([]*connection, 0, len(h.rooms[userID]))
	for c := range h.rooms[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	msg, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).WithField("type", event.Type).Error("WS marshal failed")
		return
	}

	for _, c := range conns {
		if !c.enqueue(msg) {
			h.log.WithFields(logrus.Fields{"user_id": userID, "type": event.Type}).Warn("WS queue full, event dropped")
		}
	}
}

// WebSocketUpgrade is the middleware that checks the upgrade request and validates JWT
func WebSocketUpgrade(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// Authenticate via query param: ?token=<jwt>
		tokenString := c.Query("token")
		if tokenString == "" {
			// Also check Authorization header for non-browser clients
			tokenString = middleware.BearerToken(c)
		}

		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authentication token",
			})
		}

		claims, err := middleware.ParseToken(secret, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("userId", claims.UserID)
		return c.Next()
	}
}

// HandleWebSocket keeps a user's connection registered until it closes.
func (h *Hub) HandleWebSocket(c *websocket.Conn) {
	userID, ok := c.Locals("userId").(uuid.UUID)
	if !ok {
		c.Close()
		return
	}

	if h.onConnect != nil {
		h.onConnect(userID)
	}

	conn := newConnection(c, userID)
	h.register(conn)
	defer h.unregister(conn)
	go conn.writeLoop(h.log)

	// Keep connection alive: read messages (client sends pings/keepalives)
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}
