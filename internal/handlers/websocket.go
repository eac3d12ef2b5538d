package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnold/gutgoals-api/internal/goals"
	"github.com/arnold/gutgoals-api/internal/middleware"
)

// Event types sent over WebSocket
const (
	EventGoalsUpdated     = "goals_updated"
	EventGoalsReplenished = "goals_replenished"
	EventGoalsCleared     = "goals_cleared"
	EventLogAdded         = "log_added"
)

// WSEvent is the JSON message sent to connected clients
type WSEvent struct {
	Type   string      `json:"type"`
	UserID string      `json:"userId"`
	Data   interface{} `json:"data,omitempty"`
}

type messageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// connection wraps one device's websocket. Writes are serialized.
type connection struct {
	mu   sync.Mutex
	conn messageWriter
}

func (c *connection) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub tracks the open websockets of each user, one per signed-in device.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*connection]bool
	log   *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		rooms: make(map[uuid.UUID]map[*connection]bool),
		log:   log,
	}
}

func (h *Hub) register(userID uuid.UUID, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[userID] == nil {
		h.rooms[userID] = make(map[*connection]bool)
	}
	h.rooms[userID][conn] = true
	h.log.Debug("WS register", zap.Stringer("user_id", userID), zap.Int("total", len(h.rooms[userID])))
}

func (h *Hub) unregister(userID uuid.UUID, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[userID]; ok {
		delete(conns, conn)
		h.log.Debug("WS unregister", zap.Stringer("user_id", userID), zap.Int("remaining", len(conns)))
		if len(conns) == 0 {
			delete(h.rooms, userID)
		}
	}
}

// Connections reports how many sockets userID has open.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Broadcast sends an event to every open socket of userID.
func (h *Hub) Broadcast(userID uuid.UUID, event WSEvent) {
	h.mu.RLock()
	conns := make([]*connection, 0, len(h.rooms[userID]))
	for c := range h.rooms[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	event.UserID = userID.String()
	msg, err := json.Marshal(event)
	if err != nil {
		h.log.Error("WS broadcast marshal error", zap.Error(err))
		return
	}

	for _, c := range conns {
		if err := c.write(msg); err != nil {
			h.log.Warn("WS write error", zap.Stringer("user_id", userID), zap.Error(err))
		}
	}
}

// GoalsReplenished pushes the refilled goal set to the user's devices.
func (h *Hub) GoalsReplenished(_ context.Context, userID uuid.UUID, active []goals.Goal, added int) {
	h.Broadcast(userID, WSEvent{
		Type: EventGoalsReplenished,
		Data: fiber.Map{"goals": active, "added": added},
	})
}

// WebSocketUpgrade is the middleware that checks the upgrade request and validates JWT
func (h *Handler) WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// Authenticate via query param: ?token=<jwt>
		tokenString := c.Query("token")
		if tokenString == "" {
			authHeader := c.Get("Authorization")
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				tokenString = ""
			}
		}

		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authentication token",
			})
		}

		claims, err := middleware.ParseToken(h.JWTSecret, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("userId", claims.UserID)
		return c.Next()
	}
}

// HandleWebSocket keeps a device subscribed to its user's goal events.
func (h *Handler) HandleWebSocket(c *websocket.Conn) {
	userID, ok := c.Locals("userId").(uuid.UUID)
	if !ok {
		c.Close()
		return
	}

	conn := &connection{conn: c}
	h.Hub.register(userID, conn)
	defer h.Hub.unregister(userID, conn)

	// Clients only send keepalives.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}
