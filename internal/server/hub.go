package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quiplabs/quip/internal/models"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 45 * time.Second
)

// replyEvent is pushed to subscribers when a turn completes.
type replyEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	Persisted      bool   `json:"persisted"`
}

// subscribeFrame is the only client-to-server message the hub accepts.
type subscribeFrame struct {
	Action         string `json:"action"` // "subscribe" or "unsubscribe"
	ConversationID string `json:"conversation_id"`
}

// AuthorizeFunc decides whether a principal may subscribe to a
// conversation's events.
type AuthorizeFunc func(ctx context.Context, conversationID, principalID string) bool

// Hub fans completed replies out to websocket subscribers, keyed by
// conversation. Connections subscribe explicitly; the hub never generates
// replies itself, so a dropped or duplicate socket cannot trigger extra
// turns.
type Hub struct {
	authorize AuthorizeFunc
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	mu   sync.RWMutex
	subs map[string]map[*connection]struct{}
}

type connection struct {
	ws          *websocket.Conn
	principalID string

	writeMu sync.Mutex
}

// NewHub creates a hub with the given subscription authorizer.
func NewHub(authorize AuthorizeFunc, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		authorize: authorize,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		subs: make(map[string]map[*connection]struct{}),
	}
}

// handleConnection upgrades the request and runs the read loop until the
// client disconnects.
func (h *Hub) handleConnection(w http.ResponseWriter, r *http.Request, principal *models.User) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "principal", principal.ID, "error", err)
		return
	}

	conn := &connection{ws: ws, principalID: principal.ID}
	h.logger.Debug("websocket connected", "principal", principal.ID)

	defer func() {
		h.dropConnection(conn)
		_ = ws.Close()
		h.logger.Debug("websocket disconnected", "principal", principal.ID)
	}()

	_ = ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go h.pingLoop(conn, stopPing)

	ctx := r.Context()
	for {
		var frame subscribeFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "principal", principal.ID, "error", err)
			}
			return
		}

		switch frame.Action {
		case "subscribe":
			if frame.ConversationID == "" {
				continue
			}
			if !h.authorize(ctx, frame.ConversationID, principal.ID) {
				h.logger.Warn("subscription denied",
					"principal", principal.ID, "conversation", frame.ConversationID)
				continue
			}
			h.subscribe(frame.ConversationID, conn)
		case "unsubscribe":
			h.unsubscribe(frame.ConversationID, conn)
		}
	}
}

// Broadcast sends an event to every subscriber of a conversation. Writes
// that fail are logged; the read loop tears the connection down.
func (h *Hub) Broadcast(conversationID string, event replyEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal failed", "conversation", conversationID, "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*connection, 0, len(h.subs[conversationID]))
	for conn := range h.subs[conversationID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.writeMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("event delivery failed",
				"conversation", conversationID, "principal", conn.principalID, "error", err)
		}
	}
}

func (h *Hub) subscribe(conversationID string, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[*connection]struct{})
	}
	h.subs[conversationID][conn] = struct{}{}
}

func (h *Hub) unsubscribe(conversationID string, conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[conversationID], conn)
	if len(h.subs[conversationID]) == 0 {
		delete(h.subs, conversationID)
	}
}

// dropConnection removes a connection from every subscription.
func (h *Hub) dropConnection(conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conns := range h.subs {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subs, id)
		}
	}
}

func (h *Hub) pingLoop(conn *connection, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) writeMessage(messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(messageType, payload)
}
