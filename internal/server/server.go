// Package server provides the HTTP and WebSocket surface over the turn
// pipeline: auth, conversation routes, the message endpoint, and reply
// push notifications.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/quiplabs/quip/internal/chat"
	"github.com/quiplabs/quip/internal/db"
	"github.com/quiplabs/quip/internal/metrics"
	"github.com/quiplabs/quip/internal/models"
)

// turnProcessor is the one core operation the transport layer consumes.
type turnProcessor interface {
	ProcessTurn(ctx context.Context, conversationID, principalID, text string) (*chat.Reply, error)
}

// conversationStore is the subset of the database the handlers need.
type conversationStore interface {
	CreateUser(ctx context.Context, email, firstName, lastName, passwordHash string) (models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateConversation(ctx context.Context, principalID, title string) (models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, principalID string) ([]models.Conversation, error)
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.Turn, error)
}

// Compile-time check that the db client satisfies the store contract.
var _ conversationStore = (*db.Client)(nil)

// Server holds the HTTP handler dependencies.
type Server struct {
	store     conversationStore
	turns     turnProcessor
	hub       *Hub
	stats     *metrics.Collector
	jwtSecret []byte
	logger    *slog.Logger
}

// New creates the server. The hub's subscription authorizer is wired to
// conversation ownership.
func New(store conversationStore, turns turnProcessor, jwtSecret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:     store,
		turns:     turns,
		stats:     metrics.NewCollector(),
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}
	s.hub = NewHub(s.ownsConversation, logger)
	return s
}

// Handler builds the route table with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.HandleFunc("POST /api/chat", s.requireAuth(s.handleCreateConversation))
	mux.HandleFunc("GET /api/chat", s.requireAuth(s.handleListConversations))
	mux.HandleFunc("GET /api/chat/{chatID}", s.requireAuth(s.handleGetConversation))
	mux.HandleFunc("POST /api/chat/{chatID}/message", s.requireAuth(s.handleSendMessage))

	mux.HandleFunc("GET /ws", s.requireAuth(s.hub.handleConnection))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.stats.Snapshot())
	})

	return requestLogging(s.logger)(mux)
}

// ownsConversation reports whether the principal owns the conversation.
// Used to authorize websocket subscriptions.
func (s *Server) ownsConversation(ctx context.Context, conversationID, principalID string) bool {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		s.logger.Warn("subscription ownership check failed", "conversation", conversationID, "error", err)
		return false
	}
	return conv != nil && conv.PrincipalID == principalID
}
