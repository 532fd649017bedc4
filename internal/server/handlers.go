package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/quiplabs/quip/internal/chat"
	"github.com/quiplabs/quip/internal/db"
	"github.com/quiplabs/quip/internal/metrics"
	"github.com/quiplabs/quip/internal/models"
)

// turnOutcome maps a ProcessTurn error onto a stable outcome label.
func turnOutcome(err error) string {
	if turnErr, ok := chat.AsError(err); ok {
		return turnErr.Kind.String()
	}
	return "internal_error"
}

type registerRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	defer func(start time.Time) { s.stats.RecordTiming(metrics.OpAuth, time.Since(start)) }(time.Now())

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", 0)
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid email address", 0)
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "validation_error", "password must be at least 8 characters", 0)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "password hashing failed", 0)
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Email, req.FirstName, req.LastName, string(hash))
	if err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "already_exists", "an account with this email already exists", 0)
			return
		}
		s.logger.Error("user creation failed", "email", req.Email, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "account creation failed", 0)
		return
	}

	s.completeAuth(w, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	defer func(start time.Time) { s.stats.RecordTiming(metrics.OpAuth, time.Since(start)) }(time.Now())

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", 0)
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		s.logger.Error("login lookup failed", "email", req.Email, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "login failed", 0)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password", 0)
		return
	}

	s.completeAuth(w, *user)
}

// completeAuth issues a session token, sets it as a cookie, and returns it
// in the body for header-based clients.
func (s *Server) completeAuth(w http.ResponseWriter, user models.User) {
	token, err := s.issueToken(user.ID)
	if err != nil {
		s.logger.Error("token signing failed", "user", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "session creation failed", 0)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request, principal *models.User) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", 0)
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New conversation"
	}

	conv, err := s.store.CreateConversation(r.Context(), principal.ID, title)
	if err != nil {
		s.logger.Error("conversation creation failed", "principal", principal.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "conversation creation failed", 0)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, principal *models.User) {
	convs, err := s.store.ListConversations(r.Context(), principal.ID)
	if err != nil {
		s.logger.Error("conversation listing failed", "principal", principal.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "conversation listing failed", 0)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

type conversationResponse struct {
	Conversation models.Conversation `json:"conversation"`
	Turns        []models.Turn       `json:"turns"`
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request, principal *models.User) {
	defer func(start time.Time) { s.stats.RecordTiming(metrics.OpHistory, time.Since(start)) }(time.Now())

	chatID := r.PathValue("chatID")

	conv, err := s.store.GetConversation(r.Context(), chatID)
	if err != nil {
		s.logger.Error("conversation lookup failed", "conversation", chatID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "conversation lookup failed", 0)
		return
	}
	if conv == nil || conv.PrincipalID != principal.ID {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found", 0)
		return
	}

	turns, err := s.store.RecentTurns(r.Context(), chatID, historyLimit)
	if err != nil {
		s.logger.Error("transcript read failed", "conversation", chatID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "transcript read failed", 0)
		return
	}

	// RecentTurns returns newest first; history reads oldest first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	if turns == nil {
		turns = []models.Turn{}
	}

	writeJSON(w, http.StatusOK, conversationResponse{Conversation: *conv, Turns: turns})
}

// historyLimit bounds the transcript returned by the conversation view.
const historyLimit = 200

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	Reply         string       `json:"reply"`
	UserTurn      models.Turn  `json:"user_turn"`
	AssistantTurn *models.Turn `json:"assistant_turn,omitempty"`
	ContextUsed   bool         `json:"context_used"`
	Persisted     bool         `json:"persisted"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, principal *models.User) {
	chatID := r.PathValue("chatID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid request body", 0)
		return
	}

	conv, err := s.store.GetConversation(r.Context(), chatID)
	if err != nil {
		s.logger.Error("conversation lookup failed", "conversation", chatID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "conversation lookup failed", 0)
		return
	}
	if conv == nil || conv.PrincipalID != principal.ID {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found", 0)
		return
	}

	start := time.Now()
	reply, err := s.turns.ProcessTurn(r.Context(), chatID, principal.ID, req.Text)
	s.stats.RecordTiming(metrics.OpTurn, time.Since(start))
	if err != nil {
		s.stats.RecordOutcome(turnOutcome(err))
		writeTurnError(w, err)
		return
	}
	s.stats.RecordOutcome(metrics.OutcomeOK)

	resp := sendMessageResponse{
		Reply:         reply.Text,
		UserTurn:      reply.UserTurn,
		AssistantTurn: reply.AssistantTurn,
		ContextUsed:   reply.ContextUsed,
		Persisted:     reply.Persisted,
	}
	writeJSON(w, http.StatusOK, resp)

	// Push the reply to any live subscribers of this conversation.
	s.hub.Broadcast(chatID, replyEvent{
		Type:           "assistant_reply",
		ConversationID: chatID,
		Text:           reply.Text,
		Persisted:      reply.Persisted,
	})
}
