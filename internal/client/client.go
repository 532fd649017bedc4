// Package client provides a JSON API client for the quip server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/quiplabs/quip/internal/models"
)

// Client talks to the quip server's JSON API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new API client. If baseURL is empty, uses the
// QUIP_SERVER_URL env var or defaults to localhost:8080. The token is
// attached as a bearer credential when non-empty.
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("QUIP_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	timeout := 2 * time.Minute // generation can be slow on local models
	if t := os.Getenv("QUIP_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a structured failure returned by the server.
type APIError struct {
	Status     int
	Code       string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s (retry after %ds)", e.Code, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// do sends one JSON request and decodes the response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("server error: %s - %s", resp.Status, string(respBody))
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// AuthResult is the response to register and login calls.
type AuthResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Register creates a new account and returns a session token.
func (c *Client) Register(ctx context.Context, email, firstName, lastName, password string) (*AuthResult, error) {
	body := map[string]string{
		"email":      email,
		"first_name": firstName,
		"last_name":  lastName,
		"password":   password,
	}

	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", body, &result); err != nil {
		return nil, err
	}
	c.token = result.Token
	return &result, nil
}

// Login authenticates and returns a session token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}

	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &result); err != nil {
		return nil, err
	}
	c.token = result.Token
	return &result, nil
}

// CreateConversation starts a new conversation.
func (c *Client) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	var result models.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/chat", map[string]string{"title": title}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListConversations returns the caller's conversations, most recently
// active first.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var result []models.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/chat", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ConversationView is a conversation with its transcript, oldest first.
type ConversationView struct {
	Conversation models.Conversation `json:"conversation"`
	Turns        []models.Turn       `json:"turns"`
}

// GetConversation retrieves a conversation and its transcript.
func (c *Client) GetConversation(ctx context.Context, id string) (*ConversationView, error) {
	var result ConversationView
	if err := c.do(ctx, http.MethodGet, "/api/chat/"+id, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TurnResult is the outcome of one sent message.
type TurnResult struct {
	Reply         string       `json:"reply"`
	UserTurn      models.Turn  `json:"user_turn"`
	AssistantTurn *models.Turn `json:"assistant_turn,omitempty"`
	ContextUsed   bool         `json:"context_used"`
	Persisted     bool         `json:"persisted"`
}

// SendMessage submits a user message and waits for the assistant reply.
func (c *Client) SendMessage(ctx context.Context, conversationID, text string) (*TurnResult, error) {
	var result TurnResult
	if err := c.do(ctx, http.MethodPost, "/api/chat/"+conversationID+"/message", map[string]string{"text": text}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
