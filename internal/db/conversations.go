package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/quiplabs/quip/internal/models"
)

// CreateConversation creates a new conversation owned by a principal.
func (c *Client) CreateConversation(ctx context.Context, principalID, title string) (models.Conversation, error) {
	id := uuid.NewString()

	results, err := surrealdb.Query[[]conversationRow](ctx, c.db, `
		CREATE type::record("conversation", $id) CONTENT {
			title: $title,
			principal: $principal
		}
	`, map[string]any{
		"id":        id,
		"title":     title,
		"principal": principalID,
	})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("create conversation: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.Conversation{}, fmt.Errorf("create conversation: no record created")
	}

	conv, err := (*results)[0].Result[0].toModel()
	if err != nil {
		return models.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID.
// Returns nil if not found.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	results, err := surrealdb.Query[[]conversationRow](ctx, c.db, `
		SELECT * FROM type::record("conversation", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}

	conv, err := (*results)[0].Result[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns a principal's conversations, most recently
// active first.
func (c *Client) ListConversations(ctx context.Context, principalID string) ([]models.Conversation, error) {
	results, err := surrealdb.Query[[]conversationRow](ctx, c.db, `
		SELECT * FROM conversation
		WHERE principal = $principal
		ORDER BY last_activity DESC
	`, map[string]any{"principal": principalID})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.Conversation{}, nil
	}

	rows := (*results)[0].Result
	convs := make([]models.Conversation, 0, len(rows))
	for _, row := range rows {
		conv, err := row.toModel()
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, nil
}
