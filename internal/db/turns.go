package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/quiplabs/quip/internal/models"
)

// AppendTurn appends one turn to a conversation's transcript and bumps the
// conversation's last_activity in the same transaction. The created
// timestamp is assigned by the database, so relative order of turns within
// a conversation follows the store's own write ordering.
func (c *Client) AppendTurn(
	ctx context.Context,
	conversationID string,
	role models.Role,
	content string,
	principalID *string,
) (models.Turn, error) {
	id := uuid.NewString()

	// UPDATE first so the CREATE result is the last statement's output.
	sql := `
		BEGIN TRANSACTION;
		UPDATE type::record("conversation", $conversation)
			SET last_activity = time::now()
			RETURN NONE;
		CREATE type::record("turn", $id) CONTENT {
			conversation: $conversation,
			role: $role,
			content: $content,
			principal: $principal
		};
		COMMIT TRANSACTION;
	`

	vars := map[string]any{
		"id":           id,
		"conversation": conversationID,
		"role":         string(role),
		"content":      content,
		"principal":    principalID,
	}

	results, err := surrealdb.Query[[]turnRow](ctx, c.db, sql, vars)
	if err != nil {
		return models.Turn{}, fmt.Errorf("append turn: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return models.Turn{}, fmt.Errorf("append turn: empty result")
	}
	rows := (*results)[len(*results)-1].Result
	if len(rows) == 0 {
		return models.Turn{}, fmt.Errorf("append turn: no record created")
	}

	turn, err := rows[0].toModel()
	if err != nil {
		return models.Turn{}, fmt.Errorf("append turn: %w", err)
	}
	return turn, nil
}

// RecentTurns returns up to limit turns of a conversation, newest first.
func (c *Client) RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.Turn, error) {
	results, err := surrealdb.Query[[]turnRow](ctx, c.db, `
		SELECT * FROM turn
		WHERE conversation = $conversation
		ORDER BY created DESC
		LIMIT $limit
	`, map[string]any{
		"conversation": conversationID,
		"limit":        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.Turn{}, nil
	}

	rows := (*results)[0].Result
	turns := make([]models.Turn, 0, len(rows))
	for _, row := range rows {
		turn, err := row.toModel()
		if err != nil {
			return nil, fmt.Errorf("recent turns: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
