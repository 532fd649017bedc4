// Package models defines data structures for the Quip chat service.
package models

import "time"

// Role identifies the author of a turn.
type Role string

const (
	// RoleUser marks a turn written by a human principal.
	RoleUser Role = "user"

	// RoleAssistant marks a turn generated by the model.
	RoleAssistant Role = "assistant"
)

// Turn is one immutable message within a conversation.
// Turns are totally ordered within their conversation by CreatedAt.
// A user turn without a paired assistant turn is a valid state (the
// generation for it failed and the user may simply retry).
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	PrincipalID    *string   `json:"principal_id,omitempty"` // nil for assistant turns
	CreatedAt      time.Time `json:"created_at"`
}
