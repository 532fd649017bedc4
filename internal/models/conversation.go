package models

import "time"

// Conversation represents a persistent chat session.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	PrincipalID  string    `json:"principal_id"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}
