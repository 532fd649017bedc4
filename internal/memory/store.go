// Package memory provides the long-term memory store: embeddings plus
// metadata persisted for later similarity retrieval. It is a separate
// system from the transcript store; losing a memory record never
// invalidates the turn it was derived from.
package memory

import (
	"context"
	"time"

	"github.com/quiplabs/quip/internal/models"
)

// Record is one embedded turn stored for similarity retrieval.
type Record struct {
	ID             string
	Vector         []float32
	Text           string
	ConversationID string
	PrincipalID    string
	Role           models.Role
	TurnID         string
	CreatedAt      time.Time
}

// Fragment is one retrieved memory with its similarity score.
type Fragment struct {
	Text  string
	Score float32
}

// Filter restricts a similarity query. Fields are exact-match and combined
// with AND. Recall scope is per principal: memories follow the user across
// conversations rather than being confined to one chat.
type Filter struct {
	PrincipalID string
}

// Store is the vector memory store.
type Store interface {
	// Upsert stores or replaces a record by ID.
	Upsert(ctx context.Context, rec Record) error

	// Query returns up to topK fragments most similar to the vector,
	// highest similarity first.
	Query(ctx context.Context, vector []float32, topK int, f Filter) ([]Fragment, error)
}
