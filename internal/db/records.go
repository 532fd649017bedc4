package db

import (
	"fmt"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/quiplabs/quip/internal/models"
)

// recordIDString safely extracts the string ID from a SurrealDB RecordID.
func recordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// userRow is the wire representation of a user record.
type userRow struct {
	ID        surrealmodels.RecordID `json:"id"`
	Email     string                 `json:"email"`
	FirstName string                 `json:"first_name"`
	LastName  string                 `json:"last_name"`
	Password  string                 `json:"password"`
	Created   time.Time              `json:"created"`
}

func (r userRow) toModel() (models.User, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.User{}, err
	}
	return models.User{
		ID:           id,
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		PasswordHash: r.Password,
		CreatedAt:    r.Created,
	}, nil
}

// conversationRow is the wire representation of a conversation record.
type conversationRow struct {
	ID           surrealmodels.RecordID `json:"id"`
	Title        string                 `json:"title"`
	Principal    string                 `json:"principal"`
	LastActivity time.Time              `json:"last_activity"`
	Created      time.Time              `json:"created"`
}

func (r conversationRow) toModel() (models.Conversation, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.Conversation{}, err
	}
	return models.Conversation{
		ID:           id,
		Title:        r.Title,
		PrincipalID:  r.Principal,
		LastActivity: r.LastActivity,
		CreatedAt:    r.Created,
	}, nil
}

// turnRow is the wire representation of a turn record.
type turnRow struct {
	ID           surrealmodels.RecordID `json:"id"`
	Conversation string                 `json:"conversation"`
	Role         string                 `json:"role"`
	Content      string                 `json:"content"`
	Principal    *string                `json:"principal,omitempty"`
	Created      time.Time              `json:"created"`
}

func (r turnRow) toModel() (models.Turn, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.Turn{}, err
	}
	return models.Turn{
		ID:             id,
		ConversationID: r.Conversation,
		Role:           models.Role(r.Role),
		Content:        r.Content,
		PrincipalID:    r.Principal,
		CreatedAt:      r.Created,
	}, nil
}
