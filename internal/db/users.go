package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/quiplabs/quip/internal/models"
)

// CreateUser creates a new user account. The email is unique; creating a
// second account with the same email returns ErrAlreadyExists.
func (c *Client) CreateUser(ctx context.Context, email, firstName, lastName, passwordHash string) (models.User, error) {
	id := uuid.NewString()

	results, err := surrealdb.Query[[]userRow](ctx, c.db, `
		CREATE type::record("user", $id) CONTENT {
			email: $email,
			first_name: $first_name,
			last_name: $last_name,
			password: $password
		}
	`, map[string]any{
		"id":         id,
		"email":      email,
		"first_name": firstName,
		"last_name":  lastName,
		"password":   passwordHash,
	})
	if err != nil {
		return models.User{}, fmt.Errorf("create user: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.User{}, fmt.Errorf("create user: no record created")
	}

	user, err := (*results)[0].Result[0].toModel()
	if err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by ID.
// Returns nil if not found.
func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	results, err := surrealdb.Query[[]userRow](ctx, c.db, `
		SELECT * FROM type::record("user", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}

	user, err := (*results)[0].Result[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email.
// Returns nil if not found.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	results, err := surrealdb.Query[[]userRow](ctx, c.db, `
		SELECT * FROM user WHERE email = $email LIMIT 1
	`, map[string]any{"email": email})
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}

	user, err := (*results)[0].Result[0].toModel()
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}
