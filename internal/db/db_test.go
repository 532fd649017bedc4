// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/quiplabs/quip/internal/models"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func createTestUser(t *testing.T, email string) models.User {
	t.Helper()
	user, err := testDB.CreateUser(context.Background(), email, "Test", "User", "not-a-real-hash")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}

func createTestConversation(t *testing.T, principalID string) models.Conversation {
	t.Helper()
	conv, err := testDB.CreateConversation(context.Background(), principalID, "Test Conversation")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return conv
}

// =============================================================================
// USER TESTS
// =============================================================================

func TestCreateUser(t *testing.T) {
	ctx := context.Background()

	user, err := testDB.CreateUser(ctx, "create@example.com", "Ada", "Lovelace", "hash")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if user.ID == "" {
		t.Error("Expected non-empty user ID")
	}
	if user.Email != "create@example.com" {
		t.Errorf("Expected email 'create@example.com', got %q", user.Email)
	}
	if user.FirstName != "Ada" {
		t.Errorf("Expected first name 'Ada', got %q", user.FirstName)
	}
	if user.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	ctx := context.Background()

	createTestUser(t, "dupe@example.com")

	_, err := testDB.CreateUser(ctx, "dupe@example.com", "Other", "Person", "hash")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists for duplicate email, got %v", err)
	}
}

func TestGetUser(t *testing.T) {
	ctx := context.Background()

	created := createTestUser(t, "get@example.com")

	user, err := testDB.GetUser(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user == nil {
		t.Fatal("GetUser returned nil")
	}
	if user.Email != "get@example.com" {
		t.Errorf("Expected email 'get@example.com', got %q", user.Email)
	}
	if user.PasswordHash != "not-a-real-hash" {
		t.Errorf("Expected password hash to round-trip, got %q", user.PasswordHash)
	}

	missing, err := testDB.GetUser(ctx, "no-such-user")
	if err != nil {
		t.Errorf("GetUser with unknown ID should not error: %v", err)
	}
	if missing != nil {
		t.Error("GetUser with unknown ID should return nil")
	}
}

func TestGetUserByEmail(t *testing.T) {
	ctx := context.Background()

	created := createTestUser(t, "byemail@example.com")

	user, err := testDB.GetUserByEmail(ctx, "byemail@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if user == nil {
		t.Fatal("GetUserByEmail returned nil")
	}
	if user.ID != created.ID {
		t.Errorf("Expected ID %q, got %q", created.ID, user.ID)
	}

	missing, err := testDB.GetUserByEmail(ctx, "nobody@example.com")
	if err != nil {
		t.Errorf("GetUserByEmail with unknown email should not error: %v", err)
	}
	if missing != nil {
		t.Error("GetUserByEmail with unknown email should return nil")
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestCreateConversation(t *testing.T) {
	user := createTestUser(t, "conv-create@example.com")

	conv := createTestConversation(t, user.ID)
	if conv.ID == "" {
		t.Error("Expected non-empty conversation ID")
	}
	if conv.PrincipalID != user.ID {
		t.Errorf("Expected principal %q, got %q", user.ID, conv.PrincipalID)
	}
	if conv.LastActivity.IsZero() {
		t.Error("Expected LastActivity to be set")
	}
}

func TestGetConversation(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "conv-get@example.com")
	created := createTestConversation(t, user.ID)

	conv, err := testDB.GetConversation(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if conv == nil {
		t.Fatal("GetConversation returned nil")
	}
	if conv.Title != "Test Conversation" {
		t.Errorf("Expected title 'Test Conversation', got %q", conv.Title)
	}

	missing, err := testDB.GetConversation(ctx, "no-such-conversation")
	if err != nil {
		t.Errorf("GetConversation with unknown ID should not error: %v", err)
	}
	if missing != nil {
		t.Error("GetConversation with unknown ID should return nil")
	}
}

func TestListConversationsOrderedByActivity(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "conv-list@example.com")

	older := createTestConversation(t, user.ID)
	newer := createTestConversation(t, user.ID)

	// Appending a turn bumps last_activity, so the older conversation
	// becomes the most recently active one.
	if _, err := testDB.AppendTurn(ctx, older.ID, models.RoleUser, "bump", &user.ID); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	convs, err := testDB.ListConversations(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("Expected 2 conversations, got %d", len(convs))
	}
	if convs[0].ID != older.ID {
		t.Errorf("Expected bumped conversation %q first, got %q", older.ID, convs[0].ID)
	}
	if convs[1].ID != newer.ID {
		t.Errorf("Expected conversation %q second, got %q", newer.ID, convs[1].ID)
	}
}

func TestListConversationsScopedToPrincipal(t *testing.T) {
	ctx := context.Background()
	alice := createTestUser(t, "conv-alice@example.com")
	bob := createTestUser(t, "conv-bob@example.com")

	createTestConversation(t, alice.ID)

	convs, err := testDB.ListConversations(ctx, bob.ID)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 0 {
		t.Errorf("Expected no conversations for other principal, got %d", len(convs))
	}
}

// =============================================================================
// TURN TESTS
// =============================================================================

func TestAppendTurn(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "turn-append@example.com")
	conv := createTestConversation(t, user.ID)

	turn, err := testDB.AppendTurn(ctx, conv.ID, models.RoleUser, "hello there", &user.ID)
	if err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	if turn.ID == "" {
		t.Error("Expected non-empty turn ID")
	}
	if turn.ConversationID != conv.ID {
		t.Errorf("Expected conversation %q, got %q", conv.ID, turn.ConversationID)
	}
	if turn.Role != models.RoleUser {
		t.Errorf("Expected role %q, got %q", models.RoleUser, turn.Role)
	}
	if turn.Content != "hello there" {
		t.Errorf("Expected content 'hello there', got %q", turn.Content)
	}
	if turn.PrincipalID == nil || *turn.PrincipalID != user.ID {
		t.Errorf("Expected principal %q, got %v", user.ID, turn.PrincipalID)
	}

	// Assistant turns carry no principal.
	assistant, err := testDB.AppendTurn(ctx, conv.ID, models.RoleAssistant, "hi!", nil)
	if err != nil {
		t.Fatalf("AppendTurn for assistant failed: %v", err)
	}
	if assistant.PrincipalID != nil {
		t.Errorf("Expected nil principal for assistant turn, got %v", assistant.PrincipalID)
	}
}

func TestAppendTurnBumpsLastActivity(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "turn-bump@example.com")
	conv := createTestConversation(t, user.ID)

	if _, err := testDB.AppendTurn(ctx, conv.ID, models.RoleUser, "bump", &user.ID); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	after, err := testDB.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if after == nil {
		t.Fatal("GetConversation returned nil")
	}
	if !after.LastActivity.After(conv.LastActivity) {
		t.Errorf("Expected LastActivity to advance: before=%v after=%v",
			conv.LastActivity, after.LastActivity)
	}
}

func TestRecentTurnsNewestFirstAndBounded(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "turn-recent@example.com")
	conv := createTestConversation(t, user.ID)

	for i := 0; i < 5; i++ {
		content := fmt.Sprintf("message %d", i)
		if _, err := testDB.AppendTurn(ctx, conv.ID, models.RoleUser, content, &user.ID); err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
	}

	turns, err := testDB.RecentTurns(ctx, conv.ID, 3)
	if err != nil {
		t.Fatalf("RecentTurns failed: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("Expected 3 turns, got %d", len(turns))
	}
	if turns[0].Content != "message 4" {
		t.Errorf("Expected newest turn first, got %q", turns[0].Content)
	}
	if turns[2].Content != "message 2" {
		t.Errorf("Expected 'message 2' last in window, got %q", turns[2].Content)
	}
}

func TestRecentTurnsEmptyConversation(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "turn-empty@example.com")
	conv := createTestConversation(t, user.ID)

	turns, err := testDB.RecentTurns(ctx, conv.ID, 10)
	if err != nil {
		t.Fatalf("RecentTurns failed: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("Expected no turns, got %d", len(turns))
	}
}
