// Package store persists users, chats, and messages in PostgreSQL.
//
// Store depends on the consumer-defined Querier interface rather than a
// concrete database, so unit tests run against a mock and integration tests
// run against a real container. The pgx implementation lives in querier.go.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fahadahaf/chat-ui/internal/log"
)

// MaxChatsPerUser caps the number of chats a user may hold at once.
const MaxChatsPerUser = 6

// Providers accepted by the chats table check constraint.
const (
	ProviderOllama = "ollama"
	ProviderAmazon = "amazon"
)

// Sentinel errors, checked with errors.Is at the API boundary.
var (
	// ErrChatLimit indicates the user already holds MaxChatsPerUser chats.
	ErrChatLimit = errors.New("chat limit reached")

	// ErrNotFound indicates the requested chat or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidProvider indicates an unsupported provider value.
	ErrInvalidProvider = errors.New("invalid provider")
)

// Chat is a durable conversation thread owned by one user.
type Chat struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	Provider    string    `json:"provider"`
	SessionName string    `json:"session_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is one persisted entry of a chat. ExtraData carries the structured
// bag (reasoning steps, references, tables) as raw JSON.
type Message struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chat_session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ExtraData []byte    `json:"extra_data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the read-side projection of an account. Account issuance lives in
// the external auth service; this table only mirrors what chats reference.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// CreateChatParams are the inputs for inserting a chat row.
type CreateChatParams struct {
	ID          uuid.UUID
	UserID      string
	Provider    string
	SessionName string
}

// AddMessageParams are the inputs for inserting a message row.
type AddMessageParams struct {
	ID        uuid.UUID
	ChatID    uuid.UUID
	Role      string
	Content   string
	ExtraData []byte
}

// Querier defines the database operations Store consumes. Interfaces are
// defined by the consumer, so tests can substitute a mock without a database.
type Querier interface {
	CreateChat(ctx context.Context, arg CreateChatParams) (Chat, error)
	CountChats(ctx context.Context, userID string) (int64, error)
	GetChat(ctx context.Context, id uuid.UUID) (Chat, error)
	ListChats(ctx context.Context, userID string) ([]Chat, error)
	RenameChat(ctx context.Context, id uuid.UUID, name string) error
	DeleteChat(ctx context.Context, id uuid.UUID) error

	AddMessage(ctx context.Context, arg AddMessageParams) error
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error)

	GetUser(ctx context.Context, id string) (User, error)
}

// Store manages chat persistence. It is safe for concurrent use.
type Store struct {
	querier Querier
	pool    *pgxpool.Pool
	logger  log.Logger
}

// New creates a Store. pool enables transactional chat creation and may be
// nil in tests that only exercise the querier path.
func New(querier Querier, pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{querier: querier, pool: pool, logger: logger}
}

// NewFromPool creates a Store backed by the pgx querier over pool.
func NewFromPool(pool *pgxpool.Pool, logger log.Logger) *Store {
	return New(NewQuerier(pool), pool, logger)
}

// CreateChat inserts a chat for userID, enforcing the per-user limit. With a
// pool available the count and insert run in one transaction behind a per-user
// advisory lock, so two racing creations cannot both pass the count check.
func (s *Store) CreateChat(ctx context.Context, userID, provider, name string) (Chat, error) {
	if provider != ProviderOllama && provider != ProviderAmazon {
		return Chat{}, fmt.Errorf("%w: %q", ErrInvalidProvider, provider)
	}

	params := CreateChatParams{
		ID:          uuid.New(),
		UserID:      userID,
		Provider:    provider,
		SessionName: name,
	}

	if s.pool == nil {
		return s.createChatUnlocked(ctx, params)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Chat{}, fmt.Errorf("beginning chat creation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", userID); err != nil {
		return Chat{}, fmt.Errorf("locking user %s: %w", userID, err)
	}

	q := NewQuerier(tx)
	chat, err := s.createWith(ctx, q, params)
	if err != nil {
		return Chat{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Chat{}, fmt.Errorf("committing chat creation: %w", err)
	}

	s.logger.Debug("created chat", "chat_id", chat.ID, "user_id", userID, "provider", provider)
	return chat, nil
}

func (s *Store) createChatUnlocked(ctx context.Context, params CreateChatParams) (Chat, error) {
	return s.createWith(ctx, s.querier, params)
}

func (s *Store) createWith(ctx context.Context, q Querier, params CreateChatParams) (Chat, error) {
	count, err := q.CountChats(ctx, params.UserID)
	if err != nil {
		return Chat{}, fmt.Errorf("counting chats for user %s: %w", params.UserID, err)
	}
	if count >= MaxChatsPerUser {
		return Chat{}, fmt.Errorf("user %s holds %d chats: %w", params.UserID, count, ErrChatLimit)
	}

	chat, err := q.CreateChat(ctx, params)
	if err != nil {
		return Chat{}, fmt.Errorf("creating chat: %w", err)
	}
	return chat, nil
}

// GetChat retrieves one chat by id.
func (s *Store) GetChat(ctx context.Context, id uuid.UUID) (Chat, error) {
	chat, err := s.querier.GetChat(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Chat{}, fmt.Errorf("chat %s: %w", id, ErrNotFound)
		}
		return Chat{}, fmt.Errorf("getting chat %s: %w", id, err)
	}
	return chat, nil
}

// ListChats returns the user's chats, newest first.
func (s *Store) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	chats, err := s.querier.ListChats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing chats for user %s: %w", userID, err)
	}
	return chats, nil
}

// RenameChat updates a chat's display name.
func (s *Store) RenameChat(ctx context.Context, id uuid.UUID, name string) error {
	if err := s.querier.RenameChat(ctx, id, name); err != nil {
		return fmt.Errorf("renaming chat %s: %w", id, err)
	}
	return nil
}

// DeleteChat removes a chat. Its messages go with it via the schema's
// cascading foreign key.
func (s *Store) DeleteChat(ctx context.Context, id uuid.UUID) error {
	if err := s.querier.DeleteChat(ctx, id); err != nil {
		return fmt.Errorf("deleting chat %s: %w", id, err)
	}
	return nil
}

// AddMessage appends one message to a chat.
func (s *Store) AddMessage(ctx context.Context, chatID uuid.UUID, role, content string, extraData []byte) (Message, error) {
	params := AddMessageParams{
		ID:        uuid.New(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		ExtraData: extraData,
	}
	if err := s.querier.AddMessage(ctx, params); err != nil {
		return Message{}, fmt.Errorf("adding message to chat %s: %w", chatID, err)
	}
	return Message{
		ID:        params.ID,
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		ExtraData: extraData,
	}, nil
}

// ListMessages returns a chat's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error) {
	msgs, err := s.querier.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("listing messages for chat %s: %w", chatID, err)
	}
	return msgs, nil
}

// GetUser retrieves one user by id.
func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	user, err := s.querier.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return User{}, fmt.Errorf("getting user %s: %w", id, err)
	}
	return user, nil
}
