package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx, so
// the same querier runs inside and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGQuerier implements Querier with hand-written SQL over pgx.
type PGQuerier struct {
	db DBTX
}

// NewQuerier returns a PGQuerier over db.
func NewQuerier(db DBTX) *PGQuerier {
	return &PGQuerier{db: db}
}

const createChatSQL = `
INSERT INTO chats (id, user_id, provider, session_name)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, provider, session_name, created_at`

func (q *PGQuerier) CreateChat(ctx context.Context, arg CreateChatParams) (Chat, error) {
	row := q.db.QueryRow(ctx, createChatSQL, arg.ID, arg.UserID, arg.Provider, arg.SessionName)
	return scanChat(row)
}

func (q *PGQuerier) CountChats(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM chats WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

const getChatSQL = `
SELECT id, user_id, provider, session_name, created_at
FROM chats WHERE id = $1`

func (q *PGQuerier) GetChat(ctx context.Context, id uuid.UUID) (Chat, error) {
	return scanChat(q.db.QueryRow(ctx, getChatSQL, id))
}

const listChatsSQL = `
SELECT id, user_id, provider, session_name, created_at
FROM chats WHERE user_id = $1
ORDER BY created_at DESC`

func (q *PGQuerier) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := q.db.Query(ctx, listChatsSQL, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (q *PGQuerier) RenameChat(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := q.db.Exec(ctx, `UPDATE chats SET session_name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chat %s: %w", id, ErrNotFound)
	}
	return nil
}

func (q *PGQuerier) DeleteChat(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chat %s: %w", id, ErrNotFound)
	}
	return nil
}

const addMessageSQL = `
INSERT INTO messages (id, chat_session_id, role, content, extra_data)
VALUES ($1, $2, $3, $4, $5)`

func (q *PGQuerier) AddMessage(ctx context.Context, arg AddMessageParams) error {
	_, err := q.db.Exec(ctx, addMessageSQL, arg.ID, arg.ChatID, arg.Role, arg.Content, arg.ExtraData)
	return err
}

const listMessagesSQL = `
SELECT id, chat_session_id, role, content, extra_data, created_at
FROM messages WHERE chat_session_id = $1
ORDER BY created_at ASC, id ASC`

func (q *PGQuerier) ListMessages(ctx context.Context, chatID uuid.UUID) ([]Message, error) {
	rows, err := q.db.Query(ctx, listMessagesSQL, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.ExtraData, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

const getUserSQL = `
SELECT id, email, name, role
FROM users WHERE id = $1`

func (q *PGQuerier) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := q.db.QueryRow(ctx, getUserSQL, id).Scan(&u.ID, &u.Email, &u.Name, &u.Role)
	return u, err
}

func scanChat(row pgx.Row) (Chat, error) {
	var c Chat
	err := row.Scan(&c.ID, &c.UserID, &c.Provider, &c.SessionName, &c.CreatedAt)
	return c, err
}
