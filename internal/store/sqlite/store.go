package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Mohamed-Silaya/chat-app/internal/store"
)

// SaveMessage records one chat message inside a single transaction:
// get-or-create the sender, get-or-create the conversation, add the sender
// to the participants if absent, then append the message row. The
// get-or-create statements use ON CONFLICT DO NOTHING plus a reselect so
// that sessions racing on a brand-new username or room name converge on one
// row instead of failing or duplicating.
func (s *Store) SaveMessage(ctx context.Context, room, username, content string) (store.SavedMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.SavedMessage{}, fmt.Errorf("sqlite: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	userID, err := getOrCreateUser(ctx, tx, username, s.credentialHash)
	if err != nil {
		return store.SavedMessage{}, err
	}

	now := time.Now().UTC()
	convID, err := getOrCreateConversation(ctx, tx, room, now)
	if err != nil {
		return store.SavedMessage{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)
		 ON CONFLICT (conversation_id, user_id) DO NOTHING`,
		convID, userID,
	); err != nil {
		return store.SavedMessage{}, fmt.Errorf("sqlite: add participant: %w", mapError(err))
	}

	var messageID int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content, timestamp, read)
		 VALUES (?, ?, ?, ?, 0) RETURNING id`,
		convID, userID, content, formatTime(now),
	).Scan(&messageID); err != nil {
		return store.SavedMessage{}, fmt.Errorf("sqlite: insert message: %w", mapError(err))
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		formatTime(now), convID,
	); err != nil {
		return store.SavedMessage{}, fmt.Errorf("sqlite: touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return store.SavedMessage{}, fmt.Errorf("sqlite: commit save: %w", err)
	}

	return store.SavedMessage{ID: messageID, Timestamp: now}, nil
}

func getOrCreateUser(ctx context.Context, tx *sql.Tx, username, credentialHash string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, email, password) VALUES (?, '', ?)
		 ON CONFLICT (username) DO NOTHING`,
		username, credentialHash,
	); err != nil {
		return 0, fmt.Errorf("sqlite: create user %q: %w", username, mapError(err))
	}

	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM users WHERE username = ?`, username,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("sqlite: lookup user %q: %w", username, err)
	}
	return id, nil
}

func getOrCreateConversation(ctx context.Context, tx *sql.Tx, name string, now time.Time) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (name, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO NOTHING`,
		name, formatTime(now), formatTime(now),
	); err != nil {
		return 0, fmt.Errorf("sqlite: create conversation %q: %w", name, mapError(err))
	}

	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE name = ?`, name,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("sqlite: lookup conversation %q: %w", name, err)
	}
	return id, nil
}

// ListConversations returns every conversation, most recently updated first.
func (s *Store) ListConversations(ctx context.Context) ([]store.Conversation, error) {
	return s.queryConversations(ctx,
		`SELECT id, name, created_at, updated_at FROM conversations
		 ORDER BY updated_at DESC, id DESC`)
}

// GetConversation returns a single conversation by its unique name.
func (s *Store) GetConversation(ctx context.Context, name string) (store.Conversation, error) {
	var (
		conv                 store.Conversation
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM conversations WHERE name = ?`, name,
	).Scan(&conv.ID, &conv.Name, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Conversation{}, store.ErrNotFound
	}
	if err != nil {
		return store.Conversation{}, fmt.Errorf("sqlite: get conversation %q: %w", name, err)
	}

	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return store.Conversation{}, err
	}
	if conv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return store.Conversation{}, err
	}

	if err := s.hydrateConversation(ctx, &conv); err != nil {
		return store.Conversation{}, err
	}
	return conv, nil
}

// ListMessages returns a room's messages in insertion order. A room that was
// never persisted yields an empty slice rather than an error.
func (s *Store) ListMessages(ctx context.Context, room string) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.content, m.timestamp, m.read, u.id, u.username, u.email
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.name = ?
		 ORDER BY m.id ASC`, room)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list messages for %q: %w", room, err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// DashboardStats returns the aggregate counters plus the ten most recently
// updated conversations.
func (s *Store) DashboardStats(ctx context.Context) (store.Stats, error) {
	var stats store.Stats

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations`,
	).Scan(&stats.TotalConversations); err != nil {
		return store.Stats{}, fmt.Errorf("sqlite: count conversations: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages`,
	).Scan(&stats.TotalMessages); err != nil {
		return store.Stats{}, fmt.Errorf("sqlite: count messages: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM conversation_participants`,
	).Scan(&stats.TotalUsers); err != nil {
		return store.Stats{}, fmt.Errorf("sqlite: count participants: %w", err)
	}

	recent, err := s.queryConversations(ctx,
		`SELECT id, name, created_at, updated_at FROM conversations
		 ORDER BY updated_at DESC, id DESC LIMIT 10`)
	if err != nil {
		return store.Stats{}, err
	}
	stats.RecentConversations = recent

	return stats, nil
}

func (s *Store) queryConversations(ctx context.Context, query string) ([]store.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]store.Conversation, 0)
	for rows.Next() {
		var (
			conv                 store.Conversation
			createdAt, updatedAt string
		)
		if err := rows.Scan(&conv.ID, &conv.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan conversation: %w", err)
		}
		if conv.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if conv.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate conversations: %w", err)
	}

	for i := range conversations {
		if err := s.hydrateConversation(ctx, &conversations[i]); err != nil {
			return nil, err
		}
	}
	return conversations, nil
}

// hydrateConversation fills in participants, messages, and the fields
// derived from them.
func (s *Store) hydrateConversation(ctx context.Context, conv *store.Conversation) error {
	participants, err := s.conversationParticipants(ctx, conv.ID)
	if err != nil {
		return err
	}
	conv.Participants = participants

	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.content, m.timestamp, m.read, u.id, u.username, u.email
		 FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.conversation_id = ?
		 ORDER BY m.id ASC`, conv.ID)
	if err != nil {
		return fmt.Errorf("sqlite: load messages for conversation %d: %w", conv.ID, err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return err
	}

	conv.Messages = messages
	conv.MessageCount = len(messages)
	if len(messages) > 0 {
		last := messages[len(messages)-1]
		conv.LastMessage = &last
	}
	return nil
}

func (s *Store) conversationParticipants(ctx context.Context, conversationID int64) ([]store.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.email
		 FROM conversation_participants cp
		 JOIN users u ON u.id = cp.user_id
		 WHERE cp.conversation_id = ?
		 ORDER BY u.id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load participants for conversation %d: %w", conversationID, err)
	}
	defer rows.Close()

	users := make([]store.User, 0)
	for rows.Next() {
		var u store.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email); err != nil {
			return nil, fmt.Errorf("sqlite: scan participant: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate participants: %w", err)
	}
	return users, nil
}

func scanMessages(rows *sql.Rows) ([]store.Message, error) {
	messages := make([]store.Message, 0)
	for rows.Next() {
		var (
			msg       store.Message
			timestamp string
			read      int
		)
		if err := rows.Scan(&msg.ID, &msg.Content, &timestamp, &read,
			&msg.Sender.ID, &msg.Sender.Username, &msg.Sender.Email); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		var err error
		if msg.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		msg.Read = read != 0
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate messages: %w", err)
	}
	return messages, nil
}
