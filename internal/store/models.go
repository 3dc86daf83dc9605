package store

import "time"

// User is a chat participant. Users are created lazily the first time a
// username appears on an inbound message; the password is a placeholder
// because the relay trusts self-declared usernames.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Message is one persisted chat message. Rows are immutable once written.
type Message struct {
	ID        int64     `json:"id"`
	Sender    User      `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// Conversation is the durable counterpart of a chat room, keyed by its
// unique name.
type Conversation struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Participants []User    `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Messages     []Message `json:"messages"`
	LastMessage  *Message  `json:"last_message"`
	MessageCount int       `json:"message_count"`
}

// SavedMessage is the receipt returned by SaveMessage: the id and the
// server-assigned timestamp that get broadcast back to the room.
type SavedMessage struct {
	ID        int64
	Timestamp time.Time
}

// Stats holds the dashboard aggregates.
type Stats struct {
	TotalConversations  int64          `json:"total_conversations"`
	TotalMessages       int64          `json:"total_messages"`
	TotalUsers          int64          `json:"total_users"`
	RecentConversations []Conversation `json:"recent_conversations"`
}
