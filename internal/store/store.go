// Package store defines the persistence gateway used by the chat relay:
// durable users, conversations, and messages behind an interface the
// websocket layer and the read API share.
package store

import "context"

// Store is the persistence gateway for the chat relay.
//
// SaveMessage is the write path driven by live sessions. The read methods
// back the query API. Implementations must make the get-or-create steps in
// SaveMessage safe to race across concurrently connecting sessions: two
// sessions saving under the same new username or room name must never
// produce duplicate rows.
type Store interface {
	// SaveMessage durably records one chat message: it gets-or-creates the
	// sender by username, gets-or-creates the conversation by room name,
	// adds the sender to the conversation's participants if absent, and
	// appends the message with a server-assigned timestamp.
	SaveMessage(ctx context.Context, room, username, content string) (SavedMessage, error)

	// ListConversations returns every conversation with participants,
	// messages, and derived fields, most recently updated first.
	ListConversations(ctx context.Context) ([]Conversation, error)

	// GetConversation returns a single conversation by its unique name.
	// Returns ErrNotFound if no conversation has that name.
	GetConversation(ctx context.Context, name string) (Conversation, error)

	// ListMessages returns the messages of a room in insertion order.
	// A room with no persisted conversation yields an empty slice.
	ListMessages(ctx context.Context, room string) ([]Message, error)

	// DashboardStats returns aggregate counts and the ten most recently
	// updated conversations.
	DashboardStats(ctx context.Context) (Stats, error)

	// Close releases the underlying database handle.
	Close() error
}
