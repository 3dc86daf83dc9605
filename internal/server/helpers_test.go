package server

import (
	"context"
	"sync"
	"time"

	"github.com/Mohamed-Silaya/chat-app/internal/store"
)

type saveCall struct {
	Room     string
	Username string
	Content  string
}

// fakeStore is an in-memory stand-in for the persistence gateway. It records
// SaveMessage calls and serves canned read results.
type fakeStore struct {
	mu        sync.Mutex
	saveCalls []saveCall
	saveErr   error
	nextID    int64

	conversations []store.Conversation
	conversation  store.Conversation
	getErr        error
	messages      []store.Message
	stats         store.Stats
}

func (f *fakeStore) SaveMessage(_ context.Context, room, username, content string) (store.SavedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.saveErr != nil {
		return store.SavedMessage{}, f.saveErr
	}
	f.nextID++
	f.saveCalls = append(f.saveCalls, saveCall{Room: room, Username: username, Content: content})
	return store.SavedMessage{
		ID:        f.nextID,
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(f.nextID) * time.Second),
	}, nil
}

func (f *fakeStore) calls() []saveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]saveCall(nil), f.saveCalls...)
}

func (f *fakeStore) ListConversations(context.Context) ([]store.Conversation, error) {
	return f.conversations, nil
}

func (f *fakeStore) GetConversation(context.Context, string) (store.Conversation, error) {
	if f.getErr != nil {
		return store.Conversation{}, f.getErr
	}
	return f.conversation, nil
}

func (f *fakeStore) ListMessages(context.Context, string) ([]store.Message, error) {
	return f.messages, nil
}

func (f *fakeStore) DashboardStats(context.Context) (store.Stats, error) {
	return f.stats, nil
}

func (f *fakeStore) Close() error { return nil }

// receivePayload pops one queued payload from a client's send channel,
// waiting briefly for the hub's event loop to deliver it.
func receivePayload(c *Client, wait time.Duration) ([]byte, bool) {
	select {
	case payload := <-c.send:
		return payload, true
	case <-time.After(wait):
		return nil, false
	}
}
