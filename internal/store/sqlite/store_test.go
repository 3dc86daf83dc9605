package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mohamed-Silaya/chat-app/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveMessageCreatesUserConversationAndMessage(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveMessage(ctx, "lobby", "alice", "hi")
	req.NoError(err)
	req.Equal(int64(1), saved.ID)
	req.False(saved.Timestamp.IsZero())

	conv, err := s.GetConversation(ctx, "lobby")
	req.NoError(err)
	req.Equal("lobby", conv.Name)
	req.Len(conv.Participants, 1)
	req.Equal("alice", conv.Participants[0].Username)
	req.Equal(1, conv.MessageCount)
	req.NotNil(conv.LastMessage)
	req.Equal("hi", conv.LastMessage.Content)
	req.False(conv.LastMessage.Read)
	req.False(conv.CreatedAt.IsZero())
}

func TestSaveMessageGetOrCreateIsIdempotent(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.SaveMessage(ctx, "lobby", "alice", "one")
	req.NoError(err)
	second, err := s.SaveMessage(ctx, "lobby", "alice", "two")
	req.NoError(err)
	req.Greater(second.ID, first.ID)

	conversations, err := s.ListConversations(ctx)
	req.NoError(err)
	req.Len(conversations, 1, "repeated saves must not duplicate the conversation")
	req.Len(conversations[0].Participants, 1, "repeated saves must not duplicate the user")
	req.Equal(2, conversations[0].MessageCount)
}

func TestSaveMessageConcurrentGetOrCreate(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SaveMessage(ctx, "fresh-room", "fresh-user", "hello")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	conversations, err := s.ListConversations(ctx)
	req.NoError(err)
	req.Len(conversations, 1, "concurrent saves must create exactly one conversation")
	req.Len(conversations[0].Participants, 1)
	req.Equal(writers, conversations[0].MessageCount)
}

func TestSaveMessageAddsParticipantPerSender(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveMessage(ctx, "lobby", "alice", "hi")
	req.NoError(err)
	_, err = s.SaveMessage(ctx, "lobby", "bob", "hello")
	req.NoError(err)
	_, err = s.SaveMessage(ctx, "random", "alice", "hey")
	req.NoError(err)

	lobby, err := s.GetConversation(ctx, "lobby")
	req.NoError(err)
	req.Len(lobby.Participants, 2)

	random, err := s.GetConversation(ctx, "random")
	req.NoError(err)
	req.Len(random.Participants, 1)
	req.Equal("alice", random.Participants[0].Username)
}

func TestListMessagesReturnsInsertionOrder(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		_, err := s.SaveMessage(ctx, "lobby", "alice", content)
		req.NoError(err)
	}

	messages, err := s.ListMessages(ctx, "lobby")
	req.NoError(err)
	req.Len(messages, 3)
	for i, want := range []string{"one", "two", "three"} {
		req.Equal(want, messages[i].Content)
		req.Equal("alice", messages[i].Sender.Username)
		if i > 0 {
			req.Greater(messages[i].ID, messages[i-1].ID)
			req.False(messages[i].Timestamp.Before(messages[i-1].Timestamp))
		}
	}
}

func TestListMessagesUnknownRoomIsEmpty(t *testing.T) {
	s := openTestStore(t)

	messages, err := s.ListMessages(context.Background(), "ghost")
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestGetConversationNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetConversation(context.Background(), "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDashboardStats(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	ctx := context.Background()

	// 2 rooms, 5 messages, 3 distinct participants.
	_, err := s.SaveMessage(ctx, "lobby", "alice", "m1")
	req.NoError(err)
	_, err = s.SaveMessage(ctx, "lobby", "bob", "m2")
	req.NoError(err)
	_, err = s.SaveMessage(ctx, "lobby", "alice", "m3")
	req.NoError(err)
	_, err = s.SaveMessage(ctx, "random", "carol", "m4")
	req.NoError(err)
	_, err = s.SaveMessage(ctx, "random", "alice", "m5")
	req.NoError(err)

	stats, err := s.DashboardStats(ctx)
	req.NoError(err)
	req.Equal(int64(2), stats.TotalConversations)
	req.Equal(int64(5), stats.TotalMessages)
	req.Equal(int64(3), stats.TotalUsers)

	req.Len(stats.RecentConversations, 2)
	req.Equal("random", stats.RecentConversations[0].Name,
		"most recently updated conversation comes first")
}

func TestConversationsOrderedByLastActivity(t *testing.T) {
	req := require.New(t)
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveMessage(ctx, "first", "alice", "m1")
	req.NoError(err)
	_, err = s.SaveMessage(ctx, "second", "alice", "m2")
	req.NoError(err)
	_, err = s.SaveMessage(ctx, "first", "alice", "m3")
	req.NoError(err)

	conversations, err := s.ListConversations(ctx)
	req.NoError(err)
	req.Len(conversations, 2)
	req.Equal("first", conversations[0].Name, "a new message bumps the conversation")
}
