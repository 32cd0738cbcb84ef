package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndListConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateConversation(ctx, "u1", "chat", "New conversation")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := s.CreateConversation(ctx, "u1", "chat", "Another one")
	require.NoError(t, err)

	// Bump the first conversation so it becomes the most recently updated.
	time.Sleep(5 * time.Millisecond)
	_, err = s.AppendMessage(ctx, first.ID, RoleUser, "hello")
	require.NoError(t, err)

	list, err := s.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, first.ID, list[0].ID, "most recently updated first")
	require.Equal(t, second.ID, list[1].ID)

	other, err := s.ListConversations(ctx, "u2")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestMessageOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "chat", "t")
	require.NoError(t, err)

	contents := []string{"one", "two", "three", "four"}
	for i, c := range contents {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		_, err := s.AppendMessage(ctx, conv.ID, role, c)
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		require.Equal(t, contents[i], m.Content)
	}
}

func TestAppendMessage_UnknownConversation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendMessage(context.Background(), "no-such-id", RoleUser, "hi")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "chat", "t")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, conv.ID, RoleUser, "hello")
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, conv.ID, "u1"))

	list, err := s.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, list)

	n, err := s.CountMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Zero(t, n, "messages cascade with their conversation")

	// Second delete reports not found; callers may ignore it.
	require.ErrorIs(t, s.DeleteConversation(ctx, conv.ID, "u1"), ErrNotFound)
}

func TestDeleteConversation_WrongOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "chat", "t")
	require.NoError(t, err)
	require.ErrorIs(t, s.DeleteConversation(ctx, conv.ID, "intruder"), ErrNotFound)

	list, err := s.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestRenameConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "u1", "chat", "New conversation")
	require.NoError(t, err)
	require.NoError(t, s.RenameConversation(ctx, conv.ID, "What is 2+2?"))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, "What is 2+2?", got.Title)

	require.ErrorIs(t, s.RenameConversation(ctx, "missing", "x"), ErrNotFound)
}
