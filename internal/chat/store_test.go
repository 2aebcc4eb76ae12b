// Package chat_test contains unit tests for the relay core: the message
// store, the session registry, and the broadcast engine.
package chat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/chat"
)

func TestAppendAssignsIncreasingIDs(t *testing.T) {
	store := chat.NewStore()

	first := store.Append("alice", "one", nil, "")
	second := store.Append("bob", "two", nil, "")
	third := store.Append("alice", "three", nil, "")

	assert.Equal(t, int64(0), first.ID)
	assert.Equal(t, int64(1), second.ID)
	assert.Equal(t, int64(2), third.ID)
}

func TestIDsNeverReusedAfterDelete(t *testing.T) {
	store := chat.NewStore()

	store.Append("alice", "one", nil, "")
	m := store.Append("alice", "two", nil, "")
	require.NoError(t, store.Delete(m.ID, "alice"))

	next := store.Append("alice", "three", nil, "")
	assert.Equal(t, int64(2), next.ID, "deleted ids must not be reused")

	ids := make([]int64, 0)
	for _, msg := range store.History() {
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []int64{0, 2}, ids, "history keeps creation order with gaps")
}

func TestAppendStampsFields(t *testing.T) {
	store := chat.NewStore()

	replyTo := int64(0)
	store.Append("alice", "hello", nil, "")
	m := store.Append("bob", "hi back", &replyTo, "hello")

	assert.Equal(t, "bob", m.User)
	assert.Equal(t, "hi back", m.Text)
	require.NotNil(t, m.ReplyTo)
	assert.Equal(t, int64(0), *m.ReplyTo)
	assert.Equal(t, "hello", m.ReplyToText)
	assert.NotEmpty(t, m.Time)
	assert.False(t, m.Seen)
}

func TestDeleteRequiresAuthor(t *testing.T) {
	store := chat.NewStore()
	m := store.Append("alice", "mine", nil, "")

	err := store.Delete(m.ID, "bob")
	assert.ErrorIs(t, err, chat.ErrNotAuthor)
	assert.Equal(t, 1, store.Len(), "store must be unchanged on rejected delete")

	require.NoError(t, store.Delete(m.ID, "alice"))
	assert.Equal(t, 0, store.Len())

	err = store.Delete(m.ID, "alice")
	assert.ErrorIs(t, err, chat.ErrNotFound, "second delete of the same id must fail")
}

func TestEditRequiresAuthorAndTouchesBodyOnly(t *testing.T) {
	store := chat.NewStore()
	replyTo := int64(7)
	m := store.Append("alice", "tpyo", &replyTo, "quoted")
	require.NoError(t, store.MarkSeen(m.ID, "bob"))
	stamped := m.Time

	err := store.Edit(m.ID, "bob", "hijacked")
	assert.ErrorIs(t, err, chat.ErrNotAuthor)
	assert.Equal(t, "tpyo", m.Text)

	require.NoError(t, store.Edit(m.ID, "alice", "typo"))
	assert.Equal(t, "typo", m.Text)
	assert.Equal(t, stamped, m.Time, "edit must not restamp the timestamp")
	assert.Equal(t, int64(7), *m.ReplyTo)
	assert.Equal(t, "quoted", m.ReplyToText)
	assert.True(t, m.Seen, "edit must not reset the seen flag")

	err = store.Edit(99, "alice", "anything")
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestMarkSeenRules(t *testing.T) {
	store := chat.NewStore()

	err := store.MarkSeen(0, "bob")
	assert.ErrorIs(t, err, chat.ErrNotFound, "seen-mark before the message exists must fail")

	m := store.Append("alice", "hello", nil, "")

	err = store.MarkSeen(m.ID, "alice")
	assert.ErrorIs(t, err, chat.ErrOwnMessage, "author cannot mark own message seen")
	assert.False(t, m.Seen)

	require.NoError(t, store.MarkSeen(m.ID, "bob"))
	assert.True(t, m.Seen)

	err = store.MarkSeen(m.ID, "carol")
	assert.ErrorIs(t, err, chat.ErrAlreadySeen, "seen flag is monotonic")
	assert.True(t, m.Seen)
}

func TestFindScansById(t *testing.T) {
	store := chat.NewStore()
	store.Append("alice", "one", nil, "")
	m := store.Append("alice", "two", nil, "")

	assert.Equal(t, m, store.Find(1))
	assert.Nil(t, store.Find(42))
}

func TestHistoryIsASnapshot(t *testing.T) {
	store := chat.NewStore()
	store.Append("alice", "one", nil, "")

	snapshot := store.History()
	store.Append("alice", "two", nil, "")

	assert.Len(t, snapshot, 1)
	assert.Len(t, store.History(), 2)
}
