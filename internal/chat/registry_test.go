package chat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/chat"
)

func TestClaimBindsNameToSession(t *testing.T) {
	reg := chat.NewRegistry()
	sess := &chat.Session{ID: "c1"}

	reg.Claim(sess, "alice")

	assert.Equal(t, "alice", sess.Name)
	got, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, sess, got)
}

func TestRebindMovesRegistryEntry(t *testing.T) {
	reg := chat.NewRegistry()
	sess := &chat.Session{ID: "c1"}

	reg.Claim(sess, "alice")
	reg.Claim(sess, "alicia")

	_, ok := reg.Lookup("alice")
	assert.False(t, ok, "old entry must be removed on rebind")
	got, ok := reg.Lookup("alicia")
	require.True(t, ok)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, reg.Len())
}

func TestLastClaimWinsSilently(t *testing.T) {
	reg := chat.NewRegistry()
	first := &chat.Session{ID: "c1"}
	second := &chat.Session{ID: "c2"}

	reg.Claim(first, "alice")
	reg.Claim(second, "alice")

	got, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, second, got, "later claimant owns the entry")
	assert.Equal(t, "alice", first.Name, "displaced session keeps its own bound name")
}

func TestReleaseRemovesOwnEntryOnly(t *testing.T) {
	reg := chat.NewRegistry()
	first := &chat.Session{ID: "c1"}
	second := &chat.Session{ID: "c2"}

	reg.Claim(first, "alice")
	reg.Claim(second, "alice")

	// The displaced session no longer owns an entry; its release is a no-op.
	reg.Release(first)
	got, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, second, got)

	reg.Release(second)
	_, ok = reg.Lookup("alice")
	assert.False(t, ok)
}

func TestClaimPermitsAnyName(t *testing.T) {
	reg := chat.NewRegistry()
	sess := &chat.Session{ID: "c1"}

	// No validation: empty and whitespace names bind like any other.
	reg.Claim(sess, "  ")
	got, ok := reg.Lookup("  ")
	require.True(t, ok)
	assert.Same(t, sess, got)
}
