package server

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/chat"
	"chat-relay/internal/upload"
)

// newTestHub builds a hub over a throwaway upload directory. The tests drive
// dispatch directly instead of running the loop, which mirrors how the loop
// itself calls it: one event at a time on one goroutine.
func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	SetConfig(nil)
	t.Cleanup(func() { SetConfig(nil) })

	dir := t.TempDir()
	uploads, err := upload.NewStore(dir)
	require.NoError(t, err)
	return NewHub(chat.NewEngine(uploads)), dir
}

// addTestClient inserts a connectionless client without starting pumps.
func addTestClient(h *Hub) *Client {
	c := NewClient(nil, h, "test")
	h.clients[c] = true
	return c
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// drainFrames empties the client's send buffer, splitting any batched frames.
func drainFrames(t *testing.T, c *Client) []frame {
	t.Helper()
	var frames []frame
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return frames
			}
			for _, part := range strings.Split(string(raw), "\n") {
				if part == "" {
					continue
				}
				var f frame
				require.NoError(t, json.Unmarshal([]byte(part), &f))
				frames = append(frames, f)
			}
		default:
			return frames
		}
	}
}

func sendEvent(t *testing.T, h *Hub, c *Client, name string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	h.dispatch(inboundEvent{client: c, name: name, data: data})
}

func join(t *testing.T, h *Hub, c *Client, name string) {
	t.Helper()
	sendEvent(t, h, c, chat.EvSetUsername, name)
	frames := drainFrames(t, c)
	require.NotEmpty(t, frames)
	require.Equal(t, chat.EvLoadHistory, frames[0].Event)
}

func TestNewHubInitializesChannels(t *testing.T) {
	h, _ := newTestHub(t)

	assert.NotNil(t, h.GetRegisterChan())
	assert.NotNil(t, h.GetUnregisterChan())
}

func TestHubRunStartsAndShutsDown(t *testing.T) {
	h, _ := newTestHub(t)
	go h.Run()

	select {
	case h.GetRegisterChan() <- nil:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("hub loop did not accept a registration")
	}

	require.NoError(t, h.Shutdown(time.Second))
}

func TestJoinDeliversHistoryToSenderOnly(t *testing.T) {
	h, _ := newTestHub(t)
	a := addTestClient(h)
	b := addTestClient(h)

	join(t, h, a, "alice")
	sendEvent(t, h, a, chat.EvChatMessage, map[string]any{"text": "hi"})
	drainFrames(t, a)
	drainFrames(t, b)

	sendEvent(t, h, b, chat.EvSetUsername, "bob")

	assert.Empty(t, drainFrames(t, a), "history must not reach other clients")
	frames := drainFrames(t, b)
	require.Len(t, frames, 1)
	assert.Equal(t, chat.EvLoadHistory, frames[0].Event)

	var history []chat.Message
	require.NoError(t, json.Unmarshal(frames[0].Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Text)
}

func TestChatMessageReachesEveryoneIncludingSender(t *testing.T) {
	h, _ := newTestHub(t)
	a := addTestClient(h)
	b := addTestClient(h)
	join(t, h, a, "alice")
	join(t, h, b, "bob")

	sendEvent(t, h, a, chat.EvChatMessage, map[string]any{"text": "hi"})

	for _, c := range []*Client{a, b} {
		frames := drainFrames(t, c)
		require.Len(t, frames, 1)
		assert.Equal(t, chat.EvChatMessage, frames[0].Event)

		var m chat.Message
		require.NoError(t, json.Unmarshal(frames[0].Data, &m))
		assert.Equal(t, int64(0), m.ID)
		assert.Equal(t, "alice", m.User)
		assert.Equal(t, "hi", m.Text)
		assert.False(t, m.Seen)
	}
}

func TestUnboundClientProducesNoTraffic(t *testing.T) {
	h, _ := newTestHub(t)
	a := addTestClient(h)
	b := addTestClient(h)
	join(t, h, b, "bob")
	drainFrames(t, b)

	sendEvent(t, h, a, chat.EvChatMessage, map[string]any{"text": "hi"})
	sendEvent(t, h, a, chat.EvDeleteMessage, 0)
	sendEvent(t, h, a, chat.EvEditMessage, map[string]any{"id": 0, "newText": "x"})
	sendEvent(t, h, a, chat.EvImageUpload, map[string]any{"fileData": "data:image/png;base64,aGk=", "fileName": "a.png"})

	assert.Empty(t, drainFrames(t, a), "the rejected sender gets no feedback")
	assert.Empty(t, drainFrames(t, b))
	assert.Equal(t, 0, h.engine.Store().Len())
}

func TestDeleteBroadcastOnSuccessOnly(t *testing.T) {
	h, _ := newTestHub(t)
	a := addTestClient(h)
	b := addTestClient(h)
	join(t, h, a, "alice")
	join(t, h, b, "bob")
	sendEvent(t, h, a, chat.EvChatMessage, map[string]any{"text": "hi"})
	drainFrames(t, a)
	drainFrames(t, b)

	sendEvent(t, h, a, chat.EvDeleteMessage, 0)
	for _, c := range []*Client{a, b} {
		frames := drainFrames(t, c)
		require.Len(t, frames, 1)
		assert.Equal(t, chat.EvDeleteMessage, frames[0].Event)
		assert.Equal(t, "0", string(frames[0].Data))
	}

	// Second delete targets an id that no longer exists; nothing is emitted.
	sendEvent(t, h, b, chat.EvDeleteMessage, 0)
	assert.Empty(t, drainFrames(t, a))
	assert.Empty(t, drainFrames(t, b))
}

func TestMarkSeenScenario(t *testing.T) {
	h, _ := newTestHub(t)
	a := addTestClient(h)
	b := addTestClient(h)
	join(t, h, a, "alice")
	join(t, h, b, "bob")

	// Seen-mark before the message exists: silent failure.
	sendEvent(t, h, b, chat.EvMarkSeen, 1)
	assert.Empty(t, drainFrames(t, a))
	assert.Empty(t, drainFrames(t, b))

	sendEvent(t, h, a, chat.EvChatMessage, map[string]any{"text": "hello"})
	drainFrames(t, a)
	drainFrames(t, b)

	sendEvent(t, h, b, chat.EvMarkSeen, 0)
	for _, c := range []*Client{a, b} {
		frames := drainFrames(t, c)
		require.Len(t, frames, 1)
		assert.Equal(t, chat.EvMessageSeen, frames[0].Event)
		assert.Equal(t, "0", string(frames[0].Data))
	}

	sendEvent(t, h, b, chat.EvMarkSeen, 0)
	assert.Empty(t, drainFrames(t, a), "repeat seen-mark produces nothing")
	assert.Empty(t, drainFrames(t, b))
}

func TestTypingExcludesSender(t *testing.T) {
	h, _ := newTestHub(t)
	a := addTestClient(h)
	b := addTestClient(h)

	sendEvent(t, h, a, chat.EvTyping, "alice")

	assert.Empty(t, drainFrames(t, a))
	frames := drainFrames(t, b)
	require.Len(t, frames, 1)
	assert.Equal(t, chat.EvTyping, frames[0].Event)
	assert.Equal(t, `"alice"`, string(frames[0].Data))
}

func TestUploadRejectedExtensionIsFullySilent(t *testing.T) {
	h, _ := newTestHub(t)
	a := addTestClient(h)
	b := addTestClient(h)
	join(t, h, a, "alice")
	join(t, h, b, "bob")

	sendEvent(t, h, a, chat.EvImageUpload, map[string]any{
		"fileData": "data:image/png;base64,aGk=",
		"fileName": "photo.EXE",
	})

	assert.Empty(t, drainFrames(t, a))
	assert.Empty(t, drainFrames(t, b))
	assert.Equal(t, 0, h.engine.Store().Len(), "no message is created for a rejected upload")
}

func TestUploadCompletionAppendsAndBroadcasts(t *testing.T) {
	h, dir := newTestHub(t)
	a := addTestClient(h)
	b := addTestClient(h)
	join(t, h, a, "alice")
	join(t, h, b, "bob")

	sendEvent(t, h, a, chat.EvImageUpload, map[string]any{
		"fileData": "data:image/png;base64,aGk=",
		"fileName": "photo.png",
	})

	// The disk write runs detached; its completion re-enters the loop.
	var res uploadResult
	select {
	case res = <-h.uploads:
	case <-time.After(time.Second):
		t.Fatal("upload write did not complete")
	}
	require.NoError(t, res.err)
	h.finishUpload(res)

	for _, c := range []*Client{a, b} {
		frames := drainFrames(t, c)
		require.Len(t, frames, 1)
		assert.Equal(t, chat.EvChatMessage, frames[0].Event)

		var m chat.Message
		require.NoError(t, json.Unmarshal(frames[0].Data, &m))
		assert.Equal(t, "alice", m.User)
		assert.True(t, strings.HasPrefix(m.Text, upload.URLPrefix))
	}

	// The written file is retrievable from the upload directory.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDisconnectBroadcast(t *testing.T) {
	h, _ := newTestHub(t)
	a := addTestClient(h)
	b := addTestClient(h)
	join(t, h, a, "alice")
	join(t, h, b, "bob")

	h.removeClient(a)

	frames := drainFrames(t, b)
	require.Len(t, frames, 1)
	assert.Equal(t, chat.EvUserDisconnected, frames[0].Event)
	assert.Equal(t, `"alice"`, string(frames[0].Data))
}

func TestDisconnectOfUnboundClientIsSilent(t *testing.T) {
	h, _ := newTestHub(t)
	a := addTestClient(h)
	b := addTestClient(h)
	join(t, h, b, "bob")
	drainFrames(t, b)

	h.removeClient(a)

	assert.Empty(t, drainFrames(t, b))
}

func TestRebindKeepsSingleRegistryEntry(t *testing.T) {
	h, _ := newTestHub(t)
	a := addTestClient(h)
	join(t, h, a, "alice")
	join(t, h, a, "alicia")

	reg := h.engine.Registry()
	_, ok := reg.Lookup("alice")
	assert.False(t, ok)
	sess, ok := reg.Lookup("alicia")
	require.True(t, ok)
	assert.Equal(t, a.session, sess)
}

func TestDisplacedClientGetsNoNotification(t *testing.T) {
	h, _ := newTestHub(t)
	a := addTestClient(h)
	b := addTestClient(h)
	join(t, h, a, "alice")

	sendEvent(t, h, b, chat.EvSetUsername, "alice")

	frames := drainFrames(t, b)
	require.Len(t, frames, 1)
	assert.Equal(t, chat.EvLoadHistory, frames[0].Event)
	assert.Empty(t, drainFrames(t, a), "the displaced connection is not told")
}

func TestUnrecognizedEventNamesShareOneMetricSeries(t *testing.T) {
	h, _ := newTestHub(t)
	a := addTestClient(h)

	totalBefore := testutil.CollectAndCount(eventsTotal)
	rejectedBefore := testutil.CollectAndCount(eventsRejected)
	for _, name := range []string{"made-up-1", "made-up-2", "made-up-3"} {
		h.dispatch(inboundEvent{client: a, name: name})
	}

	assert.LessOrEqual(t, testutil.CollectAndCount(eventsTotal)-totalBefore, 1,
		"client-chosen names must not mint counter series")
	assert.LessOrEqual(t, testutil.CollectAndCount(eventsRejected)-rejectedBefore, 1)
	assert.GreaterOrEqual(t, testutil.ToFloat64(eventsTotal.WithLabelValues("unknown")), 3.0)
	assert.Empty(t, drainFrames(t, a))
}

func TestReadPumpDisconnectDoesNotBlockAfterShutdown(t *testing.T) {
	h, _ := newTestHub(t)
	go h.Run()
	require.NoError(t, h.Shutdown(time.Second))

	c := NewClient(nil, h, "test")
	done := make(chan struct{})
	go func() {
		c.signalDisconnect()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unregister hand-off blocked after the hub loop exited")
	}
}
