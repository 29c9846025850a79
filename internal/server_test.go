package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	out, err := encodeFrame(event, data)
	require.NoError(t, err)
	return out
}

func TestServerDispatchesEvents(t *testing.T) {
	srv := newTestServer(t, nil)
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	srv.Connect(alice)
	srv.Connect(bob)
	srv.HandleFrame(alice, frame(t, EventJoinNotes, nil))
	srv.HandleFrame(bob, frame(t, EventJoinNotes, nil))
	alice.reset()
	bob.reset()

	srv.HandleFrame(alice, frame(t, EventSendMessage, map[string]string{"message": "hi", "username": "alice"}))
	srv.HandleFrame(alice, frame(t, EventTyping, map[string]string{"username": "alice"}))
	srv.HandleFrame(alice, frame(t, EventNotesContentChange, map[string]any{"content": "doc", "cursor_position": 3, "username": "alice"}))
	srv.HandleFrame(alice, frame(t, EventNotesCursorChange, map[string]any{"cursor_position": 1, "username": "alice"}))
	srv.HandleFrame(alice, frame(t, EventNotesSave, map[string]any{"note_data": map[string]string{"id": "n1", "title": "t"}}))
	srv.HandleFrame(alice, frame(t, EventNotesDelete, map[string]string{"note_id": "n1"}))
	srv.HandleFrame(alice, frame(t, EventStopTyping, map[string]string{"username": "alice"}))

	assert.Equal(t, []string{
		EventNewMessage,
		EventNotesSavedUpdated,
		EventNotesSavedUpdated,
	}, alice.names(t))
	assert.Equal(t, []string{
		EventNewMessage,
		EventUserTyping,
		EventNotesContentUpdated,
		EventNotesCursorUpdated,
		EventNotesSavedUpdated,
		EventNotesSavedUpdated,
		EventUserStopTyping,
	}, bob.names(t))
	assert.Equal(t, "doc", srv.Notes().Current().Content)
	assert.Empty(t, srv.Notes().SavedNotes())
}

func TestServerDropsInvalidFrames(t *testing.T) {
	srv := newTestServer(t, nil)
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	srv.Connect(alice)
	srv.Connect(bob)
	srv.HandleFrame(bob, frame(t, EventJoinNotes, nil))
	bob.reset()

	srv.HandleFrame(alice, []byte(`garbage`))
	srv.HandleFrame(alice, frame(t, "made_up", nil))
	srv.HandleFrame(alice, frame(t, EventNotesContentChange, map[string]string{"username": "alice"}))
	srv.HandleFrame(alice, frame(t, EventNotesSave, map[string]any{"note_data": map[string]string{"title": "no id"}}))
	srv.HandleFrame(alice, frame(t, EventSendMessage, map[string]string{"message": "   "}))

	assert.Zero(t, bob.count())
	assert.Empty(t, srv.Notes().SavedNotes())
	_, total := srv.Chat().Messages(100)
	assert.Zero(t, total)
}

func TestServerDisconnectCleansUp(t *testing.T) {
	srv := newTestServer(t, nil)
	gone := newFakeSession("gone")
	stay := newFakeSession("stay")
	srv.Connect(gone)
	srv.Connect(stay)
	srv.HandleFrame(gone, frame(t, EventJoinNotes, nil))
	assert.Equal(t, int64(2), srv.Metrics().ActiveConnections())

	srv.Disconnect(gone)
	srv.Disconnect(gone)

	assert.Empty(t, srv.Hub().RoomsOf(gone))
	assert.False(t, srv.Hub().Exists(RoomNotes))
	assert.Equal(t, int64(1), srv.Metrics().ActiveConnections())

	before := gone.count()
	srv.Chat().Send(stay, "stay", "anyone?")
	assert.Equal(t, before, gone.count())
}

func TestServerRequiresStoreAndDir(t *testing.T) {
	_, err := NewServer(testContext(t), ServerOptions{UploadDir: t.TempDir()})
	assert.Error(t, err)
	_, err = NewServer(testContext(t), ServerOptions{Store: newMemStore()})
	assert.Error(t, err)
}

func dialTestServer(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWebsocketEndToEnd(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeWS))
	defer ts.Close()

	alice := dialTestServer(t, ts)
	assert.Equal(t, EventPreviousMessages, readEnvelope(t, alice).Event)
	bob := dialTestServer(t, ts)
	assert.Equal(t, EventPreviousMessages, readEnvelope(t, bob).Event)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, frame(t, EventSendMessage, map[string]string{"message": "hello", "username": "alice"})))

	for _, conn := range []*websocket.Conn{alice, bob} {
		env := readEnvelope(t, conn)
		require.Equal(t, EventNewMessage, env.Event)
		var msg ChatMessage
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		assert.Equal(t, "hello", msg.Body)
		assert.Equal(t, "alice", msg.Username)
	}

	require.NoError(t, bob.WriteMessage(websocket.TextMessage, frame(t, EventJoinNotes, nil)))
	require.Eventually(t, func() bool { return srv.Hub().Members(RoomNotes) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, frame(t, EventNotesContentChange, map[string]any{"content": "shared", "username": "alice"})))
	env := readEnvelope(t, bob)
	require.Equal(t, EventNotesContentUpdated, env.Event)

	require.NoError(t, bob.Close())
	require.Eventually(t, func() bool {
		return !srv.Hub().Exists(RoomNotes) && srv.Hub().Members(RoomChat) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), srv.Metrics().ActiveConnections())
}
