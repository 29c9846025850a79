package internal

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dropflow/internal/logging"
)

func newTestChat() (*ChatChannel, *Hub) {
	hub := NewHub(logging.Discard())
	return NewChatChannel(hub, NewMetrics(), logging.Discard()), hub
}

func TestChatLogKeepsNewestHundred(t *testing.T) {
	log := NewChatLog(chatCapacity)
	for i := 1; i <= 250; i++ {
		_, ok := log.Append("u", fmt.Sprintf("msg %d", i))
		require.True(t, ok)
		want := i
		if want > chatCapacity {
			want = chatCapacity
		}
		require.Equal(t, want, log.Len())
	}
	recent := log.Recent(-1)
	require.Len(t, recent, chatCapacity)
	for i, msg := range recent {
		assert.Equal(t, fmt.Sprintf("msg %d", 151+i), msg.Body)
	}
}

func TestChatLogIDsNeverRepeatAfterEviction(t *testing.T) {
	log := NewChatLog(3)
	seen := make(map[int64]bool)
	var last int64
	for i := 0; i < 10; i++ {
		msg, ok := log.Append("u", "x")
		require.True(t, ok)
		assert.False(t, seen[msg.ID])
		assert.Greater(t, msg.ID, last)
		seen[msg.ID] = true
		last = msg.ID
	}
}

func TestChatLogTruncates(t *testing.T) {
	log := NewChatLog(chatCapacity)
	body := strings.Repeat("b", 2000)
	username := strings.Repeat("u", 80)
	msg, ok := log.Append(username, body)
	require.True(t, ok)
	assert.Equal(t, body[:1000], msg.Body)
	assert.Equal(t, username[:50], msg.Username)

	// limits count characters, not bytes
	msg, ok = log.Append(strings.Repeat("é", 60), strings.Repeat("ő", 1200))
	require.True(t, ok)
	assert.Equal(t, 50, utf8.RuneCountInString(msg.Username))
	assert.Equal(t, 1000, utf8.RuneCountInString(msg.Body))
}

func TestChatLogDefaultsUsername(t *testing.T) {
	log := NewChatLog(chatCapacity)
	msg, ok := log.Append("   ", " hello ")
	require.True(t, ok)
	assert.Equal(t, "Anonymous", msg.Username)
	assert.Equal(t, "hello", msg.Body)
	assert.NotEmpty(t, msg.FormattedTime)
}

func TestChatSendRejectsEmpty(t *testing.T) {
	chat, _ := newTestChat()
	member := newFakeSession("member")
	chat.Connect(member)
	member.reset()

	for _, body := range []string{"", "   ", "\n\t"} {
		_, ok := chat.Send(member, "alice", body)
		assert.False(t, ok)
	}
	_, total := chat.Messages(100)
	assert.Zero(t, total)
	assert.Zero(t, member.count())
}

func TestChatSendBroadcastsToSender(t *testing.T) {
	chat, _ := newTestChat()
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	chat.Connect(alice)
	chat.Connect(bob)

	sent, ok := chat.Send(alice, "alice", "hello")
	require.True(t, ok)

	for _, s := range []*fakeSession{alice, bob} {
		var got ChatMessage
		s.last(t, EventNewMessage, &got)
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, "hello", got.Body)
		assert.Equal(t, "alice", got.Username)
	}
}

func TestChatConnectSendsSnapshotBatch(t *testing.T) {
	chat, hub := newTestChat()
	writer := newFakeSession("writer")
	chat.Connect(writer)
	for i := 0; i < 70; i++ {
		chat.Send(writer, "w", fmt.Sprintf("m%d", i))
	}

	late := newFakeSession("late")
	chat.Connect(late)
	assert.Equal(t, []string{EventPreviousMessages}, late.names(t))
	var batch previousMessagesPayload
	late.last(t, EventPreviousMessages, &batch)
	require.Len(t, batch.Messages, chatSnapshotSize)
	assert.Equal(t, "m20", batch.Messages[0].Body)
	assert.Equal(t, "m69", batch.Messages[49].Body)
	assert.Equal(t, []string{RoomChat}, hub.RoomsOf(late))
}

func TestChatConnectEmptyLogSendsEmptyBatch(t *testing.T) {
	chat, _ := newTestChat()
	s := newFakeSession("s")
	chat.Connect(s)
	envs := s.envelopes(t)
	require.Len(t, envs, 1)
	assert.JSONEq(t, `{"messages":[]}`, string(envs[0].Data))
}

func TestChatTypingExcludesSender(t *testing.T) {
	chat, _ := newTestChat()
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	chat.Connect(alice)
	chat.Connect(bob)
	alice.reset()
	bob.reset()

	chat.Typing(alice, "alice")
	chat.StopTyping(alice, "")

	assert.Zero(t, alice.count())
	assert.Equal(t, []string{EventUserTyping, EventUserStopTyping}, bob.names(t))
	var stop typingPayload
	bob.last(t, EventUserStopTyping, &stop)
	assert.Equal(t, "Someone", stop.Username)
}

func TestChatMessagesLimit(t *testing.T) {
	chat, _ := newTestChat()
	s := newFakeSession("s")
	for i := 0; i < 10; i++ {
		chat.Send(s, "u", fmt.Sprintf("%d", i))
	}
	msgs, total := chat.Messages(3)
	assert.Equal(t, 10, total)
	require.Len(t, msgs, 3)
	assert.Equal(t, "7", msgs[0].Body)
}

func TestChatConcurrentSendersSeeOneOrder(t *testing.T) {
	chat, _ := newTestChat()
	members := []*fakeSession{newFakeSession("a"), newFakeSession("b")}
	for _, m := range members {
		chat.Connect(m)
		m.reset()
	}

	const senders, each = 6, 50
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			session := newFakeSession(fmt.Sprintf("sender-%d", s))
			for i := 0; i < each; i++ {
				_, ok := chat.Send(session, "u", fmt.Sprintf("%d/%d", s, i))
				assert.True(t, ok)
			}
		}(s)
	}
	wg.Wait()

	orders := make([][]int64, len(members))
	for i, m := range members {
		for _, env := range m.envelopes(t) {
			require.Equal(t, EventNewMessage, env.Event)
			var msg ChatMessage
			require.NoError(t, json.Unmarshal(env.Data, &msg))
			orders[i] = append(orders[i], msg.ID)
		}
		require.Len(t, orders[i], senders*each)
		for j := 1; j < len(orders[i]); j++ {
			assert.Greater(t, orders[i][j], orders[i][j-1])
		}
	}
	assert.Equal(t, orders[0], orders[1])

	recent, total := chat.Messages(chatCapacity)
	assert.Equal(t, chatCapacity, total)
	assert.Equal(t, orders[0][len(orders[0])-1], recent[len(recent)-1].ID)
}
