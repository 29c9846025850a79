package internal

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	RoomChat = "main_chat"

	chatCapacity     = 100
	chatSnapshotSize = 50
	maxUsernameRunes = 50
	maxBodyRunes     = 1000

	defaultChatUsername   = "Anonymous"
	defaultTypingUsername = "Someone"
)

// ChatMessage is one accepted chat line. It never changes after creation.
type ChatMessage struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Body          string    `json:"message"`
	CreatedAt     time.Time `json:"timestamp"`
	FormattedTime string    `json:"formatted_time"`
}

// ChatLog is the bounded in-memory transcript. Once it holds capacity
// messages every append evicts the oldest one.
type ChatLog struct {
	mutex    sync.RWMutex
	messages []ChatMessage
	capacity int
	lastID   int64
	now      func() time.Time
}

// NewChatLog returns an empty log holding at most capacity messages.
func NewChatLog(capacity int) *ChatLog {
	if capacity <= 0 {
		capacity = chatCapacity
	}
	return &ChatLog{
		messages: make([]ChatMessage, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Append normalizes and stores a message. It returns false, storing nothing,
// when the body is empty after trimming. Ids come from a counter that never
// goes backwards, so eviction cannot cause reuse.
func (l *ChatLog) Append(username, body string) (ChatMessage, bool) {
	body = truncateRunes(strings.TrimSpace(body), maxBodyRunes)
	if body == "" {
		return ChatMessage{}, false
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = defaultChatUsername
	}
	username = truncateRunes(username, maxUsernameRunes)

	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.lastID++
	now := l.now()
	msg := ChatMessage{
		ID:            l.lastID,
		Username:      username,
		Body:          body,
		CreatedAt:     now,
		FormattedTime: now.Format("15:04"),
	}
	if len(l.messages) >= l.capacity {
		copy(l.messages, l.messages[1:])
		l.messages = l.messages[:len(l.messages)-1]
	}
	l.messages = append(l.messages, msg)
	return msg, true
}

// Recent copies out the newest n messages, oldest first.
func (l *ChatLog) Recent(n int) []ChatMessage {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if n < 0 || n > len(l.messages) {
		n = len(l.messages)
	}
	out := make([]ChatMessage, n)
	copy(out, l.messages[len(l.messages)-n:])
	return out
}

// Len returns the number of retained messages.
func (l *ChatLog) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.messages)
}

// ChatChannel binds the log to the main_chat room.
type ChatChannel struct {
	// held across accept and broadcast so every member sees messages in
	// acceptance order, and so a connect snapshot and the live stream do
	// not overlap
	mutex   sync.Mutex
	log     *ChatLog
	hub     *Hub
	metrics *Metrics
	logger  *slog.Logger
}

// NewChatChannel wires a fresh log to hub.
func NewChatChannel(hub *Hub, metrics *Metrics, logger *slog.Logger) *ChatChannel {
	return &ChatChannel{
		log:     NewChatLog(chatCapacity),
		hub:     hub,
		metrics: metrics,
		logger:  logger,
	}
}

// Connect joins session to main_chat and hands it the last 50 messages as a
// single previous_messages batch.
func (c *ChatChannel) Connect(session Session) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.hub.Join(session, RoomChat)
	c.hub.Send(session, EventPreviousMessages, previousMessagesPayload{
		Messages: c.log.Recent(chatSnapshotSize),
	})
}

// Send accepts a message and broadcasts new_message to the whole room,
// sender included. Empty bodies are dropped without a broadcast.
func (c *ChatChannel) Send(session Session, username, body string) (ChatMessage, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	msg, ok := c.log.Append(username, body)
	if !ok {
		c.metrics.IncDropped()
		c.logger.Debug("dropped empty chat message", "session", sessionID(session))
		return ChatMessage{}, false
	}
	c.metrics.IncMessage()
	c.hub.Broadcast(RoomChat, EventNewMessage, msg, nil)
	return msg, true
}

// Typing tells everyone else in the room that username is typing.
func (c *ChatChannel) Typing(session Session, username string) {
	c.signal(session, EventUserTyping, username)
}

// StopTyping clears the typing hint for username on the other members.
func (c *ChatChannel) StopTyping(session Session, username string) {
	c.signal(session, EventUserStopTyping, username)
}

func (c *ChatChannel) signal(session Session, event, username string) {
	username = strings.TrimSpace(username)
	if username == "" {
		username = defaultTypingUsername
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.hub.Broadcast(RoomChat, event, typingPayload{Username: username}, session)
}

// Messages returns up to limit of the newest messages and the total retained.
func (c *ChatChannel) Messages(limit int) ([]ChatMessage, int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.log.Recent(limit), c.log.Len()
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func sessionID(session Session) string {
	if session == nil {
		return ""
	}
	return session.ID()
}
