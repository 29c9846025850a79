package internal

import (
	"log/slog"
	"sort"
	"sync"
)

// Session is one live push connection as the hub sees it. Deliver must not
// block; it returns false when the frame could not be queued.
type Session interface {
	ID() string
	Deliver(frame []byte) bool
}

// Hub is the room registry: a many-to-many map between sessions and room
// names. Rooms exist only while they have members.
type Hub struct {
	mutex       sync.RWMutex
	rooms       map[string]map[Session]struct{}
	memberships map[Session]map[string]struct{}
	logger      *slog.Logger
}

// NewHub builds an empty registry.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:       make(map[string]map[Session]struct{}),
		memberships: make(map[Session]map[string]struct{}),
		logger:      logger,
	}
}

// Join adds session to room. Joining twice is harmless.
func (hub *Hub) Join(session Session, room string) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	members, ok := hub.rooms[room]
	if !ok {
		members = make(map[Session]struct{})
		hub.rooms[room] = members
	}
	members[session] = struct{}{}
	rooms, ok := hub.memberships[session]
	if !ok {
		rooms = make(map[string]struct{})
		hub.memberships[session] = rooms
	}
	rooms[room] = struct{}{}
}

// Leave removes session from room if it was a member.
func (hub *Hub) Leave(session Session, room string) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	hub.leaveLocked(session, room)
}

// LeaveAll removes session from every room and returns the rooms it left.
// Calling it again for the same session returns nil.
func (hub *Hub) LeaveAll(session Session) []string {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	rooms := make([]string, 0, len(hub.memberships[session]))
	for room := range hub.memberships[session] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		hub.leaveLocked(session, room)
	}
	sort.Strings(rooms)
	if len(rooms) == 0 {
		return nil
	}
	return rooms
}

func (hub *Hub) leaveLocked(session Session, room string) {
	if members, ok := hub.rooms[room]; ok {
		delete(members, session)
		if len(members) == 0 {
			delete(hub.rooms, room)
		}
	}
	if rooms, ok := hub.memberships[session]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(hub.memberships, session)
		}
	}
}

// Exists reports whether room currently has at least one member.
func (hub *Hub) Exists(room string) bool {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	_, ok := hub.rooms[room]
	return ok
}

// Members returns how many sessions are joined to room.
func (hub *Hub) Members(room string) int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return len(hub.rooms[room])
}

// RoomsOf lists the rooms session belongs to, sorted.
func (hub *Hub) RoomsOf(session Session) []string {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	rooms := make([]string, 0, len(hub.memberships[session]))
	for room := range hub.memberships[session] {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Broadcast delivers event to every member of room except exclude (which may
// be nil). Delivery is fire-and-forget; the return value counts the sessions
// that accepted the frame.
func (hub *Hub) Broadcast(room, event string, payload any, exclude Session) int {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		hub.logger.Error("encode broadcast", "event", event, "room", room, "error", err)
		return 0
	}
	hub.mutex.RLock()
	targets := make([]Session, 0, len(hub.rooms[room]))
	for member := range hub.rooms[room] {
		if exclude != nil && member == exclude {
			continue
		}
		targets = append(targets, member)
	}
	hub.mutex.RUnlock()

	delivered := 0
	for _, target := range targets {
		if target.Deliver(frame) {
			delivered++
		}
	}
	return delivered
}

// Send delivers event to one session regardless of room membership.
func (hub *Hub) Send(session Session, event string, payload any) bool {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		hub.logger.Error("encode frame", "event", event, "error", err)
		return false
	}
	return session.Deliver(frame)
}
