package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"dropflow/internal/storage"
)

const (
	RoomNotes = "notes_room"

	docCurrentNote = "notes"
	docSavedNotes  = "saved_notes"

	actionSave   = "save"
	actionDelete = "delete"
)

// ErrNoteNotFound is returned when a saved note id is unknown.
var ErrNoteNotFound = errors.New("note not found")

// CurrentNote is the single shared scratch note.
type CurrentNote struct {
	Content    string   `json:"current_note"`
	CreatedAt  NoteTime `json:"created_at"`
	UpdatedAt  NoteTime `json:"updated_at"`
	LastEditor string   `json:"last_editor,omitempty"`
}

// SavedNote is a named note kept in the saved collection, keyed by ID.
type SavedNote struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	CreatedAt NoteTime `json:"created_at"`
	UpdatedAt NoteTime `json:"updated_at"`
}

// naive ISO layouts as written by older note files, read as local time
var noteTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// NoteTime is a note timestamp. It encodes as RFC 3339 (null when zero) and
// decodes RFC 3339, naive ISO 8601, or epoch seconds. Empty, null, or
// unrecognised values decode to the zero time instead of failing the note.
type NoteTime struct {
	time.Time
}

func noteTime(t time.Time) NoteTime {
	return NoteTime{Time: t}
}

func (t NoteTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *NoteTime) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch value := raw.(type) {
	case float64:
		sec, frac := math.Modf(value)
		t.Time = time.Unix(int64(sec), int64(frac*1e9))
	case string:
		t.Time = parseNoteTime(strings.TrimSpace(value))
	}
	return nil
}

func parseNoteTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed
	}
	for _, layout := range noteTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// NoteChannel owns the current note and the saved-note collection. Memory is
// the source of truth; the document store is a best-effort mirror.
type NoteChannel struct {
	// one accepted mutation at a time, broadcast included
	mutex        sync.Mutex
	current      CurrentNote
	saved        []SavedNote
	noteVersion  uint64
	savedVersion uint64
	lastStamp    time.Time

	hub     *Hub
	writer  *docWriter
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewNoteChannel loads both documents from store. Missing, blank, or
// unreadable documents start out empty; the error is logged, not returned.
func NewNoteChannel(ctx context.Context, hub *Hub, store storage.DocumentStore, writer *docWriter, metrics *Metrics, logger *slog.Logger) *NoteChannel {
	n := &NoteChannel{
		saved:   make([]SavedNote, 0),
		hub:     hub,
		writer:  writer,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
	if body, err := store.Load(ctx, docCurrentNote); err != nil {
		logger.Error("load current note", "error", err)
	} else if body != nil {
		if err := json.Unmarshal(body, &n.current); err != nil {
			logger.Error("decode current note", "error", err)
			n.current = CurrentNote{}
		}
	}
	if body, err := store.Load(ctx, docSavedNotes); err != nil {
		logger.Error("load saved notes", "error", err)
	} else if body != nil {
		var raw []json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			logger.Error("decode saved notes", "error", err)
		} else {
			n.saved = dedupeNotes(decodeSavedNotes(raw, logger))
		}
	}
	n.lastStamp = n.current.UpdatedAt.Time
	return n
}

// Join puts session in notes_room.
func (n *NoteChannel) Join(session Session) {
	n.hub.Join(session, RoomNotes)
}

// Leave takes session out of notes_room.
func (n *NoteChannel) Leave(session Session) {
	n.hub.Leave(session, RoomNotes)
}

// ContentChange overwrites the current note (last write wins), persists it
// in the background, and broadcasts notes_content_updated to everyone in the
// room but the sender. The sender does not need to be a room member.
func (n *NoteChannel) ContentChange(session Session, content string, cursor int, username string) CurrentNote {
	username = labelOrDefault(username)
	n.mutex.Lock()
	defer n.mutex.Unlock()
	note, version, body := n.setCurrentLocked(content, username)
	n.metrics.IncNoteEdit()
	n.persistAsync(docCurrentNote, version, body)
	n.hub.Broadcast(RoomNotes, EventNotesContentUpdated, contentUpdatedPayload{
		Content:        content,
		CursorPosition: cursor,
		Username:       username,
		Timestamp:      note.UpdatedAt.Time,
	}, session)
	return note
}

// CursorChange relays a cursor move to the other room members. Nothing is stored.
func (n *NoteChannel) CursorChange(session Session, cursor int, username string) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.hub.Broadcast(RoomNotes, EventNotesCursorUpdated, cursorUpdatedPayload{
		CursorPosition: cursor,
		Username:       labelOrDefault(username),
	}, session)
}

// SaveNote upserts note by id and broadcasts the whole collection to the
// room, sender included.
func (n *NoteChannel) SaveNote(session Session, note SavedNote) SavedNote {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	stored, notes, version, body := n.upsertLocked(note)
	n.persistAsync(docSavedNotes, version, body)
	n.hub.Broadcast(RoomNotes, EventNotesSavedUpdated, savedUpdatedPayload{
		Notes:  notes,
		Action: actionSave,
		Note:   &stored,
	}, nil)
	return stored
}

// DeleteNote removes the note with id. An unknown id changes nothing and
// broadcasts nothing.
func (n *NoteChannel) DeleteNote(session Session, id string) bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	notes, version, body, ok := n.deleteLocked(id)
	if !ok {
		n.logger.Debug("delete of unknown saved note", "id", id, "session", sessionID(session))
		return false
	}
	n.persistAsync(docSavedNotes, version, body)
	n.hub.Broadcast(RoomNotes, EventNotesSavedUpdated, savedUpdatedPayload{
		Notes:     notes,
		Action:    actionDelete,
		DeletedID: id,
	}, nil)
	return true
}

// Current returns a copy of the current note.
func (n *NoteChannel) Current() CurrentNote {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.current
}

// SavedNotes returns a point-in-time copy of the collection.
func (n *NoteChannel) SavedNotes() []SavedNote {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.snapshotLocked()
}

// SetCurrent is the request/response path for the current note. The write
// to the store happens before returning; its error is reported but the new
// content stays accepted in memory.
func (n *NoteChannel) SetCurrent(ctx context.Context, content, editor string) (CurrentNote, error) {
	editor = labelOrDefault(editor)
	n.mutex.Lock()
	note, version, body := n.setCurrentLocked(content, editor)
	n.metrics.IncNoteEdit()
	n.hub.Broadcast(RoomNotes, EventNotesContentUpdated, contentUpdatedPayload{
		Content:   content,
		Username:  editor,
		Timestamp: note.UpdatedAt.Time,
	}, nil)
	n.mutex.Unlock()
	return note, n.persistSync(ctx, docCurrentNote, version, body)
}

// UpsertSaved is the request/response path for saving a note.
func (n *NoteChannel) UpsertSaved(ctx context.Context, note SavedNote) (SavedNote, error) {
	n.mutex.Lock()
	stored, notes, version, body := n.upsertLocked(note)
	n.hub.Broadcast(RoomNotes, EventNotesSavedUpdated, savedUpdatedPayload{
		Notes:  notes,
		Action: actionSave,
		Note:   &stored,
	}, nil)
	n.mutex.Unlock()
	return stored, n.persistSync(ctx, docSavedNotes, version, body)
}

// DeleteSaved is the request/response path for deleting a note. It returns
// ErrNoteNotFound for an unknown id.
func (n *NoteChannel) DeleteSaved(ctx context.Context, id string) error {
	n.mutex.Lock()
	notes, version, body, ok := n.deleteLocked(id)
	if !ok {
		n.mutex.Unlock()
		return ErrNoteNotFound
	}
	n.hub.Broadcast(RoomNotes, EventNotesSavedUpdated, savedUpdatedPayload{
		Notes:     notes,
		Action:    actionDelete,
		DeletedID: id,
	}, nil)
	n.mutex.Unlock()
	return n.persistSync(ctx, docSavedNotes, version, body)
}

// stampLocked returns the server receipt time, never earlier than the
// previous stamp even if the wall clock steps back.
func (n *NoteChannel) stampLocked() time.Time {
	now := n.now()
	if now.Before(n.lastStamp) {
		now = n.lastStamp
	}
	n.lastStamp = now
	return now
}

func (n *NoteChannel) setCurrentLocked(content, editor string) (CurrentNote, uint64, []byte) {
	stamp := n.stampLocked()
	if n.current.CreatedAt.IsZero() {
		n.current.CreatedAt = noteTime(stamp)
	}
	n.current.Content = content
	n.current.UpdatedAt = noteTime(stamp)
	n.current.LastEditor = editor
	n.noteVersion++
	return n.current, n.noteVersion, n.encode(docCurrentNote, n.current)
}

func (n *NoteChannel) upsertLocked(note SavedNote) (SavedNote, []SavedNote, uint64, []byte) {
	stamp := n.stampLocked()
	note.UpdatedAt = noteTime(stamp)
	replaced := false
	for i := range n.saved {
		if n.saved[i].ID == note.ID {
			note.CreatedAt = n.saved[i].CreatedAt
			n.saved[i] = note
			replaced = true
			break
		}
	}
	if !replaced {
		if note.CreatedAt.IsZero() {
			note.CreatedAt = noteTime(stamp)
		}
		n.saved = append(n.saved, note)
	}
	n.metrics.IncSavedNoteChange()
	n.savedVersion++
	notes := n.snapshotLocked()
	return note, notes, n.savedVersion, n.encode(docSavedNotes, notes)
}

func (n *NoteChannel) deleteLocked(id string) ([]SavedNote, uint64, []byte, bool) {
	idx := -1
	for i := range n.saved {
		if n.saved[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, 0, nil, false
	}
	n.saved = append(n.saved[:idx], n.saved[idx+1:]...)
	n.metrics.IncSavedNoteChange()
	n.savedVersion++
	notes := n.snapshotLocked()
	return notes, n.savedVersion, n.encode(docSavedNotes, notes), true
}

func (n *NoteChannel) snapshotLocked() []SavedNote {
	out := make([]SavedNote, len(n.saved))
	copy(out, n.saved)
	return out
}

func (n *NoteChannel) encode(key string, doc any) []byte {
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		n.logger.Error("encode document", "key", key, "error", err)
		return nil
	}
	return body
}

func (n *NoteChannel) persistAsync(key string, version uint64, body []byte) {
	if body == nil {
		return
	}
	n.writer.Enqueue(key, version, body)
}

func (n *NoteChannel) persistSync(ctx context.Context, key string, version uint64, body []byte) error {
	if body == nil {
		return fmt.Errorf("encode %s failed", key)
	}
	if err := n.writer.Write(ctx, key, version, body); err != nil {
		n.logger.Error("persist document", "key", key, "error", err)
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// dedupeNotes keeps the last entry for every id so ids stay unique even if
// the file on disk was edited by hand.
func dedupeNotes(notes []SavedNote) []SavedNote {
	index := make(map[string]int, len(notes))
	out := make([]SavedNote, 0, len(notes))
	for _, note := range notes {
		if i, ok := index[note.ID]; ok {
			out[i] = note
			continue
		}
		index[note.ID] = len(out)
		out = append(out, note)
	}
	return out
}

// decodeSavedNotes skips entries that are not notes or have no id.
func decodeSavedNotes(raw []json.RawMessage, logger *slog.Logger) []SavedNote {
	notes := make([]SavedNote, 0, len(raw))
	for i, entry := range raw {
		var note SavedNote
		if err := json.Unmarshal(entry, &note); err != nil {
			logger.Warn("skip saved note", "index", i, "error", err)
			continue
		}
		if note.ID == "" {
			logger.Warn("skip saved note without id", "index", i)
			continue
		}
		notes = append(notes, note)
	}
	return notes
}

func labelOrDefault(username string) string {
	username = strings.TrimSpace(username)
	if username == "" {
		return defaultChatUsername
	}
	return username
}
