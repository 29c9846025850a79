package internal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Push-channel event names. Clients depend on these exact strings.
const (
	EventSendMessage         = "send_message"
	EventNewMessage          = "new_message"
	EventPreviousMessages    = "previous_messages"
	EventTyping              = "typing"
	EventUserTyping          = "user_typing"
	EventStopTyping          = "stop_typing"
	EventUserStopTyping      = "user_stop_typing"
	EventJoinNotes           = "join_notes"
	EventLeaveNotes          = "leave_notes"
	EventNotesContentChange  = "notes_content_change"
	EventNotesContentUpdated = "notes_content_updated"
	EventNotesCursorChange   = "notes_cursor_change"
	EventNotesCursorUpdated  = "notes_cursor_updated"
	EventNotesSave           = "notes_save"
	EventNotesSavedUpdated   = "notes_saved_updated"
	EventNotesDelete         = "notes_delete"
)

// Envelope is one websocket text frame: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

var (
	errUnknownEvent  = errors.New("unknown event")
	errMissingField  = errors.New("missing required field")
	errMalformedData = errors.New("malformed event data")
)

// inboundEvent is the closed set of events a client may send. validate
// rejects payloads missing a required field.
type inboundEvent interface {
	validate() error
}

type SendMessage struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

type Typing struct {
	Username string `json:"username"`
}

type StopTyping struct {
	Username string `json:"username"`
}

type JoinNotes struct{}

type LeaveNotes struct{}

type NotesContentChange struct {
	Content        *string `json:"content"`
	CursorPosition int     `json:"cursor_position"`
	Username       string  `json:"username"`
}

type NotesCursorChange struct {
	CursorPosition int    `json:"cursor_position"`
	Username       string `json:"username"`
}

type NotesSave struct {
	NoteData *SavedNote `json:"note_data"`
}

type NotesDelete struct {
	NoteID string `json:"note_id"`
}

// empty bodies are handled by the chat channel as a silent drop
func (*SendMessage) validate() error { return nil }
func (*Typing) validate() error      { return nil }
func (*StopTyping) validate() error  { return nil }
func (*JoinNotes) validate() error   { return nil }
func (*LeaveNotes) validate() error  { return nil }

func (e *NotesContentChange) validate() error {
	if e.Content == nil {
		return fmt.Errorf("%w: content", errMissingField)
	}
	return nil
}

func (*NotesCursorChange) validate() error { return nil }

func (e *NotesSave) validate() error {
	if e.NoteData == nil {
		return fmt.Errorf("%w: note_data", errMissingField)
	}
	if e.NoteData.ID == "" {
		return fmt.Errorf("%w: note_data.id", errMissingField)
	}
	return nil
}

func (e *NotesDelete) validate() error {
	if e.NoteID == "" {
		return fmt.Errorf("%w: note_id", errMissingField)
	}
	return nil
}

// decodeEvent parses a raw frame into its typed event and validates it.
func decodeEvent(frame []byte) (string, inboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errMalformedData, err)
	}
	var event inboundEvent
	switch env.Event {
	case EventSendMessage:
		event = &SendMessage{}
	case EventTyping:
		event = &Typing{}
	case EventStopTyping:
		event = &StopTyping{}
	case EventJoinNotes:
		event = &JoinNotes{}
	case EventLeaveNotes:
		event = &LeaveNotes{}
	case EventNotesContentChange:
		event = &NotesContentChange{}
	case EventNotesCursorChange:
		event = &NotesCursorChange{}
	case EventNotesSave:
		event = &NotesSave{}
	case EventNotesDelete:
		event = &NotesDelete{}
	default:
		return env.Event, nil, fmt.Errorf("%w: %q", errUnknownEvent, env.Event)
	}
	if data := bytes.TrimSpace(env.Data); len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if err := json.Unmarshal(data, event); err != nil {
			return env.Event, nil, fmt.Errorf("%w: %v", errMalformedData, err)
		}
	}
	if err := event.validate(); err != nil {
		return env.Event, nil, err
	}
	return env.Event, event, nil
}

// encodeFrame builds the wire frame for an outbound event.
func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundEnvelope{Event: event, Data: payload})
}

type previousMessagesPayload struct {
	Messages []ChatMessage `json:"messages"`
}

type typingPayload struct {
	Username string `json:"username"`
}

type contentUpdatedPayload struct {
	Content        string    `json:"content"`
	CursorPosition int       `json:"cursor_position"`
	Username       string    `json:"username"`
	Timestamp      time.Time `json:"timestamp"`
}

type cursorUpdatedPayload struct {
	CursorPosition int    `json:"cursor_position"`
	Username       string `json:"username"`
}

type savedUpdatedPayload struct {
	Notes     []SavedNote `json:"notes"`
	Action    string      `json:"action"`
	Note      *SavedNote  `json:"note,omitempty"`
	DeletedID string      `json:"deleted_id,omitempty"`
}
