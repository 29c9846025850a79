package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dropflow/internal/catalog"
)

type (
	connectedMsg     struct{ conn *websocket.Conn }
	connectFailedMsg struct{ err error }
	disconnectedMsg  struct {
		conn *websocket.Conn
		err  error
	}
	reconnectMsg     struct{}
	ignoredMsg       struct{}
	historyMsg       []ChatMessage
	chatMsg          ChatMessage
	typingMsg        struct {
		username string
		stopped  bool
	}
	typingExpiredMsg struct{ at time.Time }
	noteUpdateMsg    contentUpdatedPayload
	savedNotesMsg    savedUpdatedPayload
	pollTickMsg      struct{}
	fingerprintMsg   struct {
		fp  catalog.Fingerprint
		err error
	}
	filesMsg struct {
		fp    catalog.Fingerprint
		files []catalog.FileEntry
		err   error
	}
	notesLoadedMsg struct {
		current CurrentNote
		saved   []SavedNote
		err     error
	}
	noticeMsg string
)

// decodeServerEvent turns one server frame into the tea.Msg the model
// understands. Events the client has no use for become ignoredMsg.
func decodeServerEvent(frame []byte) (tea.Msg, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, err
	}
	switch env.Event {
	case EventPreviousMessages:
		var payload previousMessagesPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return historyMsg(payload.Messages), nil
	case EventNewMessage:
		var msg ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, err
		}
		return chatMsg(msg), nil
	case EventUserTyping, EventUserStopTyping:
		var payload typingPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return typingMsg{username: payload.Username, stopped: env.Event == EventUserStopTyping}, nil
	case EventNotesContentUpdated:
		var payload contentUpdatedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return noteUpdateMsg(payload), nil
	case EventNotesSavedUpdated:
		var payload savedUpdatedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return savedNotesMsg(payload), nil
	default:
		return ignoredMsg{}, nil
	}
}

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	const retryDelay = 2 * time.Second
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func (model *TUIModel) connectCmd() tea.Cmd {
	joinURL := model.serverJoinURL
	return func() tea.Msg {
		conn, _, err := websocket.DefaultDialer.Dial(joinURL, http.Header{})
		if err != nil {
			return connectFailedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

func (model *TUIModel) readOnceCmd() tea.Cmd {
	conn := model.websocketConn
	return func() tea.Msg {
		if conn == nil {
			return disconnectedMsg{err: errors.New("websocket not connected")}
		}
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return disconnectedMsg{conn: conn, err: err}
		}
		if messageType != websocket.TextMessage {
			return ignoredMsg{}
		}
		msg, err := decodeServerEvent(payload)
		if err != nil {
			return ignoredMsg{}
		}
		return msg
	}
}

// sendEventCmd writes one event frame. Failures surface as a disconnect so
// the reconnect loop takes over.
func (model *TUIModel) sendEventCmd(event string, payload any) tea.Cmd {
	conn := model.websocketConn
	return func() tea.Msg {
		if conn == nil {
			return noticeMsg("Not connected; message not sent.")
		}
		frame, err := encodeFrame(event, payload)
		if err != nil {
			return noticeMsg(err.Error())
		}
		model.writeMutex.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		err = conn.WriteMessage(websocket.TextMessage, frame)
		model.writeMutex.Unlock()
		if err != nil {
			return disconnectedMsg{conn: conn, err: err}
		}
		return nil
	}
}

func (model *TUIModel) closeConnection() {
	if model.websocketConn == nil {
		return
	}
	model.writeMutex.Lock()
	_ = model.websocketConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client quit"))
	model.writeMutex.Unlock()
	_ = model.websocketConn.Close()
}

func (model *TUIModel) typingExpiryCmd(at time.Time) tea.Cmd {
	return tea.Tick(typingIndicatorTimeout, func(time.Time) tea.Msg {
		return typingExpiredMsg{at: at}
	})
}

func (model *TUIModel) pollCmd() tea.Cmd {
	return tea.Tick(model.pollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

func (model *TUIModel) checkFilesCmd() tea.Cmd {
	base := model.httpBase
	return func() tea.Msg {
		fp, err := apiFilesCheck(base)
		return fingerprintMsg{fp: fp, err: err}
	}
}

func (model *TUIModel) fetchFilesCmd(fp catalog.Fingerprint) tea.Cmd {
	base := model.httpBase
	return func() tea.Msg {
		files, err := apiListFiles(base)
		return filesMsg{fp: fp, files: files, err: err}
	}
}

func (model *TUIModel) fetchNotesCmd() tea.Cmd {
	base := model.httpBase
	return func() tea.Msg {
		current, err := apiCurrentNote(base)
		if err != nil {
			return notesLoadedMsg{err: err}
		}
		saved, err := apiSavedNotes(base)
		return notesLoadedMsg{current: current, saved: saved, err: err}
	}
}

func (model *TUIModel) uploadCmd(path string) tea.Cmd {
	base := model.httpBase
	return func() tea.Msg {
		names, err := apiUploadFile(base, path)
		if err != nil {
			return noticeMsg(fmt.Sprintf("Upload failed: %v", err))
		}
		return noticeMsg(fmt.Sprintf("Uploaded %s", strings.Join(names, ", ")))
	}
}

func (model *TUIModel) deleteCmd(name string) tea.Cmd {
	base := model.httpBase
	return func() tea.Msg {
		if err := apiDeleteFile(base, name); err != nil {
			return noticeMsg(fmt.Sprintf("Delete failed: %v", err))
		}
		return noticeMsg(fmt.Sprintf("Deleted %s", name))
	}
}

func (model *TUIModel) copyNoteCmd() tea.Cmd {
	content := model.note
	copyFn := model.copyToClipboard
	return func() tea.Msg {
		if content == "" {
			return noticeMsg("No note content to copy")
		}
		if err := copyFn(content); err != nil {
			return noticeMsg(fmt.Sprintf("Clipboard copy failed: %v", err))
		}
		return noticeMsg(fmt.Sprintf("Copied note (%d chars)", len([]rune(content))))
	}
}

// saveNoteCmd stores the current note text as a new saved note.
func (model *TUIModel) saveNoteCmd(title string) tea.Cmd {
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	note := SavedNote{
		ID:      uuid.NewString(),
		Title:   title,
		Content: model.note,
		Author:  model.username,
	}
	return model.sendEventCmd(EventNotesSave, NotesSave{NoteData: &note})
}

func RunClient(serverJoinURL, username string, pollInterval time.Duration) error {
	program := tea.NewProgram(NewTUIModel(serverJoinURL, username, pollInterval))
	_, err := program.Run()
	return err
}
