package internal

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/exp/slices"

	"dropflow/internal/catalog"
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.WindowSizeMsg:
		model.width = typedMessage.Width
		model.noteRendered = renderMarkdown(model.note, model.width)
		return model, nil

	case tea.KeyMsg:
		return model.handleKey(typedMessage)

	case connectedMsg:
		model.websocketConn = typedMessage.conn
		model.isConnected = true
		model.connectionError = nil
		// the note room is joined on every connect so reconnects resubscribe
		return model, tea.Batch(
			model.readOnceCmd(),
			model.sendEventCmd(EventJoinNotes, JoinNotes{}),
			model.fetchNotesCmd(),
		)

	case connectFailedMsg:
		model.connectionError = typedMessage.err
		return model, model.scheduleReconnect()

	case disconnectedMsg:
		if typedMessage.conn == nil || typedMessage.conn != model.websocketConn {
			return model, nil
		}
		model.closeConnection()
		model.websocketConn = nil
		model.isConnected = false
		model.typingSent = false
		model.connectionError = typedMessage.err
		if model.quitting {
			return model, nil
		}
		return model, model.scheduleReconnect()

	case reconnectMsg:
		if model.isConnected || model.quitting {
			return model, nil
		}
		return model, model.connectCmd()

	case ignoredMsg:
		return model, model.readOnceCmd()

	case historyMsg:
		model.messages = model.messages[:0]
		for _, chat := range typedMessage {
			model.appendMessage(chat)
		}
		return model, model.readOnceCmd()

	case chatMsg:
		model.appendMessage(ChatMessage(typedMessage))
		if model.typingUser == typedMessage.Username {
			model.typingUser = ""
		}
		return model, model.readOnceCmd()

	case typingMsg:
		if typedMessage.stopped {
			if model.typingUser == typedMessage.username {
				model.typingUser = ""
			}
			return model, model.readOnceCmd()
		}
		now := time.Now()
		model.typingUser = typedMessage.username
		model.typingAt = now
		return model, tea.Batch(model.readOnceCmd(), model.typingExpiryCmd(now))

	case typingExpiredMsg:
		if typedMessage.at.Equal(model.typingAt) {
			model.typingUser = ""
		}
		return model, nil

	case noteUpdateMsg:
		if remoteEditApplies(model.username, typedMessage.Username) {
			model.setNote(typedMessage.Content, typedMessage.Username)
		}
		return model, model.readOnceCmd()

	case savedNotesMsg:
		model.savedNotes = typedMessage.Notes
		return model, model.readOnceCmd()

	case pollTickMsg:
		return model, model.checkFilesCmd()

	case fingerprintMsg:
		if typedMessage.err != nil {
			model.filesError = typedMessage.err
			return model, model.pollCmd()
		}
		if !model.filesLoaded || typedMessage.fp.Changed(model.fingerprint) {
			return model, model.fetchFilesCmd(typedMessage.fp)
		}
		return model, model.pollCmd()

	case filesMsg:
		if typedMessage.err != nil {
			model.filesError = typedMessage.err
			return model, model.pollCmd()
		}
		files := slices.Clone(typedMessage.files)
		slices.SortFunc(files, func(a, b catalog.FileEntry) int {
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
		model.files = files
		model.fingerprint = typedMessage.fp
		model.filesLoaded = true
		model.filesError = nil
		return model, model.pollCmd()

	case notesLoadedMsg:
		if typedMessage.err != nil {
			model.addNotice(fmt.Sprintf("Could not load notes: %v", typedMessage.err))
			return model, nil
		}
		model.setNote(typedMessage.current.Content, typedMessage.current.LastEditor)
		model.savedNotes = typedMessage.saved
		return model, nil

	case noticeMsg:
		model.addNotice(string(typedMessage))
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyCtrlC:
		return model, model.quit()
	case tea.KeyTab:
		model.tab = (model.tab + 1) % clientTab(len(tabTitles))
		return model, nil
	case tea.KeyShiftTab:
		model.tab = (model.tab + clientTab(len(tabTitles)) - 1) % clientTab(len(tabTitles))
		return model, nil
	case tea.KeyCtrlY:
		return model, model.copyNoteCmd()
	case tea.KeyEnter:
		input := strings.TrimSpace(model.textInput.Value())
		model.textInput.SetValue("")
		if input == "" {
			return model, nil
		}
		if strings.HasPrefix(input, "/") {
			return model, model.runCommand(input)
		}
		return model, model.submit(input)
	}

	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, tea.Batch(cmd, model.typingSignal())
}

// typingSignal announces typing once per burst and retracts it when the
// input is cleared.
func (model *TUIModel) typingSignal() tea.Cmd {
	if model.tab != tabChat || !model.isConnected {
		return nil
	}
	empty := model.textInput.Value() == ""
	switch {
	case !empty && !model.typingSent:
		model.typingSent = true
		return model.sendEventCmd(EventTyping, Typing{Username: model.username})
	case empty && model.typingSent:
		model.typingSent = false
		return model.sendEventCmd(EventStopTyping, StopTyping{Username: model.username})
	}
	return nil
}

func (model *TUIModel) submit(text string) tea.Cmd {
	switch model.tab {
	case tabChat:
		if !model.isConnected {
			model.addNotice("Not connected; message not sent.")
			return nil
		}
		model.typingSent = false
		return tea.Sequence(
			model.sendEventCmd(EventSendMessage, SendMessage{Message: text, Username: model.username}),
			model.sendEventCmd(EventStopTyping, StopTyping{Username: model.username}),
		)
	case tabNotes:
		content := text
		if model.note != "" {
			content = model.note + "\n" + text
		}
		return model.editNote(content)
	default:
		model.addNotice("Use /upload <path> or /delete <name> on the Files tab.")
		return nil
	}
}

func (model *TUIModel) editNote(content string) tea.Cmd {
	model.setNote(content, model.username)
	return model.sendEventCmd(EventNotesContentChange, NotesContentChange{
		Content:        &content,
		CursorPosition: len([]rune(content)),
		Username:       model.username,
	})
}

func (model *TUIModel) runCommand(input string) tea.Cmd {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "/quit", "/exit":
		return model.quit()
	case "/note":
		return model.editNote(arg)
	case "/save":
		return model.saveNoteCmd(arg)
	case "/forget":
		if arg == "" {
			model.addNotice("Usage: /forget <note id>")
			return nil
		}
		return model.sendEventCmd(EventNotesDelete, NotesDelete{NoteID: arg})
	case "/upload":
		if arg == "" {
			model.addNotice("Usage: /upload <path>")
			return nil
		}
		return model.uploadCmd(model.resolveBrowsePath(arg))
	case "/ls":
		model.browse(arg)
		return nil
	case "/delete":
		if arg == "" {
			model.addNotice("Usage: /delete <file name>")
			return nil
		}
		return model.deleteCmd(arg)
	case "/copy":
		return model.copyNoteCmd()
	case "/refresh":
		// the next poll tick refetches the listing
		model.filesLoaded = false
		return model.fetchNotesCmd()
	default:
		model.addNotice(fmt.Sprintf("Unknown command %s", name))
		return nil
	}
}

func (model *TUIModel) quit() tea.Cmd {
	model.quitting = true
	model.closeConnection()
	return tea.Quit
}
