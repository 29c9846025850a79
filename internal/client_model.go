package internal

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"dropflow/internal/catalog"
)

type clientTab int

const (
	tabChat clientTab = iota
	tabFiles
	tabNotes
)

var tabTitles = []string{"Chat", "Files", "Notes"}

const (
	// the server never times typing hints out, so the client does
	typingIndicatorTimeout = 3 * time.Second
	defaultPollInterval    = 3 * time.Second
	maxNotices             = 5
)

// TUIModel is the terminal client: chat over the push channel, the file list
// kept fresh by polling, and the shared note.
type TUIModel struct {
	textInput     textinput.Model
	tab           clientTab
	serverJoinURL string
	httpBase      string
	username      string
	pollInterval  time.Duration
	width         int

	websocketConn   *websocket.Conn
	writeMutex      sync.Mutex
	isConnected     bool
	quitting        bool
	connectionError error

	messages   []ChatMessage
	notices    []string
	typingUser string
	typingAt   time.Time
	typingSent bool

	files       []catalog.FileEntry
	fingerprint catalog.Fingerprint
	filesLoaded bool
	filesError  error
	browsePath  string
	browseItems []localItem

	note         string
	noteEditor   string
	noteRendered string
	savedNotes   []SavedNote

	copyToClipboard func(string) error
}

func NewTUIModel(serverJoinURL, username string, pollInterval time.Duration) *TUIModel {
	input := textinput.New()
	input.Placeholder = "Type a message…"
	input.CharLimit = maxBodyRunes
	input.Focus()
	input.Prompt = "> "

	if strings.TrimSpace(username) == "" {
		username = defaultUsername()
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	httpBase, _ := httpBaseFromJoinURL(serverJoinURL)

	return &TUIModel{
		textInput:       input,
		serverJoinURL:   serverJoinURL,
		httpBase:        httpBase,
		username:        truncateRunes(strings.TrimSpace(username), maxUsernameRunes),
		pollInterval:    pollInterval,
		messages:        make([]ChatMessage, 0, chatCapacity),
		copyToClipboard: clipboard.WriteAll,
	}
}

func defaultUsername() string {
	if user := os.Getenv("DROPFLOW_USER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "anon"
}

func (model *TUIModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		model.connectCmd(),
		model.checkFilesCmd(),
		model.fetchNotesCmd(),
	)
}

// remoteEditApplies reports whether a note update labelled editor should
// replace the local text. Updates carrying our own label are echoes.
func remoteEditApplies(self, editor string) bool {
	return strings.TrimSpace(editor) != strings.TrimSpace(self)
}

func (model *TUIModel) addNotice(text string) {
	model.notices = append(model.notices, text)
	if len(model.notices) > maxNotices {
		model.notices = model.notices[len(model.notices)-maxNotices:]
	}
}

func (model *TUIModel) appendMessage(msg ChatMessage) {
	model.messages = append(model.messages, msg)
	if len(model.messages) > chatCapacity {
		model.messages = model.messages[len(model.messages)-chatCapacity:]
	}
}

func (model *TUIModel) setNote(content, editor string) {
	model.note = content
	model.noteEditor = editor
	model.noteRendered = renderMarkdown(content, model.width)
}
