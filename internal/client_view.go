package internal

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"dropflow/internal/catalog"
)

var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	tabStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Padding(0, 1)
	activeTabStyle     = tabStyle.Copy().Foreground(lipgloss.Color("213")).Bold(true).Underline(true)
	headerStyle        = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	hintStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	fileNameStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	fileMetaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

const fileNameColumn = 40

func (model *TUIModel) View() string {
	if model.quitting {
		return ""
	}
	sections := []string{model.renderHeader(), model.renderStatus()}
	switch model.tab {
	case tabFiles:
		sections = append(sections, model.renderFilesView())
	case tabNotes:
		sections = append(sections, model.renderNotesView())
	default:
		sections = append(sections, model.renderChatView())
	}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections,
		inputBoxStyle.Render(model.textInput.View()),
		hintStyle.Render(model.hint()),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *TUIModel) renderHeader() string {
	tabs := make([]string, 0, len(tabTitles))
	for i, title := range tabTitles {
		if clientTab(i) == model.tab {
			tabs = append(tabs, activeTabStyle.Render(title))
		} else {
			tabs = append(tabs, tabStyle.Render(title))
		}
	}
	segments := []string{
		appTitleStyle.Render("DropFlow"),
		strings.Join(tabs, " "),
		fmt.Sprintf("User %s", model.username),
		fmt.Sprintf("Server %s", model.httpBase),
	}
	return headerStyle.Render(strings.Join(segments, dividerStyle))
}

func (model *TUIModel) renderStatus() string {
	switch {
	case model.isConnected:
		return connectedStyle.Render("Connected")
	case model.connectionError != nil:
		return errorStyle.Render("Connection error: " + model.connectionError.Error())
	default:
		return connectingStyle.Render("Connecting…")
	}
}

func (model *TUIModel) renderChatView() string {
	var lines []string
	for _, chat := range model.messages {
		lines = append(lines, renderChatMessage(chat))
	}
	if len(lines) == 0 {
		lines = append(lines, systemMessageStyle.Render("No messages yet. Say hi and start the conversation."))
	}
	if model.typingUser != "" {
		lines = append(lines, systemMessageStyle.Render(model.typingUser+" is typing…"))
	}
	return messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderChatMessage(chat ChatMessage) string {
	stamp := chat.FormattedTime
	if stamp == "" && !chat.CreatedAt.IsZero() {
		stamp = chat.CreatedAt.Local().Format("15:04")
	}
	name := usernameStyle.Copy().Foreground(colorForUser(chat.Username)).Render(chat.Username)
	return fmt.Sprintf("%s %s %s", timestampStyle.Render(stamp), name, messageBodyStyle.Render(chat.Body))
}

func (model *TUIModel) renderFilesView() string {
	var lines []string
	switch {
	case model.filesError != nil && !model.filesLoaded:
		lines = append(lines, errorStyle.Render("Could not load files: "+model.filesError.Error()))
	case !model.filesLoaded:
		lines = append(lines, connectingStyle.Render("Loading files…"))
	case len(model.files) == 0:
		lines = append(lines, systemMessageStyle.Render("No files shared yet. /upload <path> to drop one."))
	}
	var total int64
	for _, entry := range model.files {
		total += entry.Size
		name := runewidth.FillRight(runewidth.Truncate(entry.Name, fileNameColumn, "…"), fileNameColumn)
		meta := fmt.Sprintf("%10s  %s", entry.SizeFormatted, entry.ModifiedAt.Local().Format("2006-01-02 15:04"))
		lines = append(lines, fmt.Sprintf("%s %s %s", entry.Icon, fileNameStyle.Render(name), fileMetaStyle.Render(meta)))
	}
	if model.filesLoaded && len(model.files) > 0 {
		lines = append(lines, fileMetaStyle.Render(fmt.Sprintf("%d files, %s", len(model.files), catalog.FormatSize(total))))
	}
	if model.browsePath != "" {
		lines = append(lines, "", usernameStyle.Render("Local: "+model.browsePath))
		for i, item := range model.browseItems {
			if i == maxBrowseItems {
				lines = append(lines, fileMetaStyle.Render(fmt.Sprintf("… %d more", len(model.browseItems)-i)))
				break
			}
			lines = append(lines, fileNameStyle.Render(describeLocalItem(item)))
		}
	}
	return messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (model *TUIModel) renderNotesView() string {
	var lines []string
	if model.note == "" {
		lines = append(lines, systemMessageStyle.Render("The shared note is empty. Type to add a line."))
	} else {
		lines = append(lines, strings.TrimRight(model.noteRendered, "\n"))
		if model.noteEditor != "" {
			lines = append(lines, fileMetaStyle.Render("last edited by "+model.noteEditor))
		}
	}
	if len(model.savedNotes) > 0 {
		lines = append(lines, "", usernameStyle.Render("Saved notes"))
		for _, note := range model.savedNotes {
			lines = append(lines, fmt.Sprintf("%s %s %s",
				fileMetaStyle.Render(note.ID),
				fileNameStyle.Render(note.Title),
				timestampStyle.Render(note.UpdatedAt.Local().Format(time.DateTime))))
		}
	}
	return messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (model *TUIModel) renderNotices() string {
	if len(model.notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(model.notices))
	for _, notice := range model.notices {
		lines = append(lines, systemMessageStyle.Render(notice))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (model *TUIModel) hint() string {
	switch model.tab {
	case tabFiles:
		return "/ls [dir] • /upload <path> • /delete <name> • /refresh • Tab to switch • Ctrl+C to quit"
	case tabNotes:
		return "Enter appends a line • /note <text> • /save <title> • /forget <id> • Ctrl+Y copy"
	default:
		return "Enter to send • Tab to switch • /quit to leave"
	}
}

// renderMarkdown renders the shared note for the terminal. DROPFLOW_GLAMOUR_STYLE
// picks the glamour style; "auto" follows the terminal background. Rendering
// errors fall back to the raw text.
func renderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width < 20 {
		width = 80
	}
	styleOpt := glamour.WithStandardStyle("dark")
	switch style := strings.TrimSpace(os.Getenv("DROPFLOW_GLAMOUR_STYLE")); style {
	case "":
	case "auto":
		styleOpt = glamour.WithAutoStyle()
	default:
		styleOpt = glamour.WithStandardStyle(style)
	}
	renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width-6))
	if err != nil {
		return content
	}
	out, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return out
}

func colorForUser(name string) lipgloss.Color {
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
