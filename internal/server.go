package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"dropflow/internal/logging"
	"dropflow/internal/storage"
)

const (
	defaultMaxUploadSize = 16 << 30
	fileOpLimit          = 30
	fileOpWindow         = time.Minute
)

// ServerOptions configures NewServer. UploadDir and Store are required.
type ServerOptions struct {
	UploadDir     string
	MaxUploadSize int64
	Store         storage.DocumentStore
	Metrics       *Metrics
	Logger        *slog.Logger

	// PublicURL is reported by GET / so other devices know where to connect.
	PublicURL string

	// FileOpLimit caps uploads and deletes per client address per minute.
	// Negative disables the limit; zero picks the default.
	FileOpLimit int
}

// Server owns the push channel (hub, chat, notes) and the HTTP surface.
type Server struct {
	uploadDir     string
	maxUploadSize int64
	publicURL     string

	hub     *Hub
	chat    *ChatChannel
	notes   *NoteChannel
	writer  *docWriter
	metrics *Metrics
	limiter *RateLimiter
	logger  *slog.Logger

	sessionsMutex sync.Mutex
	sessions      map[Session]struct{}
	closed        bool
}

// NewServer loads persisted notes from opts.Store and prepares the upload
// directory. The store stays owned by the caller.
func NewServer(ctx context.Context, opts ServerOptions) (*Server, error) {
	if opts.UploadDir == "" {
		return nil, errors.New("upload dir is required")
	}
	if opts.Store == nil {
		return nil, errors.New("document store is required")
	}
	if err := os.MkdirAll(opts.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New("server")
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	maxUpload := opts.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadSize
	}
	limit := opts.FileOpLimit
	if limit == 0 {
		limit = fileOpLimit
	}

	hub := NewHub(logger.With("part", "hub"))
	writer := newDocWriter(opts.Store, metrics, logger.With("part", "persist"))
	return &Server{
		uploadDir:     opts.UploadDir,
		maxUploadSize: maxUpload,
		publicURL:     opts.PublicURL,
		hub:           hub,
		chat:          NewChatChannel(hub, metrics, logger.With("part", "chat")),
		notes:         NewNoteChannel(ctx, hub, opts.Store, writer, metrics, logger.With("part", "notes")),
		writer:        writer,
		metrics:       metrics,
		limiter:       NewRateLimiter(limit, fileOpWindow),
		logger:        logger,
		sessions:      make(map[Session]struct{}),
	}, nil
}

func (s *Server) Hub() *Hub           { return s.hub }
func (s *Server) Chat() *ChatChannel  { return s.chat }
func (s *Server) Notes() *NoteChannel { return s.notes }
func (s *Server) Metrics() *Metrics   { return s.metrics }
func (s *Server) UploadDir() string   { return s.uploadDir }

// Connect registers a new session and puts it in main_chat.
func (s *Server) Connect(session Session) {
	s.sessionsMutex.Lock()
	if s.closed {
		s.sessionsMutex.Unlock()
		if client, ok := session.(*Client); ok {
			client.shutdown()
		}
		return
	}
	s.sessions[session] = struct{}{}
	s.sessionsMutex.Unlock()
	s.metrics.IncConn()
	s.chat.Connect(session)
}

// Disconnect drops session from every room. It is safe to call more than
// once; only the first call has an effect.
func (s *Server) Disconnect(session Session) {
	s.sessionsMutex.Lock()
	_, ok := s.sessions[session]
	delete(s.sessions, session)
	s.sessionsMutex.Unlock()
	rooms := s.hub.LeaveAll(session)
	if !ok {
		return
	}
	s.metrics.DecConn()
	s.logger.Info("client disconnected", "session", session.ID(), "rooms", rooms)
}

// HandleFrame decodes one inbound frame and applies it. Frames that fail to
// decode or validate are logged and dropped; the sender is never told.
func (s *Server) HandleFrame(session Session, frame []byte) {
	name, event, err := decodeEvent(frame)
	if err != nil {
		if errors.Is(err, errUnknownEvent) {
			s.logger.Warn("dropped frame", "session", session.ID(), "event", name, "error", err)
		} else {
			s.logger.Debug("dropped frame", "session", session.ID(), "event", name, "error", err)
		}
		return
	}
	s.dispatch(session, event)
}

func (s *Server) dispatch(session Session, event inboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event handler panic", "session", session.ID(), "event", fmt.Sprintf("%T", event), "panic", r)
		}
	}()
	switch e := event.(type) {
	case *SendMessage:
		s.chat.Send(session, e.Username, e.Message)
	case *Typing:
		s.chat.Typing(session, e.Username)
	case *StopTyping:
		s.chat.StopTyping(session, e.Username)
	case *JoinNotes:
		s.notes.Join(session)
	case *LeaveNotes:
		s.notes.Leave(session)
	case *NotesContentChange:
		s.notes.ContentChange(session, *e.Content, e.CursorPosition, e.Username)
	case *NotesCursorChange:
		s.notes.CursorChange(session, e.CursorPosition, e.Username)
	case *NotesSave:
		s.notes.SaveNote(session, *e.NoteData)
	case *NotesDelete:
		s.notes.DeleteNote(session, e.NoteID)
	default:
		s.logger.Error("no handler for event", "type", fmt.Sprintf("%T", event))
	}
}

// Close hangs up every connection and writes out pending note state.
func (s *Server) Close() {
	s.sessionsMutex.Lock()
	s.closed = true
	sessions := make([]Session, 0, len(s.sessions))
	for session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.sessionsMutex.Unlock()
	for _, session := range sessions {
		if client, ok := session.(*Client); ok {
			client.shutdown()
		}
	}
	s.writer.Close()
}
