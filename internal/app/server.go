package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	intrnl "dropflow/internal"
	"dropflow/internal/logging"
	"dropflow/internal/storage"
)

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr      string
	publicURL string
	server    *http.Server
	app       *intrnl.Server
	watcher   *intrnl.DirWatcher
	store     storage.DocumentStore
	logger    *slog.Logger
	done      chan struct{}
	err       error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// PublicURL is the address advertised to other devices.
func (h *ServerHandle) PublicURL() string {
	return h.publicURL
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// OpenStore opens the configured note persistence backend.
func OpenStore(ctx context.Context, cfg ServerConfig) (storage.DocumentStore, error) {
	backend, err := ParseStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	if backend == StoreJSON {
		store, err := storage.NewFileStore(dataDir)
		if err != nil {
			return nil, fmt.Errorf("open json store: %w", err)
		}
		return store, nil
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = DefaultDBPath(dataDir)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// RunServer opens the note store, restores state, wires handlers, and starts
// serving in the background. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig) (*ServerHandle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.New("server")
	cfg.Path = NormalizeJoinPath(cfg.Path)
	if cfg.UploadDir == "" {
		cfg.UploadDir = DefaultUploadDir
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}
	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = PublicURLFor(listener.Addr().String())
	}

	server, err := intrnl.NewServer(ctx, intrnl.ServerOptions{
		UploadDir:     cfg.UploadDir,
		MaxUploadSize: cfg.MaxUpload,
		Store:         store,
		Logger:        logger,
		PublicURL:     publicURL,
		FileOpLimit:   cfg.FileOpLimit,
	})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}

	watcher, err := intrnl.NewDirWatcher(cfg.UploadDir, server.Metrics(), logging.New("watcher"))
	if err != nil {
		// listings still work through polling; only the operator log is lost
		logger.Warn("upload directory watcher unavailable", "error", err)
		watcher = nil
	} else if err := watcher.Start(); err != nil {
		logger.Warn("upload directory watcher failed to start", "error", err)
		_ = watcher.Close()
		watcher = nil
	}

	mux := http.NewServeMux()
	registerHandlers(mux, cfg.Path, server)

	handle := &ServerHandle{
		addr:      listener.Addr().String(),
		publicURL: publicURL,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		app:     server,
		watcher: watcher,
		store:   store,
		logger:  logger,
		done:    make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-handle.done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := handle.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	go handle.serve(listener)

	logger.Info("dropflow listening",
		"addr", handle.addr,
		"public_url", publicURL,
		"ws_path", cfg.Path,
		"upload_dir", cfg.UploadDir,
		"store", cfg.Store,
	)
	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if h.watcher != nil {
		if err := h.watcher.Close(); err != nil {
			h.logger.Error("watcher close error", "error", err)
		}
	}
	// drains pending note writes before the store goes away
	h.app.Close()
	if err := h.store.Close(); err != nil {
		h.logger.Error("store close error", "error", err)
	}
	h.err = err
}

func registerHandlers(mux *http.ServeMux, wsPath string, server *intrnl.Server) {
	mux.HandleFunc(wsPath, server.ServeWS)
	mux.HandleFunc("/", server.HandleIndex)
	mux.HandleFunc("/api/files", server.HandleFiles)
	mux.HandleFunc("/api/files/check", server.HandleFilesCheck)
	mux.HandleFunc("/download/", server.HandleDownload)
	mux.HandleFunc("/delete/", server.HandleDelete)
	mux.HandleFunc("/preview/", server.HandlePreview)
	mux.HandleFunc("/api/chat/messages", server.HandleChatMessages)
	mux.HandleFunc("/api/notes/current", server.HandleCurrentNote)
	mux.HandleFunc("/api/notes/saved", server.HandleSavedNotes)
	mux.HandleFunc("/api/notes/saved/", server.HandleSavedNoteDelete)
	mux.Handle("/metrics", server.MetricsHandler())
}
