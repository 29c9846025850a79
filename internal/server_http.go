package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"dropflow/internal/catalog"
)

const (
	previewLimit      = 500 * 1024
	defaultChatLimit  = chatSnapshotSize
	errNoDataProvided = "No data provided"
)

type statusResponse struct {
	App         string     `json:"app"`
	Version     string     `json:"version"`
	ServerURL   string     `json:"server_url,omitempty"`
	Connections int64      `json:"connections"`
	UploadInfo  uploadInfo `json:"upload_info"`
}

type uploadInfo struct {
	Count         int    `json:"count"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"size_formatted"`
}

type filesResponse struct {
	Files     []catalog.FileEntry `json:"files"`
	Count     int                 `json:"count"`
	TotalSize int64               `json:"total_size"`
}

type filesCheckResponse struct {
	LastModified float64   `json:"last_modified"`
	FileCount    int       `json:"file_count"`
	Digest       string    `json:"digest"`
	Timestamp    time.Time `json:"timestamp"`
}

type chatMessagesResponse struct {
	Messages   []ChatMessage `json:"messages"`
	Count      int           `json:"count"`
	TotalCount int           `json:"total_count"`
}

// currentNoteRequest accepts what browsers send back after a GET. Only the
// content and editor are used; timestamps are assigned on receipt.
type currentNoteRequest struct {
	CurrentNote *string         `json:"current_note"`
	LastEditor  string          `json:"last_editor"`
	CreatedAt   json.RawMessage `json:"created_at"`
	UpdatedAt   json.RawMessage `json:"updated_at"`
}

type mutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Note    any    `json:"note,omitempty"`
}

// HandleIndex serves GET / (status) and POST / (upload).
func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleStatus(w)
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter) {
	count, size := catalog.Summarize(catalog.List(s.uploadDir))
	writeJSON(w, http.StatusOK, statusResponse{
		App:         "dropflow",
		Version:     Version,
		ServerURL:   s.publicURL,
		Connections: s.metrics.ActiveConnections(),
		UploadInfo: uploadInfo{
			Count:         count,
			Size:          size,
			SizeFormatted: catalog.FormatSize(size),
		},
	})
}

func (s *Server) HandleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	entries := catalog.List(s.uploadDir)
	count, total := catalog.Summarize(entries)
	writeJSON(w, http.StatusOK, filesResponse{Files: entries, Count: count, TotalSize: total})
}

// HandleFilesCheck is the cheap poll: a fingerprint of the upload directory
// computed fresh on every call.
func (s *Server) HandleFilesCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	fp := catalog.TakeFingerprint(s.uploadDir)
	writeJSON(w, http.StatusOK, filesCheckResponse{
		LastModified: catalog.Epoch(fp.LatestModified),
		FileCount:    fp.Count,
		Digest:       fp.Digest,
		Timestamp:    time.Now(),
	})
}

func (s *Server) HandleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/download/")
	file, info, ok := s.openUpload(w, name)
	if !ok {
		return
	}
	defer file.Close()
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), file)
}

func (s *Server) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	if !s.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New(http.StatusText(http.StatusTooManyRequests)))
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/delete/")
	path, err := resolveUploadPath(s.uploadDir, name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "file not found"})
		return
	}
	if err := os.Remove(path); err != nil {
		s.logger.Error("delete failed", "file", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	s.metrics.IncDeletion()
	s.logger.Info("file deleted", "file", name, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, mutationResponse{Success: true, Message: "file deleted"})
}

// HandlePreview returns the first 500 KB of a code-like file as text.
func (s *Server) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/preview/")
	if catalog.Classify(name) != catalog.CategoryCode {
		writeError(w, http.StatusBadRequest, errors.New("Preview not available for this file type"))
		return
	}
	file, _, ok := s.openUpload(w, name)
	if !ok {
		return
	}
	defer file.Close()
	content, err := io.ReadAll(io.LimitReader(file, previewLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": strings.ToValidUTF8(string(content), "")})
}

func (s *Server) openUpload(w http.ResponseWriter, name string) (*os.File, fs.FileInfo, bool) {
	path, err := resolveUploadPath(s.uploadDir, name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, nil, false
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, errors.New("file not found"))
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return nil, nil, false
	}
	info, err := file.Stat()
	if err != nil || !info.Mode().IsRegular() {
		file.Close()
		writeError(w, http.StatusNotFound, errors.New("file not found"))
		return nil, nil, false
	}
	return file, info, true
}

// HandleChatMessages returns the newest ?limit= messages, at most 100. A
// missing, unparsable, zero, or negative limit means the default of 50, not
// the whole log.
func (s *Server) HandleChatMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	limit := defaultChatLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > chatCapacity {
		limit = chatCapacity
	}
	messages, total := s.chat.Messages(limit)
	writeJSON(w, http.StatusOK, chatMessagesResponse{
		Messages:   messages,
		Count:      len(messages),
		TotalCount: total,
	})
}

func (s *Server) HandleCurrentNote(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.notes.Current())
	case http.MethodPost:
		var req currentNoteRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDecodeError(w, err)
			return
		}
		content := ""
		if req.CurrentNote != nil {
			content = *req.CurrentNote
		}
		note, err := s.notes.SetCurrent(r.Context(), content, req.LastEditor)
		if err != nil {
			writeError(w, http.StatusInternalServerError, errors.New("Failed to save note"))
			return
		}
		writeJSON(w, http.StatusOK, mutationResponse{Success: true, Message: "note saved", Note: note})
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) HandleSavedNotes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string][]SavedNote{"notes": s.notes.SavedNotes()})
	case http.MethodPost:
		var note SavedNote
		// browsers may send back extra fields they keep on a note
		if err := decodeJSONLoose(r, &note); err != nil {
			writeDecodeError(w, err)
			return
		}
		if strings.TrimSpace(note.ID) == "" {
			writeError(w, http.StatusBadRequest, errors.New("note id is required"))
			return
		}
		stored, err := s.notes.UpsertSaved(r.Context(), note)
		if err != nil {
			writeError(w, http.StatusInternalServerError, errors.New("Failed to save note"))
			return
		}
		writeJSON(w, http.StatusOK, mutationResponse{Success: true, Message: "note saved", Note: stored})
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) HandleSavedNoteDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/notes/saved/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errors.New("Note not found"))
		return
	}
	if err := s.notes.DeleteSaved(r.Context(), id); err != nil {
		if errors.Is(err, ErrNoteNotFound) {
			writeError(w, http.StatusNotFound, errors.New("Note not found"))
			return
		}
		writeError(w, http.StatusInternalServerError, errors.New("Failed to delete note"))
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Success: true, Message: "note deleted"})
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func decodeJSONLoose(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, io.EOF) {
		err = errors.New(errNoDataProvided)
	}
	writeError(w, http.StatusBadRequest, err)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
