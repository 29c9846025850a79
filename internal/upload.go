package internal

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

const uploadField = "files[]"

var (
	errNoFilePart      = errors.New("No file part")
	errInvalidFilename = errors.New("invalid file name")

	unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

	windowsDeviceNames = map[string]struct{}{
		"CON": {}, "AUX": {}, "COM1": {}, "COM2": {}, "COM3": {}, "COM4": {},
		"LPT1": {}, "LPT2": {}, "LPT3": {}, "PRN": {}, "NUL": {},
	}
)

// SecureFilename reduces an uploaded name to a flat ASCII name that is safe
// to join onto the upload directory. It may return "" when nothing usable
// is left.
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return ' '
		case r > unicode.MaxASCII:
			return -1
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	if name == "" {
		return ""
	}
	base, _, _ := strings.Cut(name, ".")
	if _, reserved := windowsDeviceNames[strings.ToUpper(base)]; reserved {
		name = "_" + name
	}
	return name
}

// resolveUploadPath maps a request path segment onto a file directly inside
// dir. Hidden names and anything with a separator are refused.
func resolveUploadPath(dir, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", errInvalidFilename
	}
	return filepath.Join(dir, name), nil
}

// saveUploads streams every files[] part of a multipart body into dir. Each
// part is written to a hidden temp file first and renamed into place once
// complete, so listings never show a partial file. It returns the stored
// names in request order.
func saveUploads(reader *multipart.Reader, dir string) ([]string, error) {
	saved := make([]string, 0, 1)
	sawField := false
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return saved, err
		}
		if part.FormName() != uploadField {
			part.Close()
			continue
		}
		sawField = true
		name := SecureFilename(part.FileName())
		if name == "" {
			part.Close()
			continue
		}
		if err := storeUpload(part, dir, name); err != nil {
			part.Close()
			return saved, err
		}
		part.Close()
		saved = append(saved, name)
	}
	if !sawField {
		return nil, errNoFilePart
	}
	return saved, nil
}

func storeUpload(src io.Reader, dir, name string) error {
	tmpPath := filepath.Join(dir, ".upload-"+uuid.NewString())
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store %s: %w", name, err)
	}
	return nil
}

// handleUpload is POST /. Same-name uploads overwrite.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New(http.StatusText(http.StatusTooManyRequests)))
		return
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		writeError(w, http.StatusBadRequest, errNoFilePart)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	saved, err := saveUploads(reader, s.uploadDir)
	s.metrics.IncUpload(len(saved))
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, errors.New("file too large"))
		case errors.Is(err, errNoFilePart):
			writeError(w, http.StatusBadRequest, err)
		default:
			s.logger.Error("upload failed", "remote", r.RemoteAddr, "error", err)
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	s.logger.Info("files uploaded", "remote", r.RemoteAddr, "files", saved)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": "Files uploaded successfully",
		"files":   saved,
	})
}
