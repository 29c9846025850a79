package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dropflow/internal/catalog"
)

var (
	httpTimeout = 5 * time.Second

	// uploads can be large, so no overall timeout
	uploadClient = &http.Client{}
)

func apiFilesCheck(baseURL string) (catalog.Fingerprint, error) {
	var resp filesCheckResponse
	if err := doJSONRequest(http.MethodGet, baseURL+"/api/files/check", nil, &resp); err != nil {
		return catalog.Fingerprint{}, err
	}
	return catalog.Fingerprint{
		LatestModified: catalog.FromEpoch(resp.LastModified),
		Count:          resp.FileCount,
		Digest:         resp.Digest,
	}, nil
}

func apiListFiles(baseURL string) ([]catalog.FileEntry, error) {
	var resp filesResponse
	if err := doJSONRequest(http.MethodGet, baseURL+"/api/files", nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Files {
		resp.Files[i].ModifiedAt = catalog.FromEpoch(resp.Files[i].Date)
	}
	return resp.Files, nil
}

func apiCurrentNote(baseURL string) (CurrentNote, error) {
	var note CurrentNote
	err := doJSONRequest(http.MethodGet, baseURL+"/api/notes/current", nil, &note)
	return note, err
}

func apiSavedNotes(baseURL string) ([]SavedNote, error) {
	var resp struct {
		Notes []SavedNote `json:"notes"`
	}
	err := doJSONRequest(http.MethodGet, baseURL+"/api/notes/saved", nil, &resp)
	return resp.Notes, err
}

func apiDeleteFile(baseURL, name string) error {
	return doJSONRequest(http.MethodDelete, baseURL+"/delete/"+url.PathEscape(name), nil, nil)
}

// apiUploadFile streams the file at path to POST / as a files[] part and
// returns the names the server stored.
func apiUploadFile(baseURL, path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		part, err := form.CreateFormFile(uploadField, filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.Close()
		}
		writer.CloseWithError(err)
	}()

	req, err := http.NewRequest(http.MethodPost, baseURL+"/", reader)
	if err != nil {
		reader.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := uploadClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}
	var out struct {
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

func doJSONRequest(method, endpoint string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(buf)
	}
	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"].(string); ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

// httpBaseFromJoinURL turns ws://host:port/ws into http://host:port.
func httpBaseFromJoinURL(wsURL string) (string, error) {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}
