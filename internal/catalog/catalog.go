// Package catalog reads the drop directory: a cheap Fingerprint for change
// polling and a full listing of FileEntry values for display. Nothing here is
// cached; every call reflects the directory at that instant.
package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Category is the preview class of a file, derived from its extension.
type Category string

const (
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
	CategoryAudio Category = "audio"
	CategoryPDF   Category = "pdf"
	CategoryCode  Category = "code"
	CategoryOther Category = "other"
)

const defaultIcon = "fa-file"

// FileEntry is one regular file in the listing.
type FileEntry struct {
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	SizeFormatted string    `json:"size_formatted"`
	ModifiedAt    time.Time `json:"-"`
	Date          float64   `json:"date"`
	DateFormatted string    `json:"date_formatted"`
	Category      Category  `json:"preview_type"`
	Icon          string    `json:"icon"`
}

var extensionCategories = map[string]Category{}

func init() {
	groups := map[Category][]string{
		CategoryImage: {"png", "jpg", "jpeg", "gif", "webp", "svg"},
		CategoryVideo: {"mp4", "webm", "mov", "avi", "mkv"},
		CategoryAudio: {"mp3", "wav", "ogg", "flac"},
		CategoryPDF:   {"pdf"},
		CategoryCode: {
			"py", "js", "html", "css", "json", "xml", "md", "sh", "java", "c", "cpp",
			"cs", "go", "rb", "php", "sql", "txt", "log",
		},
	}
	for category, exts := range groups {
		for _, ext := range exts {
			extensionCategories[ext] = category
		}
	}
}

// specific extensions win over the category icon
var extensionIcons = map[string]string{
	"zip":  "fa-file-archive",
	"rar":  "fa-file-archive",
	"7z":   "fa-file-archive",
	"doc":  "fa-file-word",
	"docx": "fa-file-word",
	"xls":  "fa-file-excel",
	"xlsx": "fa-file-excel",
	"ppt":  "fa-file-powerpoint",
	"pptx": "fa-file-powerpoint",
}

var categoryIcons = map[Category]string{
	CategoryImage: "fa-file-image",
	CategoryVideo: "fa-file-video",
	CategoryAudio: "fa-file-audio",
	CategoryPDF:   "fa-file-pdf",
	CategoryCode:  "fa-file-code",
}

// Extension returns the lowercased text after the last dot, or "".
func Extension(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// Classify maps a file name to its preview category.
func Classify(name string) Category {
	if category, ok := extensionCategories[Extension(name)]; ok {
		return category
	}
	return CategoryOther
}

// IconFor picks the icon hint for a file name.
func IconFor(name string) string {
	ext := Extension(name)
	if icon, ok := extensionIcons[ext]; ok {
		return icon
	}
	if icon, ok := categoryIcons[Classify(name)]; ok {
		return icon
	}
	return defaultIcon
}

// List returns one FileEntry per regular file directly inside dir. Order is
// whatever the directory read produced; sorting belongs to the client. A
// missing directory is an empty listing, not an error.
func List(dir string) []FileEntry {
	files := scan(dir)
	entries := make([]FileEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, FileEntry{
			Name:          f.name,
			Size:          f.size,
			SizeFormatted: FormatSize(f.size),
			ModifiedAt:    f.modTime,
			Date:          Epoch(f.modTime),
			DateFormatted: f.modTime.Local().Format("2006-01-02 15:04"),
			Category:      Classify(f.name),
			Icon:          IconFor(f.name),
		})
	}
	return entries
}

// Summarize returns the count and total byte size of a listing.
func Summarize(entries []FileEntry) (count int, totalSize int64) {
	for _, e := range entries {
		totalSize += e.Size
	}
	return len(entries), totalSize
}

// FormatSize renders a byte count for humans ("0 B", "1.5 KiB").
func FormatSize(size int64) string {
	if size <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(size))
}

type scannedFile struct {
	name    string
	size    int64
	modTime time.Time
}

// scan stats the visible regular files in dir. Dot-files are skipped so that
// in-flight uploads (written under a dot-prefixed temp name) never show up.
func scan(dir string) []scannedFile {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	files := make([]scannedFile, 0, len(dirEntries))
	for _, entry := range dirEntries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || !info.Mode().IsRegular() {
			// vanished between ReadDir and Stat, or not a plain file
			continue
		}
		files = append(files, scannedFile{name: name, size: info.Size(), modTime: info.ModTime()})
	}
	return files
}
