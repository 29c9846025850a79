package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
}

func TestClassifyAndIcon(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		icon     string
	}{
		{"photo.JPG", CategoryImage, "fa-file-image"},
		{"clip.mkv", CategoryVideo, "fa-file-video"},
		{"song.flac", CategoryAudio, "fa-file-audio"},
		{"paper.pdf", CategoryPDF, "fa-file-pdf"},
		{"main.go", CategoryCode, "fa-file-code"},
		{"server.log", CategoryCode, "fa-file-code"},
		{"readme.txt", CategoryCode, "fa-file-code"},
		{"backup.zip", CategoryOther, "fa-file-archive"},
		{"report.docx", CategoryOther, "fa-file-word"},
		{"sheet.xlsx", CategoryOther, "fa-file-excel"},
		{"deck.ppt", CategoryOther, "fa-file-powerpoint"},
		{"Makefile", CategoryOther, "fa-file"},
		{"archive.tar.gz", CategoryOther, "fa-file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, Classify(tt.name))
			assert.Equal(t, tt.icon, IconFor(tt.name))
		})
	}
}

func TestListMissingDirectoryIsEmpty(t *testing.T) {
	entries := List(filepath.Join(t.TempDir(), "nope"))
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
	assert.Equal(t, Fingerprint{}, TakeFingerprint(filepath.Join(t.TempDir(), "nope")))
}

func TestListReflectsDirectory(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	writeFile(t, dir, "a.png", "12345", mtime)
	writeFile(t, dir, "notes.md", "# hi", mtime)
	writeFile(t, dir, ".upload-123", "partial", mtime)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	entries := List(dir)
	require.Len(t, entries, 2)

	byName := map[string]FileEntry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	png := byName["a.png"]
	assert.Equal(t, int64(5), png.Size)
	assert.Equal(t, "5 B", png.SizeFormatted)
	assert.Equal(t, CategoryImage, png.Category)
	assert.Equal(t, float64(mtime.Unix()), png.Date)
	assert.True(t, png.ModifiedAt.Equal(mtime))

	count, total := Summarize(entries)
	assert.Equal(t, 2, count)
	assert.Equal(t, int64(9), total)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.png")))
	assert.Len(t, List(dir), 1, "listing must not be cached")
}

func TestFingerprintAdvancesOnUpload(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeFile(t, dir, "one.txt", "1", base)

	before := TakeFingerprint(dir)
	require.Equal(t, 1, before.Count)

	writeFile(t, dir, "two.txt", "2", time.Time{})
	after := TakeFingerprint(dir)

	assert.Equal(t, before.Count+1, after.Count)
	assert.False(t, after.LatestModified.Before(before.LatestModified))
	assert.True(t, after.Changed(before))
	assert.False(t, after.Changed(after))
}

func TestFingerprintCountCatchesDeleteOfNewest(t *testing.T) {
	dir := t.TempDir()
	older := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Minute)
	writeFile(t, dir, "old.txt", "x", older)
	writeFile(t, dir, "new.txt", "y", newer)
	before := TakeFingerprint(dir)

	require.NoError(t, os.Remove(filepath.Join(dir, "new.txt")))
	after := TakeFingerprint(dir)

	// A timestamp-only poller never sees the newest mtime go backwards.
	assert.False(t, after.LatestModified.After(before.LatestModified))
	assert.True(t, after.Changed(before))
}

func TestFingerprintDeleteThenCreateSameSecond(t *testing.T) {
	dir := t.TempDir()
	tick := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	writeFile(t, dir, "a.txt", "aaa", tick)
	writeFile(t, dir, "keep.txt", "k", tick)
	before := TakeFingerprint(dir)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))
	writeFile(t, dir, "b.txt", "bbbb", tick)
	after := TakeFingerprint(dir)

	assert.Equal(t, before.Count, after.Count)
	assert.True(t, after.LatestModified.Equal(before.LatestModified))
	naive := after.LatestModified.After(before.LatestModified)
	assert.False(t, naive, "timestamp-only comparison misses the swap")

	assert.True(t, after.Changed(before), "digest must expose the swap")

	// Same picture from the full catalog comparison a poller falls back to.
	assert.NotEqual(t, names(List(dir)), []string{"a.txt", "keep.txt"})
}

func TestEpochRoundTrip(t *testing.T) {
	assert.Equal(t, float64(0), Epoch(time.Time{}))
	assert.True(t, FromEpoch(0).IsZero())
	ts := time.Date(2024, 3, 4, 5, 6, 7, 500_000_000, time.UTC)
	assert.InDelta(t, float64(ts.Unix())+0.5, Epoch(ts), 1e-6)
	assert.WithinDuration(t, ts, FromEpoch(Epoch(ts)), time.Microsecond)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "1.5 KiB", FormatSize(1536))
}

func names(entries []FileEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}
