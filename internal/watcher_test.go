package internal

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dropflow/internal/logging"
)

func TestDirWatcherReportsVisibleFiles(t *testing.T) {
	dir := t.TempDir()
	metrics := NewMetrics()
	w, err := NewDirWatcher(dir, metrics, logging.Discard())
	require.NoError(t, err)

	var mu sync.Mutex
	seen := map[string]bool{}
	w.OnEvent = func(name string, op fsnotify.Op) {
		mu.Lock()
		defer mu.Unlock()
		seen[name] = true
	}
	require.NoError(t, w.Start())
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".upload-tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visible.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["visible.txt"]
	}, 5*time.Second, 20*time.Millisecond)
	mu.Lock()
	assert.False(t, seen[".upload-tmp"])
	mu.Unlock()
	assert.Positive(t, metrics.fsEvents.Load())
}

func TestDirWatcherCloseWithoutStart(t *testing.T) {
	w, err := NewDirWatcher(t.TempDir(), nil, logging.Discard())
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
