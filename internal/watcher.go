package internal

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher reports changes in the upload directory to the operator log
// and the metrics counters. Clients still learn about file changes only by
// polling /api/files/check.
type DirWatcher struct {
	dir     string
	fsw     *fsnotify.Watcher
	metrics *Metrics
	logger  *slog.Logger

	// OnEvent, when set before Start, is called for every visible event.
	OnEvent func(name string, op fsnotify.Op)

	started  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewDirWatcher(dir string, metrics *Metrics, logger *slog.Logger) (*DirWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &DirWatcher{
		dir:     dir,
		fsw:     fsw,
		metrics: metrics,
		logger:  logger,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Start watches the directory itself; subdirectories are not catalogued and
// not watched.
func (w *DirWatcher) Start() error {
	if err := w.fsw.Add(w.dir); err != nil {
		return err
	}
	w.started.Store(true)
	go w.loop()
	return nil
}

func (w *DirWatcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		err = w.fsw.Close()
	})
	if w.started.Load() {
		<-w.stopped
	}
	return err
}

func (w *DirWatcher) loop() {
	defer close(w.stopped)
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			// temp uploads and other hidden files
			if strings.HasPrefix(name, ".") || event.Op == fsnotify.Chmod {
				continue
			}
			w.metrics.IncFSEvent()
			w.logger.Debug("upload dir changed", "file", name, "op", event.Op.String())
			if w.OnEvent != nil {
				w.OnEvent(name, event.Op)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}
