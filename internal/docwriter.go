package internal

import (
	"context"
	"log/slog"
	"sync"

	"dropflow/internal/storage"
)

type docJob struct {
	version uint64
	body    []byte
}

// docWriter mirrors in-memory documents to a DocumentStore. Every write
// carries a version; a version at or below the last one written for that
// key is skipped, so async and sync writers can interleave without an old
// snapshot landing on top of a newer one.
type docWriter struct {
	store   storage.DocumentStore
	metrics *Metrics
	logger  *slog.Logger

	writeMutex sync.Mutex
	written    map[string]uint64

	pendingMutex sync.Mutex
	pending      map[string]docJob

	// serializes Flush so a caller returns only after in-flight jobs land
	flushMutex sync.Mutex

	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newDocWriter(store storage.DocumentStore, metrics *Metrics, logger *slog.Logger) *docWriter {
	w := &docWriter{
		store:   store,
		metrics: metrics,
		logger:  logger,
		written: make(map[string]uint64),
		pending: make(map[string]docJob),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

// Write stores body synchronously unless a newer version already landed.
func (w *docWriter) Write(ctx context.Context, key string, version uint64, body []byte) error {
	w.writeMutex.Lock()
	defer w.writeMutex.Unlock()
	if version <= w.written[key] {
		return nil
	}
	if err := w.store.Save(ctx, key, body); err != nil {
		w.metrics.IncPersistFailure()
		return err
	}
	w.written[key] = version
	return nil
}

// Enqueue schedules a background write and returns immediately. Pending
// writes for the same key coalesce to the newest version.
func (w *docWriter) Enqueue(key string, version uint64, body []byte) {
	w.pendingMutex.Lock()
	if current, ok := w.pending[key]; !ok || current.version < version {
		w.pending[key] = docJob{version: version, body: body}
	}
	w.pendingMutex.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Flush writes everything pending before returning.
func (w *docWriter) Flush() {
	w.flushMutex.Lock()
	defer w.flushMutex.Unlock()
	w.pendingMutex.Lock()
	jobs := w.pending
	w.pending = make(map[string]docJob)
	w.pendingMutex.Unlock()

	for key, job := range jobs {
		if err := w.Write(context.Background(), key, job.version, job.body); err != nil {
			w.logger.Error("persist document", "key", key, "version", job.version, "error", err)
		}
	}
}

// Close drains pending writes and stops the background goroutine.
func (w *docWriter) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	<-w.stopped
}

func (w *docWriter) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.wake:
			w.Flush()
		case <-w.done:
			w.Flush()
			return
		}
	}
}
