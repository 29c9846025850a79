package internal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"dropflow/internal/logging"
	"dropflow/internal/storage"
)

type fakeSession struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	refuse bool
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id}
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Deliver(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSession) envelopes(t *testing.T) []Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, 0, len(f.frames))
	for _, frame := range f.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	return out
}

func (f *fakeSession) names(t *testing.T) []string {
	t.Helper()
	envs := f.envelopes(t)
	names := make([]string, 0, len(envs))
	for _, env := range envs {
		names = append(names, env.Event)
	}
	return names
}

// last decodes the data of the newest frame named event into out.
func (f *fakeSession) last(t *testing.T, event string, out any) {
	t.Helper()
	envs := f.envelopes(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Event == event {
			require.NoError(t, json.Unmarshal(envs[i].Data, out))
			return
		}
	}
	t.Fatalf("no %s frame among %d frames", event, len(envs))
}

func (f *fakeSession) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeSession) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

// memStore is an in-memory DocumentStore that can be told to fail.
type memStore struct {
	mu    sync.Mutex
	docs  map[string][]byte
	saves int
	fail  bool
}

var errStoreDown = errors.New("store down")

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (m *memStore) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[key], nil
}

func (m *memStore) Save(_ context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStoreDown
	}
	m.saves++
	m.docs[key] = append([]byte(nil), body...)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) setFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memStore) doc(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[key]
}

var _ storage.DocumentStore = (*memStore)(nil)

func newTestServer(t *testing.T, store storage.DocumentStore) *Server {
	t.Helper()
	if store == nil {
		fs, err := storage.NewFileStore(t.TempDir())
		require.NoError(t, err)
		store = fs
	}
	srv, err := NewServer(context.Background(), ServerOptions{
		UploadDir: t.TempDir(),
		Store:     store,
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

// testContext mirrors testing.T.Context (Go 1.24+): a context canceled
// when the test's cleanup runs.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
