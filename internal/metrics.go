package internal

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics holds process-wide counters. A nil *Metrics is valid and counts
// nothing.
type Metrics struct {
	activeConns      atomic.Int64
	messages         atomic.Uint64
	dropped          atomic.Uint64
	noteEdits        atomic.Uint64
	savedNoteChanges atomic.Uint64
	uploads          atomic.Uint64
	deletions        atomic.Uint64
	persistFailures  atomic.Uint64
	fsEvents         atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncConn() {
	if m != nil {
		m.activeConns.Add(1)
	}
}

func (m *Metrics) DecConn() {
	if m != nil {
		m.activeConns.Add(-1)
	}
}

func (m *Metrics) ActiveConnections() int64 {
	if m == nil {
		return 0
	}
	return m.activeConns.Load()
}

func (m *Metrics) IncMessage() {
	if m != nil {
		m.messages.Add(1)
	}
}

func (m *Metrics) IncDropped() {
	if m != nil {
		m.dropped.Add(1)
	}
}

func (m *Metrics) IncNoteEdit() {
	if m != nil {
		m.noteEdits.Add(1)
	}
}

func (m *Metrics) IncSavedNoteChange() {
	if m != nil {
		m.savedNoteChanges.Add(1)
	}
}

func (m *Metrics) IncUpload(n int) {
	if m != nil && n > 0 {
		m.uploads.Add(uint64(n))
	}
}

func (m *Metrics) IncDeletion() {
	if m != nil {
		m.deletions.Add(1)
	}
}

func (m *Metrics) IncPersistFailure() {
	if m != nil {
		m.persistFailures.Add(1)
	}
}

func (m *Metrics) IncFSEvent() {
	if m != nil {
		m.fsEvents.Add(1)
	}
}

func (m *Metrics) snapshot() map[string]any {
	return map[string]any{
		"active_connections":  m.activeConns.Load(),
		"chat_messages_total": m.messages.Load(),
		"chat_dropped_total":  m.dropped.Load(),
		"note_edits_total":    m.noteEdits.Load(),
		"saved_note_changes":  m.savedNoteChanges.Load(),
		"uploads_total":       m.uploads.Load(),
		"deletions_total":     m.deletions.Load(),
		"persist_failures":    m.persistFailures.Load(),
		"filesystem_events":   m.fsEvents.Load(),
	}
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.snapshot())
}
