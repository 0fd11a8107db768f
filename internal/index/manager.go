package index

import (
	"log/slog"
	"sync/atomic"
)

// Manager owns the process-wide index snapshot.
//
// The snapshot is read-mostly: every retrieval reads it, and the only writer
// is an explicit Load or Reload. The swap is a single atomic pointer store,
// so a query running during a reload sees either the old or the new index in
// full, never a half-written structure.
type Manager struct {
	path    string
	modelID string
	logger  *slog.Logger

	current atomic.Pointer[Index]
}

// NewManager creates a Manager for the snapshot at path, expecting an index
// built with modelID. No file access happens until Load.
func NewManager(path, modelID string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{path: path, modelID: modelID, logger: logger}
}

// Load reads the persisted snapshot into memory. Called once at startup;
// a model mismatch (ErrModelMismatch) must abort startup of the retrieval
// path rather than serve degraded results.
func (m *Manager) Load() error {
	idx, err := Load(m.path, m.modelID)
	if err != nil {
		return err
	}
	m.current.Store(idx)
	m.logger.Info("index loaded", "path", m.path, "model", idx.ModelID, "chunks", idx.Len())
	return nil
}

// Reload re-reads the snapshot and swaps it in atomically. The previous
// index stays valid for queries that already hold it.
func (m *Manager) Reload() error {
	return m.Load()
}

// Snapshot returns the current index, or nil when none has been loaded.
// Callers must treat nil as "retrieval unavailable" and degrade gracefully.
func (m *Manager) Snapshot() *Index {
	return m.current.Load()
}
