// Package convlog persists completed conversation turns to sqlite for the
// external admin tooling. Writes are best-effort from the orchestrator's
// point of view; a failing sink never blocks a turn.
package convlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversation_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	user_text   TEXT NOT NULL,
	reply_text  TEXT NOT NULL,
	source_ip   TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_log_session
	ON conversation_log (session_id, created_at);
`

// Entry is one completed turn.
type Entry struct {
	ID            int64     `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	SourceIP      string    `json:"source_ip,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Sink writes and reads the conversation log.
type Sink struct {
	db *sql.DB
}

// Open creates or opens the log database at path and applies the schema.
func Open(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening conversation log: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying conversation log schema: %w", err)
	}
	return &Sink{db: db}, nil
}

// Close releases the database handle.
func (s *Sink) Close() error {
	return s.db.Close()
}

// Record appends one turn. The caller's CreatedAt is kept when set.
func (s *Sink) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversation_log (session_id, user_text, reply_text, source_ip, created_at) VALUES (?, ?, ?, ?, ?)",
		e.SessionID.String(), e.UserText, e.AssistantText, e.SourceIP, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording conversation turn: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (s *Sink) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, user_text, reply_text, source_ip, created_at FROM conversation_log ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversation log: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// BySession returns a session's entries in chronological order.
func (s *Sink) BySession(ctx context.Context, id uuid.UUID) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, user_text, reply_text, source_ip, created_at FROM conversation_log WHERE session_id = ? ORDER BY created_at ASC, id ASC",
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("reading session log: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// DeleteBySession removes all entries for a session and returns the count.
func (s *Sink) DeleteBySession(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM conversation_log WHERE session_id = ?", id.String())
	if err != nil {
		return 0, fmt.Errorf("deleting session log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting session log: %w", err)
	}
	return n, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			e   Entry
			sid string
		)
		if err := rows.Scan(&e.ID, &sid, &e.UserText, &e.AssistantText, &e.SourceIP, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation log row: %w", err)
		}
		id, err := uuid.Parse(sid)
		if err != nil {
			return nil, fmt.Errorf("parsing logged session id %q: %w", sid, err)
		}
		e.SessionID = id
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading conversation log rows: %w", err)
	}
	return out, nil
}
