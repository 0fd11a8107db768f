// Package session holds per-conversation turn history in memory. Turns are
// append-only and strictly ordered; the store serializes turns within one
// session while separate sessions run concurrently.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall records a tool invocation attached to a turn.
type ToolCall struct {
	Name   string `json:"name"`
	Input  any    `json:"input,omitempty"`
	Output any    `json:"output,omitempty"`
}

// Turn is one entry in a session's history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ToolCall  *ToolCall `json:"tool_call,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the metadata view of a conversation.
type Session struct {
	ID           uuid.UUID `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	TurnCount    int       `json:"turn_count"`
}

type record struct {
	turnMu       sync.Mutex // held for the duration of one turn, via Acquire
	mu           sync.Mutex // guards the fields below
	createdAt    time.Time
	lastActivity time.Time
	turns        []Turn
}

// Store is an in-memory session store keyed by session ID.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*record
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[uuid.UUID]*record),
		now:      time.Now,
	}
}

// Create registers a new session and returns its ID.
func (s *Store) Create() Session {
	id := uuid.New()
	now := s.now()

	s.mu.Lock()
	s.sessions[id] = &record{createdAt: now, lastActivity: now}
	s.mu.Unlock()

	return Session{ID: id, CreatedAt: now, LastActivity: now}
}

// Get returns session metadata.
func (s *Store) Get(id uuid.UUID) (Session, error) {
	s.mu.RLock()
	rec, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return Session{
		ID:           id,
		CreatedAt:    rec.createdAt,
		LastActivity: rec.lastActivity,
		TurnCount:    len(rec.turns),
	}, nil
}

// Append adds turns to a session in order. Timestamps are filled in when
// the caller left them zero.
func (s *Store) Append(id uuid.UUID, turns ...Turn) error {
	s.mu.RLock()
	rec, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	now := s.now()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		rec.turns = append(rec.turns, t)
	}
	rec.lastActivity = now
	return nil
}

// History returns a copy of the session's turns in append order.
func (s *Store) History(id uuid.UUID) ([]Turn, error) {
	s.mu.RLock()
	rec, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]Turn, len(rec.turns))
	copy(out, rec.turns)
	return out, nil
}

// Clear removes all turns from a session but keeps the session itself.
func (s *Store) Clear(id uuid.UUID) error {
	s.mu.RLock()
	rec, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.turns = nil
	rec.lastActivity = s.now()
	return nil
}

// Delete removes a session entirely.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// List returns metadata for every session, most recently active first.
func (s *Store) List() []Session {
	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		if sess, err := s.Get(id); err == nil {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Acquire locks the session for one turn. The returned release function
// must be called when the turn finishes. Turns within one session run
// strictly one at a time; different sessions proceed independently. Store
// reads and appends stay available while the turn lock is held.
func (s *Store) Acquire(id uuid.UUID) (release func(), err error) {
	s.mu.RLock()
	rec, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	rec.turnMu.Lock()
	return rec.turnMu.Unlock, nil
}
