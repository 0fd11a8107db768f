package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/evapo/evapo/internal/log"
	"github.com/evapo/evapo/internal/session"
)

type sessionHandler struct {
	store  *session.Store
	logger log.Logger
}

type sessionResponse struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	TurnCount    int       `json:"turnCount"`
}

type turnResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"toolName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type historyResponse struct {
	Session sessionResponse `json:"session"`
	Turns   []turnResponse  `json:"turns"`
}

func toSessionResponse(s session.Session) sessionResponse {
	return sessionResponse{
		ID:           s.ID.String(),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		TurnCount:    s.TurnCount,
	}
}

// create handles POST /api/sessions.
func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	s := h.store.Create()
	h.logger.Info("session created", "session_id", s.ID)
	writeJSON(w, h.logger, http.StatusCreated, toSessionResponse(s))
}

// get handles GET /api/sessions/{id}, returning the session with its
// full turn history.
func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	s, err := h.store.Get(id)
	if err != nil {
		h.notFound(w, err)
		return
	}
	turns, err := h.store.History(id)
	if err != nil {
		h.notFound(w, err)
		return
	}

	resp := historyResponse{
		Session: toSessionResponse(s),
		Turns:   make([]turnResponse, 0, len(turns)),
	}
	for _, t := range turns {
		tr := turnResponse{
			Role:      string(t.Role),
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
		}
		if t.ToolCall != nil {
			tr.ToolName = t.ToolCall.Name
		}
		resp.Turns = append(resp.Turns, tr)
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// clear handles DELETE /api/sessions/{id}/turns, removing all turns
// while keeping the session itself usable.
func (h *sessionHandler) clear(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.store.Clear(id); err != nil {
		h.notFound(w, err)
		return
	}
	h.logger.Info("session cleared", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// remove handles DELETE /api/sessions/{id}.
func (h *sessionHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(id); err != nil {
		h.notFound(w, err)
		return
	}
	h.logger.Info("session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "session id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *sessionHandler) notFound(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "session_not_found", "session not found")
		return
	}
	writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
}
