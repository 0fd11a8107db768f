package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/evapo/evapo/internal/index"
	"github.com/evapo/evapo/internal/log"
)

type indexHandler struct {
	manager *index.Manager
	logger  log.Logger
}

type reloadResponse struct {
	Chunks int `json:"chunks"`
}

// reload handles POST /api/index/reload, swapping in the snapshot file
// currently on disk. Live queries keep serving the old snapshot until
// the swap completes.
func (h *indexHandler) reload(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		writeError(w, h.logger, http.StatusConflict, "retrieval_disabled", "retrieval is not enabled on this server")
		return
	}

	if err := h.manager.Reload(); err != nil {
		h.logger.Error("index reload failed", "error", err)
		switch {
		case errors.Is(err, os.ErrNotExist):
			writeError(w, h.logger, http.StatusNotFound, "index_not_found", "no index snapshot found on disk")
		case errors.Is(err, index.ErrModelMismatch):
			writeError(w, h.logger, http.StatusConflict, "model_mismatch", "index snapshot was built with a different embedding model")
		default:
			writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "index reload failed")
		}
		return
	}

	snap := h.manager.Snapshot()
	resp := reloadResponse{}
	if snap != nil {
		resp.Chunks = snap.Len()
	}
	h.logger.Info("index reloaded", "chunks", resp.Chunks)
	writeJSON(w, h.logger, http.StatusOK, resp)
}
