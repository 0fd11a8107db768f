package api

import "net/http"

// health reports process liveness.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// ready reports whether the server can take traffic. Retrieval being
// unavailable does not make the server unready; the agent degrades to
// answering without documentation context.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.index != nil {
		resp["indexLoaded"] = s.index.Snapshot() != nil
	}
	writeJSON(w, s.logger, http.StatusOK, resp)
}
