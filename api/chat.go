package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/evapo/evapo/internal/agent"
	"github.com/evapo/evapo/internal/log"
)

// maxRequestBody caps chat request bodies at 1 MiB.
const maxRequestBody = 1 << 20

type chatHandler struct {
	flow       *agent.Flow
	logger     log.Logger
	trustProxy bool
}

type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"sessionId"`
}

func (h *chatHandler) decode(w http.ResponseWriter, r *http.Request) (agent.Input, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return agent.Input{}, false
	}
	if req.Query == "" {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "query must not be empty")
		return agent.Input{}, false
	}
	if req.SessionID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "sessionId must not be empty")
		return agent.Input{}, false
	}

	return agent.Input{
		Query:     req.Query,
		SessionID: req.SessionID,
		SourceIP:  clientIP(r, h.trustProxy),
	}, true
}

// send handles POST /api/chat, returning the complete reply in one
// JSON response.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decode(w, r)
	if !ok {
		return
	}

	out, err := h.flow.Run(r.Context(), input)
	if err != nil {
		status, code, message := mapAgentError(err)
		h.logger.Error("chat request failed", "error", err, "session_id", input.SessionID)
		writeError(w, h.logger, status, code, message)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, chatResponse{
		Reply:     out.Response,
		SessionID: out.SessionID,
	})
}

// stream handles POST /api/chat/stream as Server-Sent Events. Each model
// chunk becomes a "chunk" event; the terminal event is "done" or "error".
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decode(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for streamValue, err := range h.flow.Stream(ctx, input) {
		select {
		case <-ctx.Done():
			h.logger.Debug("client disconnected during stream", "session_id", input.SessionID)
			return
		default:
		}

		if err != nil {
			h.logger.Error("chat stream failed", "error", err, "session_id", input.SessionID)
			_, code, message := mapAgentError(err)
			writeEvent(w, flusher, h.logger, "error", streamError{Code: code, Message: message})
			return
		}
		if streamValue.Done {
			writeEvent(w, flusher, h.logger, "done", chatResponse{
				Reply:     streamValue.Output.Response,
				SessionID: streamValue.Output.SessionID,
			})
			return
		}
		writeEvent(w, flusher, h.logger, "chunk", streamChunk{Text: streamValue.Stream.Text})
	}
}

type streamChunk struct {
	Text string `json:"text"`
}

type streamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeEvent emits one SSE event with a JSON payload.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, logger log.Logger, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		logger.Error("encoding SSE event", "event", event, "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		logger.Debug("writing SSE event", "error", err)
		return
	}
	flusher.Flush()
}

// mapAgentError translates agent errors into a status code and a
// user-safe message. Internal detail never reaches the client.
func mapAgentError(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, agent.ErrInvalidSession):
		return http.StatusNotFound, "session_not_found", "session not found"
	case errors.Is(err, agent.ErrModelCall):
		return http.StatusBadGateway, "model_unavailable", "the assistant is temporarily unavailable, please try again"
	default:
		return http.StatusInternalServerError, "internal_error", "an unexpected error occurred"
	}
}
