package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/liveqa/internal/codec"
	"github.com/alfredjeanlab/liveqa/internal/model"
	"github.com/alfredjeanlab/liveqa/internal/store"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
func (s *QAServer) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", s.handleCreateEvent)
	mux.HandleFunc("GET /v1/events/{token}", s.handleGetEvent)
	mux.HandleFunc("PATCH /v1/events/{token}", s.handleEditEvent)
	mux.HandleFunc("DELETE /v1/events/{token}", s.handleDeleteEvent)
	mux.HandleFunc("PUT /v1/events/{token}/state", s.handleSetState)
	mux.HandleFunc("PUT /v1/events/{token}/password", s.handleSetPassword)
	mux.HandleFunc("POST /v1/events/{token}/tags", s.handleAddTag)
	mux.HandleFunc("DELETE /v1/events/{token}/tags/{id}", s.handleRemoveTag)
	mux.HandleFunc("POST /v1/events/{token}/links", s.handleAddContextLink)
	mux.HandleFunc("DELETE /v1/events/{token}/links/{index}", s.handleRemoveContextLink)
	mux.HandleFunc("POST /v1/events/{token}/questions", s.handleAddQuestion)
	mux.HandleFunc("PATCH /v1/events/{token}/questions/{id}", s.handleUpdateQuestion)
	mux.HandleFunc("DELETE /v1/events/{token}/questions/{id}", s.handleDeleteQuestion)
	mux.HandleFunc("POST /v1/events/{token}/questions/{id}/like", s.handleLikeQuestion)
	mux.HandleFunc("DELETE /v1/events/{token}/questions/{id}/like", s.handleUnlikeQuestion)
	mux.HandleFunc("GET /v1/events/{token}/viewers", s.handleViewerCount)
	mux.HandleFunc("GET /v1/events/{token}/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/events/{token}/ws", s.handleWebSocket)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return mux
}

// handleHealth handles GET /v1/health.
func (s *QAServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	fanout := "connected"
	if !s.FanoutServing() {
		fanout = "disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "fanout": fanout})
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	var (
		ie inputError
		ve *model.ValidationError
		me *codec.MalformedObjectError
		ue *codec.UnsupportedFormatError
	)
	switch {
	case errors.As(err, &ie), errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, model.ErrQuestionNotFound),
		errors.Is(err, model.ErrTagNotFound),
		errors.Is(err, model.ErrLinkNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConcurrency):
		return http.StatusConflict
	case errors.Is(err, model.ErrNotAllowed):
		return http.StatusForbidden
	case errors.As(err, &me), errors.As(err, &ue), errors.Is(err, codec.ErrMalformed):
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}

// writeServiceError maps err to a status and writes it. Server-side failures
// are logged and reported without detail.
func (s *QAServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		s.logger.Error("unreadable record", "path", r.URL.Path, "err", err)
		writeError(w, status, "stored event is unreadable")
	case http.StatusServiceUnavailable:
		s.logger.Error("store unavailable", "path", r.URL.Path, "err", err)
		writeError(w, status, "store unavailable, please try again")
	case http.StatusConflict:
		writeError(w, status, "event changed concurrently, please try again")
	default:
		writeError(w, status, err.Error())
	}
}

// decodeBody decodes the JSON request body into v, writing 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// pathInt parses the named path segment as an integer, writing 400 on failure.
func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

