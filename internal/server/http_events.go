package server

import (
	"net/http"

	"github.com/alfredjeanlab/liveqa/internal/model"
)

// handleCreateEvent handles POST /v1/events.
func (s *QAServer) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in model.Info
	if !decodeBody(w, r, &in) {
		return
	}
	ev, err := s.CreateEvent(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// handleGetEvent handles GET /v1/events/{token}.
func (s *QAServer) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.GetEvent(r.Context(), r.PathValue("token"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleEditEvent handles PATCH /v1/events/{token}.
func (s *QAServer) handleEditEvent(w http.ResponseWriter, r *http.Request) {
	var in EventPatch
	if !decodeBody(w, r, &in) {
		return
	}
	ev, err := s.EditEvent(r.Context(), r.PathValue("token"), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleDeleteEvent handles DELETE /v1/events/{token}.
func (s *QAServer) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteEvent(r.Context(), r.PathValue("token")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetState handles PUT /v1/events/{token}/state.
func (s *QAServer) handleSetState(w http.ResponseWriter, r *http.Request) {
	var in struct {
		State model.State `json:"state"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	ev, err := s.SetState(r.Context(), r.PathValue("token"), in.State)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleSetPassword handles PUT /v1/events/{token}/password.
func (s *QAServer) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password *string `json:"password"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if err := s.SetPassword(r.Context(), r.PathValue("token"), in.Password); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddTag handles POST /v1/events/{token}/tags.
func (s *QAServer) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	tag, err := s.AddTag(r.Context(), r.PathValue("token"), in.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

// handleRemoveTag handles DELETE /v1/events/{token}/tags/{id}.
func (s *QAServer) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if err := s.RemoveTag(r.Context(), r.PathValue("token"), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddContextLink handles POST /v1/events/{token}/links.
func (s *QAServer) handleAddContextLink(w http.ResponseWriter, r *http.Request) {
	var in model.ContextLink
	if !decodeBody(w, r, &in) {
		return
	}
	if err := s.AddContextLink(r.Context(), r.PathValue("token"), in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

// handleRemoveContextLink handles DELETE /v1/events/{token}/links/{index}.
func (s *QAServer) handleRemoveContextLink(w http.ResponseWriter, r *http.Request) {
	index, ok := pathInt(w, r, "index")
	if !ok {
		return
	}
	if err := s.RemoveContextLink(r.Context(), r.PathValue("token"), index); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleViewerCount handles GET /v1/events/{token}/viewers.
func (s *QAServer) handleViewerCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.ViewerCount(r.Context(), r.PathValue("token"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"viewers": n})
}
