package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/alfredjeanlab/liveqa/internal/model"
)

// handleAddQuestion handles POST /v1/events/{token}/questions.
func (s *QAServer) handleAddQuestion(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
		Tag  *int   `json:"tag"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	q, err := s.AddQuestion(r.Context(), r.PathValue("token"), in.Text, in.Tag)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// updateQuestionInput is the body of PATCH .../questions/{id}. A present
// "tag": null clears the tag; an absent tag leaves it alone.
type updateQuestionInput struct {
	Text      *string         `json:"text"`
	Hidden    *bool           `json:"hidden"`
	Answered  *bool           `json:"answered"`
	Screening *bool           `json:"screening"`
	Tag       json.RawMessage `json:"tag"`
}

func (in updateQuestionInput) patch() (QuestionPatch, error) {
	p := QuestionPatch{
		Text: in.Text,
		Flags: model.QuestionFlags{
			Hidden:    in.Hidden,
			Answered:  in.Answered,
			Screening: in.Screening,
		},
	}
	if len(in.Tag) > 0 {
		p.SetTag = true
		if !bytes.Equal(in.Tag, []byte("null")) {
			var tag int
			if err := json.Unmarshal(in.Tag, &tag); err != nil {
				return QuestionPatch{}, inputError("tag must be an integer or null")
			}
			p.Tag = &tag
		}
	}
	return p, nil
}

// handleUpdateQuestion handles PATCH /v1/events/{token}/questions/{id}.
func (s *QAServer) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var in updateQuestionInput
	if !decodeBody(w, r, &in) {
		return
	}
	patch, err := in.patch()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	q, err := s.UpdateQuestion(r.Context(), r.PathValue("token"), id, patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleDeleteQuestion handles DELETE /v1/events/{token}/questions/{id}.
func (s *QAServer) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if err := s.DeleteQuestion(r.Context(), r.PathValue("token"), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLikeQuestion handles POST /v1/events/{token}/questions/{id}/like.
func (s *QAServer) handleLikeQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	q, err := s.LikeQuestion(r.Context(), r.PathValue("token"), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleUnlikeQuestion handles DELETE /v1/events/{token}/questions/{id}/like.
func (s *QAServer) handleUnlikeQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	q, err := s.UnlikeQuestion(r.Context(), r.PathValue("token"), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
