// Package client provides a transport-agnostic interface for the liveqa
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"

	"github.com/alfredjeanlab/liveqa/internal/model"
)

// QAClient is the interface the CLI commands use to talk to a liveqa server.
type QAClient interface {
	// Events
	CreateEvent(ctx context.Context, info model.Info) (*model.Event, error)
	GetEvent(ctx context.Context, token string) (*model.Event, error)
	EditEvent(ctx context.Context, token string, req *EditEventRequest) (*model.Event, error)
	SetState(ctx context.Context, token string, state model.State) (*model.Event, error)
	DeleteEvent(ctx context.Context, token string) error
	SetPassword(ctx context.Context, token string, password *string) error

	// Tags and links
	AddTag(ctx context.Context, token, name string) (*model.Tag, error)
	RemoveTag(ctx context.Context, token string, id int) error
	AddContextLink(ctx context.Context, token string, link model.ContextLink) error
	RemoveContextLink(ctx context.Context, token string, index int) error

	// Questions
	AddQuestion(ctx context.Context, token, text string, tag *int) (*model.Question, error)
	UpdateQuestion(ctx context.Context, token string, id int, req *UpdateQuestionRequest) (*model.Question, error)
	LikeQuestion(ctx context.Context, token string, id int) (*model.Question, error)
	UnlikeQuestion(ctx context.Context, token string, id int) (*model.Question, error)
	DeleteQuestion(ctx context.Context, token string, id int) error

	// Live
	ViewerCount(ctx context.Context, token string) (int64, error)
	Watch(ctx context.Context, token string, fn func(Notification)) error

	// Health
	Health(ctx context.Context) (*HealthResponse, error)

	// Lifecycle
	Close() error
}

// EditEventRequest is a partial update of event metadata.
type EditEventRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
}

// UpdateQuestionRequest is a partial update of a question. ClearTag sends an
// explicit null tag.
type UpdateQuestionRequest struct {
	Text      *string
	Hidden    *bool
	Answered  *bool
	Screening *bool
	Tag       *int
	ClearTag  bool
}

func (r *UpdateQuestionRequest) body() map[string]any {
	m := make(map[string]any)
	if r.Text != nil {
		m["text"] = *r.Text
	}
	if r.Hidden != nil {
		m["hidden"] = *r.Hidden
	}
	if r.Answered != nil {
		m["answered"] = *r.Answered
	}
	if r.Screening != nil {
		m["screening"] = *r.Screening
	}
	switch {
	case r.ClearTag:
		m["tag"] = nil
	case r.Tag != nil:
		m["tag"] = *r.Tag
	}
	return m
}

// Notification is one change hint pushed over a watch connection.
type Notification struct {
	ID      uint64 `json:"id"`
	Event   string `json:"event"`
	Payload string `json:"payload"`
}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status string `json:"status"`
	Fanout string `json:"fanout"`
}
