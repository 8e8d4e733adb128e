package model

import "time"

// Question is a single audience question inside an event.
type Question struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"created_at"`
	Hidden    bool      `json:"hidden,omitempty"`
	Answered  bool      `json:"answered,omitempty"`
	Screening bool      `json:"screening,omitempty"`
	Tag       *int      `json:"tag,omitempty"`
}

// QuestionFlags is a partial update of a question's moderation flags.
// Nil fields are left unchanged.
type QuestionFlags struct {
	Hidden    *bool `json:"hidden,omitempty"`
	Answered  *bool `json:"answered,omitempty"`
	Screening *bool `json:"screening,omitempty"`
}

// Empty reports whether the update changes nothing.
func (f QuestionFlags) Empty() bool {
	return f.Hidden == nil && f.Answered == nil && f.Screening == nil
}
