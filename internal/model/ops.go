package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrTagNotFound      = errors.New("tag not found")
	ErrLinkNotFound     = errors.New("context link not found")

	// ErrNotAllowed is returned when the event's state forbids the change.
	ErrNotAllowed = errors.New("not allowed")
)

// The methods below are the pure domain transformations applied inside a
// read-modify-write cycle. Each one either mutates the event and refreshes
// LastEdit, or returns an error and leaves the event untouched.

func (e *Event) touch(now time.Time) {
	e.LastEdit = now.UTC()
}

func (e *Event) checkWritable(now time.Time) error {
	if e.IsDeleted() {
		return fmt.Errorf("%w: event was deleted", ErrNotAllowed)
	}
	if e.TimedOut(now) {
		return fmt.Errorf("%w: event timed out", ErrNotAllowed)
	}
	return nil
}

func (e *Event) question(id int) (*Question, error) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrQuestionNotFound, id)
}

func (e *Event) hasTag(id int) bool {
	for _, t := range e.Tags {
		if t.ID == id {
			return true
		}
	}
	return false
}

func (e *Event) nextQuestionID() int {
	next := 1
	for _, q := range e.Questions {
		if q.ID >= next {
			next = q.ID + 1
		}
	}
	return next
}

func (e *Event) nextTagID() int {
	next := 1
	for _, t := range e.Tags {
		if t.ID >= next {
			next = t.ID + 1
		}
	}
	return next
}

// Question returns a copy of the question with the given id.
func (e *Event) Question(id int) (Question, error) {
	q, err := e.question(id)
	if err != nil {
		return Question{}, err
	}
	return *q, nil
}

// AddQuestion appends a new question and returns it.
func (e *Event) AddQuestion(text string, tag *int, now time.Time) (Question, error) {
	if err := e.checkWritable(now); err != nil {
		return Question{}, err
	}
	if !e.State.AcceptsQuestions() {
		return Question{}, fmt.Errorf("%w: event is %s", ErrNotAllowed, e.State)
	}
	if err := ValidateQuestionText(text); err != nil {
		return Question{}, err
	}
	if tag != nil && !e.hasTag(*tag) {
		return Question{}, fmt.Errorf("%w: %d", ErrTagNotFound, *tag)
	}
	q := Question{
		ID:        e.nextQuestionID(),
		Text:      strings.TrimSpace(text),
		CreatedAt: now.UTC(),
		Tag:       copyInt(tag),
	}
	e.Questions = append(e.Questions, q)
	e.touch(now)
	return q, nil
}

// EditQuestion replaces the text of a question.
func (e *Event) EditQuestion(id int, text string, now time.Time) error {
	if err := e.checkWritable(now); err != nil {
		return err
	}
	if err := ValidateQuestionText(text); err != nil {
		return err
	}
	q, err := e.question(id)
	if err != nil {
		return err
	}
	q.Text = strings.TrimSpace(text)
	e.touch(now)
	return nil
}

// LikeQuestion adds one like to a question.
func (e *Event) LikeQuestion(id int, now time.Time) error {
	if err := e.checkWritable(now); err != nil {
		return err
	}
	if !e.State.AcceptsLikes() {
		return fmt.Errorf("%w: voting is closed", ErrNotAllowed)
	}
	q, err := e.question(id)
	if err != nil {
		return err
	}
	q.Likes++
	e.touch(now)
	return nil
}

// UnlikeQuestion removes one like from a question. Likes never drop below zero.
func (e *Event) UnlikeQuestion(id int, now time.Time) error {
	if err := e.checkWritable(now); err != nil {
		return err
	}
	if !e.State.AcceptsLikes() {
		return fmt.Errorf("%w: voting is closed", ErrNotAllowed)
	}
	q, err := e.question(id)
	if err != nil {
		return err
	}
	if q.Likes > 0 {
		q.Likes--
	}
	e.touch(now)
	return nil
}

// SetQuestionFlags applies a partial moderation flag update.
func (e *Event) SetQuestionFlags(id int, flags QuestionFlags, now time.Time) error {
	if err := e.checkWritable(now); err != nil {
		return err
	}
	q, err := e.question(id)
	if err != nil {
		return err
	}
	if flags.Hidden != nil {
		q.Hidden = *flags.Hidden
	}
	if flags.Answered != nil {
		q.Answered = *flags.Answered
	}
	if flags.Screening != nil {
		q.Screening = *flags.Screening
	}
	e.touch(now)
	return nil
}

// SetQuestionTag assigns a catalog tag to a question; nil clears it.
func (e *Event) SetQuestionTag(id int, tag *int, now time.Time) error {
	if err := e.checkWritable(now); err != nil {
		return err
	}
	if tag != nil && !e.hasTag(*tag) {
		return fmt.Errorf("%w: %d", ErrTagNotFound, *tag)
	}
	q, err := e.question(id)
	if err != nil {
		return err
	}
	q.Tag = copyInt(tag)
	e.touch(now)
	return nil
}

// DeleteQuestion removes a question from the list, preserving the order of
// the remaining questions. Its id is never reused while higher ids exist.
func (e *Event) DeleteQuestion(id int, now time.Time) error {
	if err := e.checkWritable(now); err != nil {
		return err
	}
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			e.Questions = append(e.Questions[:i], e.Questions[i+1:]...)
			e.touch(now)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrQuestionNotFound, id)
}

// SetState moves the event to a new moderator-chosen state.
func (e *Event) SetState(s State, now time.Time) error {
	if err := e.checkWritable(now); err != nil {
		return err
	}
	if !s.IsValid() {
		var ve ValidationError
		ve.add("state", fmt.Sprintf("invalid value %q", s))
		return &ve
	}
	e.State = s
	e.touch(now)
	return nil
}

// EditInfo replaces the event metadata.
func (e *Event) EditInfo(info Info, now time.Time) error {
	if err := e.checkWritable(now); err != nil {
		return err
	}
	if err := ValidateInfo(info); err != nil {
		return err
	}
	info.Name = strings.TrimSpace(info.Name)
	e.Info = info
	e.touch(now)
	return nil
}

// SetPassword sets or, with nil, clears the viewer password.
func (e *Event) SetPassword(pw *string, now time.Time) error {
	if err := e.checkWritable(now); err != nil {
		return err
	}
	if pw != nil && *pw == "" {
		pw = nil
	}
	if pw != nil {
		p := *pw
		pw = &p
	}
	e.Password = pw
	e.touch(now)
	return nil
}

// AddTag appends a tag to the catalog. Names are unique, case-insensitively.
func (e *Event) AddTag(name string, now time.Time) (Tag, error) {
	if err := e.checkWritable(now); err != nil {
		return Tag{}, err
	}
	if err := ValidateTagName(name); err != nil {
		return Tag{}, err
	}
	name = strings.TrimSpace(name)
	for _, t := range e.Tags {
		if strings.EqualFold(t.Name, name) {
			var ve ValidationError
			ve.add("name", fmt.Sprintf("tag %q already exists", name))
			return Tag{}, &ve
		}
	}
	if len(e.Tags) >= MaxTags {
		return Tag{}, fmt.Errorf("%w: at most %d tags", ErrNotAllowed, MaxTags)
	}
	t := Tag{ID: e.nextTagID(), Name: name}
	e.Tags = append(e.Tags, t)
	e.touch(now)
	return t, nil
}

// RemoveTag drops a tag from the catalog and clears it from every question.
func (e *Event) RemoveTag(id int, now time.Time) error {
	if err := e.checkWritable(now); err != nil {
		return err
	}
	idx := -1
	for i, t := range e.Tags {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrTagNotFound, id)
	}
	e.Tags = append(e.Tags[:idx], e.Tags[idx+1:]...)
	for i := range e.Questions {
		if e.Questions[i].Tag != nil && *e.Questions[i].Tag == id {
			e.Questions[i].Tag = nil
		}
	}
	e.touch(now)
	return nil
}

// AddContextLink appends a link.
func (e *Event) AddContextLink(l ContextLink, now time.Time) error {
	if err := e.checkWritable(now); err != nil {
		return err
	}
	if err := ValidateContextLink(l); err != nil {
		return err
	}
	if len(e.ContextLinks) >= MaxContextLinks {
		return fmt.Errorf("%w: at most %d context links", ErrNotAllowed, MaxContextLinks)
	}
	e.ContextLinks = append(e.ContextLinks, l)
	e.touch(now)
	return nil
}

// RemoveContextLink drops the link at the given position.
func (e *Event) RemoveContextLink(index int, now time.Time) error {
	if err := e.checkWritable(now); err != nil {
		return err
	}
	if index < 0 || index >= len(e.ContextLinks) {
		return fmt.Errorf("%w: index %d", ErrLinkNotFound, index)
	}
	e.ContextLinks = append(e.ContextLinks[:index], e.ContextLinks[index+1:]...)
	e.touch(now)
	return nil
}

// Delete soft-deletes the event. Deleting twice keeps the first timestamp.
func (e *Event) Delete(now time.Time) {
	if e.IsDeleted() {
		return
	}
	t := now.UTC()
	e.DeletedAt = &t
	e.touch(now)
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
