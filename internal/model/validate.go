package model

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	MaxNameLength        = 200
	MaxDescriptionLength = 2000
	MaxQuestionLength    = 1000
	MaxTagNameLength     = 40
	MaxTags              = 50
	MaxContextLinks      = 10
)

var colorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, msg string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) err() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// ValidateInfo checks event metadata for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the info is valid.
func ValidateInfo(info Info) error {
	var ve ValidationError

	name := strings.TrimSpace(info.Name)
	if name == "" {
		ve.add("name", "is required")
	} else if len([]rune(name)) > MaxNameLength {
		ve.add("name", fmt.Sprintf("must be %d characters or fewer", MaxNameLength))
	}

	if len([]rune(info.Description)) > MaxDescriptionLength {
		ve.add("description", fmt.Sprintf("must be %d characters or fewer", MaxDescriptionLength))
	}

	if info.Color != "" && !colorRe.MatchString(info.Color) {
		ve.add("color", fmt.Sprintf("invalid value %q, want #rrggbb", info.Color))
	}

	return ve.err()
}

// ValidateQuestionText checks the text of a question.
func ValidateQuestionText(text string) error {
	var ve ValidationError
	t := strings.TrimSpace(text)
	if t == "" {
		ve.add("text", "is required")
	} else if len([]rune(t)) > MaxQuestionLength {
		ve.add("text", fmt.Sprintf("must be %d characters or fewer", MaxQuestionLength))
	}
	return ve.err()
}

// ValidateTagName checks a tag catalog entry name.
func ValidateTagName(name string) error {
	var ve ValidationError
	n := strings.TrimSpace(name)
	if n == "" {
		ve.add("name", "is required")
	} else if len([]rune(n)) > MaxTagNameLength {
		ve.add("name", fmt.Sprintf("must be %d characters or fewer", MaxTagNameLength))
	}
	return ve.err()
}

// ValidateContextLink checks that a link has an absolute http(s) URL.
func ValidateContextLink(l ContextLink) error {
	var ve ValidationError
	if strings.TrimSpace(l.URL) == "" {
		ve.add("url", "is required")
	} else if u, err := url.Parse(l.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.add("url", fmt.Sprintf("invalid value %q", l.URL))
	}
	return ve.err()
}
