package codec

import (
	"errors"
	"fmt"
)

// ErrMalformed is matched by every *MalformedObjectError via errors.Is.
var ErrMalformed = errors.New("malformed object")

// MalformedObjectError reports a required field that is absent, or any field
// whose value has the wrong kind. Field is the dotted path from the item root,
// e.g. "event.questions[2].text".
type MalformedObjectError struct {
	Field  string
	Reason string
}

func (e *MalformedObjectError) Error() string {
	if e.Field == "" {
		return "malformed object: " + e.Reason
	}
	if e.Reason == "" {
		return fmt.Sprintf("malformed object: field %s", e.Field)
	}
	return fmt.Sprintf("malformed object: field %s: %s", e.Field, e.Reason)
}

func (e *MalformedObjectError) Unwrap() error { return ErrMalformed }

// UnsupportedFormatError is returned when an item was written by a newer
// codec than this one.
type UnsupportedFormatError struct {
	Format uint32
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported item format %d (newest known is %d)", e.Format, CurrentFormat)
}

func malformed(field, reason string) error {
	return &MalformedObjectError{Field: field, Reason: reason}
}
