package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the mapping core
type ErrorKind int

const (
	// AtlasParseError marks a malformed or incomplete atlas definition.
	// No mapping can proceed until a valid atlas is loaded.
	AtlasParseError ErrorKind = iota + 1

	// MappingError marks a failed mapping request. It never affects the
	// atlas or other requests.
	MappingError
)

func (k ErrorKind) String() string {
	switch k {
	case AtlasParseError:
		return "AtlasParseError"
	case MappingError:
		return "MappingError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a classified failure with a human-readable message
type Error struct {
	Kind    ErrorKind
	Message string

	// Transient is set when the request failed on a deadline rather than
	// on its input.
	Transient bool

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewAtlasParseError formats an AtlasParseError.
func NewAtlasParseError(format string, args ...any) *Error {
	return &Error{Kind: AtlasParseError, Message: fmt.Sprintf(format, args...)}
}

// NewMappingError formats a MappingError.
func NewMappingError(format string, args ...any) *Error {
	return &Error{Kind: MappingError, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and message to an underlying error.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsTransient reports whether err is a classified deadline failure.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Transient
}
