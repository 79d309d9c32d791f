package extraction

import (
	"errors"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindUpstream
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream_error"
	case KindPersistence:
		return "persistence_error"
	}
	return "internal_error"
}

// HTTPStatus is the response status for failures of kind k.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Error is returned by every pipeline step. Message is safe to show to the
// caller; Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrInvalidTask is returned when a launch key names no known task.
var ErrInvalidTask = &Error{
	Kind:    KindValidation,
	Message: "Invalid document process key or Process not yet implemented",
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
