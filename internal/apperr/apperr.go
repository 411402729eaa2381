// Package apperr defines the error kinds shared by the storage, service and
// transport layers. Handlers translate a Kind into an HTTP status; the
// realtime gateway only logs.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	AuthFailed
	Forbidden
	NotFound
	InvalidInput
	Conflict
)

func (k Kind) String() string {
	switch k {
	case AuthFailed:
		return "AUTH_FAILED"
	case Forbidden:
		return "FORBIDDEN"
	case NotFound:
		return "NOT_FOUND"
	case InvalidInput:
		return "INVALID_INPUT"
	case Conflict:
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus maps a kind to the status code the REST surface answers with.
func (k Kind) HTTPStatus() int {
	switch k {
	case AuthFailed:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case InvalidInput:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, Internal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message returns the user-facing message of the first *Error in err's chain.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "Something went wrong"
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
