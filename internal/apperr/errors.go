// Package apperr defines the failure taxonomy shared by every service and handler.
// Handlers map kinds to status codes; services wrap kinds with context.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation indicates caller input violates a stated precondition.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the caller identity could not be established.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller is known but may not touch the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates the request collides with an existing entity
	// (e.g. an email that is already registered).
	ErrConflict = errors.New("conflict")

	// ErrDuplicateKey is raised by the record store when a unique index rejects a write.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStoreUnavailable indicates the record store could not be reached.
	ErrStoreUnavailable = errors.New("record store unavailable")
)

// Error attaches a message and the affected resource to one of the kinds above.
type Error struct {
	Kind     error
	Message  string
	Resource string
}

func (e *Error) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
	}
	return e.Kind.Error()
}

// Unwrap returns the kind for errors.Is.
func (e *Error) Unwrap() error { return e.Kind }

func Validation(msg string) error { return &Error{Kind: ErrValidation, Message: msg} }

func NotFound(resource, id string) error {
	return &Error{Kind: ErrNotFound, Message: resource + " not found", Resource: id}
}

func Unauthorized(msg string) error { return &Error{Kind: ErrUnauthorized, Message: msg} }

func Forbidden(msg string) error { return &Error{Kind: ErrForbidden, Message: msg} }

func Conflict(msg, resource string) error {
	return &Error{Kind: ErrConflict, Message: msg, Resource: resource}
}

// Status maps an error to the HTTP status class the API surfaces.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrDuplicateKey):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the text safe to show a client. Internal failures never leak detail.
func PublicMessage(err error) string {
	if Status(err) == http.StatusInternalServerError {
		return "internal error"
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
