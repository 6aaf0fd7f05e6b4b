package api

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrTransport  = errors.New("transport error")
	ErrBackend    = errors.New("backend error")
	ErrNotFound   = errors.New("not found")
)

// ValidationError reports bad caller input. It is raised before anything is
// sent over the wire.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TransportError means the backend never answered meaningfully: the host was
// unreachable, the request was cancelled, or a success body could not be read.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ErrTransport.Error()
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrTransport, e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// BackendError means the backend answered with a non-success status.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e == nil {
		return ErrBackend.Error()
	}
	return fmt.Sprintf("%s (status %d): %s", ErrBackend, e.StatusCode, e.Message)
}

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// NotFoundError means the backend affirmatively reported that the resource does
// not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ErrNotFound.Error()
	}
	return fmt.Sprintf("%s %q %s", e.Resource, e.ID, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IsStatus reports whether err is a BackendError with the given status code.
func IsStatus(err error, statusCode int) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.StatusCode == statusCode
	}
	return false
}
