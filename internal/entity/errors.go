package entity

import (
	"errors"
	"fmt"
)

// ErrNotFound is shared by every store so callers can use errors.Is across
// package boundaries.
var ErrNotFound = errors.New("not found")

// ErrorKind tags a failure so it can cross the worker/relay/transport
// boundaries as a value.
type ErrorKind string

const (
	KindUnauthenticated       ErrorKind = "unauthenticated"
	KindInvalidRequest        ErrorKind = "invalid_request"
	KindAdmissionDenied       ErrorKind = "admission_denied"
	KindCollaboratorFailure   ErrorKind = "collaborator_failure"
	KindTimeoutFailure        ErrorKind = "timeout_failure"
	KindInfrastructureFailure ErrorKind = "infrastructure_failure"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the tagged kind of err, or "" for untagged errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage is the human-readable text shown in terminal events.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
