package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies workflow failures so handlers can map them to HTTP
// statuses and operators can tell load-related failures from logic bugs.
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindInvalidState   ErrorKind = "invalid_state"
	KindAlreadyLogged  ErrorKind = "already_logged"
	KindDriverNotFound ErrorKind = "driver_not_found"
	KindValidation     ErrorKind = "validation"
	KindContention     ErrorKind = "contention"
)

// WorkflowError is the error type surfaced by the completion workflow.
// Store-level errors are classified into this taxonomy at the service
// boundary instead of leaking driver-specific types to callers.
type WorkflowError struct {
	Kind    ErrorKind
	Message string
}

func (e *WorkflowError) Error() string {
	return e.Message
}

// KindOf returns the error's kind, or "" for errors outside the taxonomy
func KindOf(err error) ErrorKind {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	return ""
}

func notFoundError(what string, id uint) *WorkflowError {
	return &WorkflowError{Kind: KindNotFound, Message: fmt.Sprintf("%s %d not found", what, id)}
}

func invalidStateError(operation string, current string) *WorkflowError {
	return &WorkflowError{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("cannot %s: request is %s", operation, current),
	}
}

func driverNotFoundError(driverID uint) *WorkflowError {
	return &WorkflowError{Kind: KindDriverNotFound, Message: fmt.Sprintf("driver %d not found", driverID)}
}
