package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for protocol-level failures. These are rejected
// synchronously at dispatch and never terminate a session.
var (
	// ErrBusy is returned when a second turn is submitted while one is in flight.
	ErrBusy = errors.New("workflow busy: stream already in progress")

	// ErrNoWorkflow is returned when free-form input arrives on a session with
	// no open workflow.
	ErrNoWorkflow = errors.New("no workflow open for session")

	// ErrWorkflowNotFound is returned when loading a workflow id that has no
	// persisted state.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrEmptyInput is returned when a turn carries neither text nor attachments.
	ErrEmptyInput = errors.New("empty input: text or attachments required")
)

// DomainError wraps a failure whose message is safe to show to the end user.
// Anything not wrapped in a DomainError is surfaced to clients as a generic
// internal error; the original detail stays in server logs only.
type DomainError struct {
	Message string // user-facing text
	Err     error  // underlying cause, may be nil
}

// NewDomainError builds a DomainError with a user-facing message.
func NewDomainError(message string, err error) *DomainError {
	return &DomainError{Message: message, Err: err}
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *DomainError) Unwrap() error { return e.Err }

// UserMessage extracts the user-facing text for an error. DomainErrors expose
// their message; everything else maps to the provided fallback.
func UserMessage(err error, fallback string) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	switch {
	case errors.Is(err, ErrBusy), errors.Is(err, ErrNoWorkflow),
		errors.Is(err, ErrWorkflowNotFound), errors.Is(err, ErrEmptyInput):
		return err.Error()
	}
	return fallback
}
