package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors returned by the session controller and manager.
var (
	// ErrNotActive is returned when an operation requires an active
	// session (not yet started, or already submitted).
	ErrNotActive = errors.New("session is not active")

	// ErrReviewPending is returned by RequestSubmit while questions are
	// still marked for review. It is a confirmation gate, not a hard
	// block: ConfirmSubmit overrides it.
	ErrReviewPending = errors.New("questions are still marked for review")

	// ErrSubmitting is returned when a submission is already in flight.
	ErrSubmitting = errors.New("submission already in progress")

	// ErrAttemptSubmitted is returned by adapter implementations for any
	// write attempted after the attempt has been finalized.
	ErrAttemptSubmitted = errors.New("attempt already submitted")

	// ErrSessionOpen is returned by the manager when a controller is
	// already open for the same test and student. Concurrent sessions on
	// one attempt (multiple tabs) are not supported.
	ErrSessionOpen = errors.New("a session is already open for this attempt")
)

// InitError wraps failures that prevent a session from starting: unknown
// test, access denied, or a network failure on the initial fetch.
type InitError struct {
	TestID uuid.UUID
	Err    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("start session for test %s: %v", e.TestID, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// SubmitError wraps a failed finalization. The session returns to the
// active state so the caller can retry; the countdown is not restarted.
type SubmitError struct {
	AttemptID uuid.UUID
	Err       error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit attempt %s: %v", e.AttemptID, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
