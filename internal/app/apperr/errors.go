// Package apperr defines the error taxonomy shared by the playback and like layers.
package apperr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotAuthenticated is returned when an action needs a user identity.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrLoadTimeout is returned when media does not become ready in time.
	ErrLoadTimeout = errors.New("media load timed out")
	// ErrPlaybackFailed is returned once the retry budget is exhausted.
	ErrPlaybackFailed = errors.New("playback failed")
	// ErrUpdateInProgress is returned when a second toggle arrives for a key in flight.
	ErrUpdateInProgress = errors.New("update in progress")
)

// RemoteOperationError wraps a failure reported by the document store.
type RemoteOperationError struct {
	Op    string // e.g. "create_like", "delete_like", "list_likes"
	Cause error
}

// NewRemoteOperationError wraps cause as a failure of op.
func NewRemoteOperationError(op string, cause error) *RemoteOperationError {
	return &RemoteOperationError{Op: op, Cause: cause}
}

func (e *RemoteOperationError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("remote operation %s failed", e.Op)
	}
	return fmt.Sprintf("remote operation %s failed: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RemoteOperationError) Unwrap() error {
	return e.Cause
}

// IsRemote reports whether err is (or wraps) a RemoteOperationError.
func IsRemote(err error) bool {
	var remote *RemoteOperationError
	return errors.As(err, &remote)
}

// Retryable reports whether retrying locally can help.
// Authentication and concurrency-guard faults are surfaced immediately.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrUpdateInProgress) {
		return false
	}
	return true
}
