package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies an error for the retry policy.
type Kind int

const (
	// KindTransient errors are retried with backoff.
	KindTransient Kind = iota
	// KindFatal errors fail the task immediately.
	KindFatal
	// KindDegraded errors are logged and otherwise ignored.
	KindDegraded
)

var (
	ErrIncompleteStream = errors.New("incomplete stream")
	ErrInactivity       = errors.New("network read inactivity timeout")
	ErrDecryptionSetup  = errors.New("decryption setup failed")
	ErrStorage          = errors.New("storage failure")
	ErrAuth             = errors.New("authentication failed")
	ErrCancelled        = errors.New("cancelled")
	ErrTagging          = errors.New("metadata embedding failed")

	ErrTaskNotFound  = errors.New("task not found")
	ErrBatchNotFound = errors.New("batch not found")
	ErrTaskExists    = errors.New("task already exists")
	ErrTrackNotFound = errors.New("track not found in catalog")
	ErrNotTerminal   = errors.New("task is not in a terminal state")
	ErrSchedulerDown = errors.New("scheduler is shutting down")
)

// StatusError carries an HTTP status returned by the remote service.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d %s", e.Code, http.StatusText(e.Code))
}

// Classify maps an error to its Kind: network timeouts, resets, incomplete
// streams and 429/5xx responses are transient; auth, key-derivation and local
// storage failures are fatal; tagging failures are degraded.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindDegraded
	case errors.Is(err, ErrTagging):
		return KindDegraded
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindFatal
	case errors.Is(err, ErrDecryptionSetup),
		errors.Is(err, ErrStorage),
		errors.Is(err, ErrAuth),
		errors.Is(err, ErrTrackNotFound):
		return KindFatal
	case errors.Is(err, ErrIncompleteStream), errors.Is(err, ErrInactivity):
		return KindTransient
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500 {
			return KindTransient
		}
		return KindFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	// Transport failures (connection reset, EOF mid-body) arrive as plain
	// wrapped errors; an unknown failure defaults to transient so a flaky
	// network never permanently fails a task a retry would have saved.
	return KindTransient
}

// Retryable reports whether the retry policy may re-attempt after err.
func Retryable(err error) bool {
	return Classify(err) == KindTransient
}
