package orchestrator

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/stockhub-client/pkg/client"
	"github.com/Sternrassler/stockhub-client/pkg/jobs"
)

// Kind is the caller-facing classification of a failed fetch.
type Kind string

const (
	// KindNetwork covers transport failures, non-2xx responses and payloads
	// of unexpected shape.
	KindNetwork Kind = "network"

	// KindJobFailed means the backend reported the job as failed.
	KindJobFailed Kind = "job_failed"

	// KindJobTimeout means polling gave up before the job finished. The
	// backend job may still be running.
	KindJobTimeout Kind = "job_timeout"

	// KindReauthenticate means the backend rejected the credentials. The held
	// credential has been invalidated.
	KindReauthenticate Kind = "reauthenticate"

	// KindInvalidRequest means the call was rejected before reaching the
	// backend (empty symbol, unknown range).
	KindInvalidRequest Kind = "invalid_request"
)

// Error is the structured error returned by every fetch.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func invalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// classify maps a failure from any stage into the caller taxonomy.
func classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var failed *jobs.FailedError
	if errors.As(err, &failed) {
		return &Error{Kind: KindJobFailed, Message: failed.Message, Err: err}
	}

	var timeout *jobs.TimeoutError
	if errors.As(err, &timeout) {
		return &Error{
			Kind:    KindJobTimeout,
			Message: fmt.Sprintf("job %s did not finish within the polling deadline", timeout.JobID),
			Err:     err,
		}
	}

	if errors.Is(err, client.ErrUnauthorized) {
		return &Error{Kind: KindReauthenticate, Message: "credentials rejected by backend", Err: err}
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindNetwork, Message: apiErr.Message, Err: err}
	}

	return &Error{Kind: KindNetwork, Message: "request failed", Err: err}
}
