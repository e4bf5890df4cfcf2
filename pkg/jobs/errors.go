package jobs

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrJobFailed indicates the backend reported the job as failed.
	ErrJobFailed = errors.New("job failed")

	// ErrJobTimeout indicates the local polling deadline passed before the
	// job reached a terminal state.
	ErrJobTimeout = errors.New("job timed out")
)

// FailedError carries the backend's failure message for a job.
type FailedError struct {
	JobID   string
	Message string
}

func (e *FailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

func (e *FailedError) Unwrap() error {
	return ErrJobFailed
}

// TimeoutError reports a job still not terminal when the client gave up.
type TimeoutError struct {
	JobID      string
	Elapsed    time.Duration
	LastStatus Status
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s still %s after %v", e.JobID, e.LastStatus, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error {
	return ErrJobTimeout
}
