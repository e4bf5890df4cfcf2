// Package jobs turns the backend's "maybe wait" contract into a single
// awaitable result.
//
// A submission either returns its result immediately (200) or is accepted
// with a job identifier (202). Accepted jobs are polled until they reach a
// terminal state or a local deadline passes. The deadline is a client-side
// give-up; the backend job is never cancelled.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Status is the state of a backend job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// ErrMalformed indicates a submission or poll response that does not match
// any known shape.
var ErrMalformed = errors.New("malformed job response")

// statusAliases maps the worker queue's native names to Status values.
var statusAliases = map[string]Status{
	"queued":    StatusQueued,
	"deferred":  StatusQueued,
	"scheduled": StatusQueued,
	"started":   StatusRunning,
	"running":   StatusRunning,
	"finished":  StatusDone,
	"done":      StatusDone,
	"failed":    StatusFailed,
}

// ParseStatus normalizes a backend status string.
func ParseStatus(raw string) (Status, error) {
	s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrMalformed, raw)
	}
	return s, nil
}

// UnmarshalJSON normalizes aliases and rejects unknown statuses.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: status: %v", ErrMalformed, err)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsTerminal reports whether no further transitions can happen.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusTimeout
}

// Job is one poll observation of a backend job.
type Job struct {
	ID     string          `json:"job_id"`
	Status Status          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	// Progress is a completion fraction in [0,1] when the backend reports one.
	Progress *float64 `json:"progress,omitempty"`
}

// Validate checks the job matches the shape required by its status.
func (j Job) Validate() error {
	switch j.Status {
	case StatusQueued, StatusRunning, StatusFailed:
		return nil
	case StatusDone:
		if len(j.Result) == 0 || string(j.Result) == "null" {
			return fmt.Errorf("%w: job %s done without result", ErrMalformed, j.ID)
		}
		return nil
	default:
		return fmt.Errorf("%w: job %s has status %q", ErrMalformed, j.ID, j.Status)
	}
}

// Submission is the outcome of submitting work: either an immediate result
// or an accepted job to poll.
type Submission struct {
	// Result is set when the backend answered synchronously.
	Result json.RawMessage

	// JobID is set when the backend accepted the work for later completion.
	JobID string
}

// Immediate returns a submission carrying a synchronous result.
func Immediate(result json.RawMessage) Submission {
	return Submission{Result: result}
}

// Accepted returns a submission for an accepted job.
func Accepted(jobID string) Submission {
	return Submission{JobID: jobID}
}

// IsAccepted reports whether the submission must be polled.
func (s Submission) IsAccepted() bool {
	return s.JobID != ""
}

// Validate checks exactly one of Result and JobID is set.
func (s Submission) Validate() error {
	hasResult := len(s.Result) > 0 && string(s.Result) != "null"
	switch {
	case s.JobID != "" && hasResult:
		return fmt.Errorf("%w: submission has both a result and job id", ErrMalformed)
	case s.JobID == "" && !hasResult:
		return fmt.Errorf("%w: submission has neither a result nor a job id", ErrMalformed)
	}
	return nil
}
