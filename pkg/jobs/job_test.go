package jobs

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{raw: "queued", want: StatusQueued},
		{raw: "deferred", want: StatusQueued},
		{raw: "scheduled", want: StatusQueued},
		{raw: "started", want: StatusRunning},
		{raw: "RUNNING", want: StatusRunning},
		{raw: "finished", want: StatusDone},
		{raw: "done", want: StatusDone},
		{raw: " failed ", want: StatusFailed},
		{raw: "timeout", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "exploded", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseStatus(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("ParseStatus(%q) error = %v, want ErrMalformed", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStatus(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusQueued:  false,
		StatusRunning: false,
		StatusDone:    true,
		StatusFailed:  true,
		StatusTimeout: true,
	}
	for s, want := range terminal {
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}

func TestJob_UnmarshalJSON(t *testing.T) {
	var job Job
	data := `{"job_id":"j1","status":"started","progress":0.4}`
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if job.Status != StatusRunning {
		t.Errorf("Status = %q, want running", job.Status)
	}
	if job.Progress == nil || *job.Progress != 0.4 {
		t.Errorf("Progress = %v, want 0.4", job.Progress)
	}

	if err := json.Unmarshal([]byte(`{"status":"weird"}`), &job); !errors.Is(err, ErrMalformed) {
		t.Errorf("Unmarshal() unknown status error = %v, want ErrMalformed", err)
	}
}

func TestJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{name: "running", job: Job{ID: "j", Status: StatusRunning}},
		{name: "done with result", job: Job{ID: "j", Status: StatusDone, Result: json.RawMessage(`{}`)}},
		{name: "done without result", job: Job{ID: "j", Status: StatusDone}, wantErr: true},
		{name: "done with null", job: Job{ID: "j", Status: StatusDone, Result: json.RawMessage(`null`)}, wantErr: true},
		{name: "failed", job: Job{ID: "j", Status: StatusFailed, Error: "boom"}},
		{name: "empty status", job: Job{ID: "j"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubmission_Validate(t *testing.T) {
	tests := []struct {
		name    string
		sub     Submission
		wantErr bool
	}{
		{name: "immediate", sub: Immediate(json.RawMessage(`{"a":1}`))},
		{name: "accepted", sub: Accepted("j1")},
		{name: "empty", sub: Submission{}, wantErr: true},
		{name: "null result", sub: Immediate(json.RawMessage(`null`)), wantErr: true},
		{name: "both", sub: Submission{Result: json.RawMessage(`1`), JobID: "j1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrMalformed) {
				t.Errorf("Validate() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestErrors(t *testing.T) {
	var failed error = &FailedError{JobID: "j1", Message: "model crashed"}
	if !errors.Is(failed, ErrJobFailed) {
		t.Error("FailedError should match ErrJobFailed")
	}
	if errors.Is(failed, ErrJobTimeout) {
		t.Error("FailedError should not match ErrJobTimeout")
	}
	if failed.Error() != "job j1 failed: model crashed" {
		t.Errorf("Error() = %q", failed.Error())
	}

	var timeout error = &TimeoutError{JobID: "j1", LastStatus: StatusRunning}
	if !errors.Is(timeout, ErrJobTimeout) {
		t.Error("TimeoutError should match ErrJobTimeout")
	}
}
