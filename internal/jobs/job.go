package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/audioscribe/internal/transcript"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job tracks one transcription request from creation to terminal state.
// The Store owns the canonical record; everything handed out is a snapshot.
type Job struct {
	ID          string             `json:"id"`
	SourceName  string             `json:"source_name"`
	Status      Status             `json:"status"`
	Progress    float64            `json:"progress"`
	Message     string             `json:"message"`
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Result      *transcript.Result `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	Formats     []string           `json:"requested_formats"`
}

// snapshot returns a copy safe to hand to observers. Result is immutable
// once constructed, so sharing the pointer is fine.
func (j *Job) snapshot() Job {
	out := *j
	out.Formats = append([]string(nil), j.Formats...)
	if j.CompletedAt != nil {
		ts := *j.CompletedAt
		out.CompletedAt = &ts
	}
	return out
}

// ErrNotFound signals an unknown job id. Workers racing a concurrent delete
// observe it and discard their update; it is not surfaced to users as a fault.
var ErrNotFound = errors.New("job not found")

// ErrTerminalState signals an attempted mutation of a finished job.
var ErrTerminalState = errors.New("job already in terminal state")

// ValidationError rejects a request before any job is created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
