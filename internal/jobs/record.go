package jobs

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of a conversion job.
type State string

const (
	// StateProcessing is written when a job starts.
	StateProcessing State = "processing"
	// StateCompleted is terminal; the output fields are set.
	StateCompleted State = "completed"
	// StateFailure is terminal; Error is set.
	StateFailure State = "failure"
)

// IsTerminal reports whether no further transitions are allowed.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailure
}

// Record is the externally visible status of one job, keyed by the source
// object key.
type Record struct {
	State  State  `json:"state"`
	Source string `json:"source"`
	Kind   string `json:"kind,omitempty"`

	Message string `json:"message,omitempty"`
	Note    string `json:"note,omitempty"`

	Output     string `json:"output,omitempty"`
	OutputSize int64  `json:"outputSize,omitempty"`
	OutputType string `json:"outputType,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	OverTarget bool   `json:"overTarget,omitempty"`

	Error string `json:"error,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Validate checks that the populated fields match the state: output fields
// only when completed, an error only on failure.
func (r *Record) Validate() error {
	if r == nil {
		return errors.New("record is nil")
	}
	if r.Source == "" {
		return errors.New("record source is required")
	}

	hasOutput := r.Output != ""
	hasError := r.Error != ""

	switch r.State {
	case StateProcessing:
		if hasOutput || hasError {
			return fmt.Errorf("processing record for %s must not carry output or error", r.Source)
		}
	case StateCompleted:
		if !hasOutput || hasError {
			return fmt.Errorf("completed record for %s needs an output and no error", r.Source)
		}
	case StateFailure:
		if !hasError || hasOutput {
			return fmt.Errorf("failure record for %s needs an error and no output", r.Source)
		}
	default:
		return fmt.Errorf("unknown job state %q", r.State)
	}
	return nil
}

// stamp sets the bookkeeping timestamps before a write.
func (r *Record) stamp(now time.Time, ttl time.Duration) {
	r.UpdatedAt = now.UTC()
	if ttl > 0 {
		r.ExpiresAt = r.UpdatedAt.Add(ttl)
	} else {
		r.ExpiresAt = time.Time{}
	}
}
