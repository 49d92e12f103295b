package compute

import (
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidRequest is returned when a Request is rejected before any step runs.
	ErrInvalidRequest = errors.New("invalid job request")

	// ErrStepFailed is returned when a series update aborts a run.
	ErrStepFailed = errors.New("job step failed")
)

// Request identifies a job and bounds the number of steps it may run.
type Request struct {
	Name       string `json:"name"`
	Iterations int    `json:"iterations"`
}

// Validate rejects requests that cannot be started.
func (r Request) Validate() error {
	if r.Name == "" {
		return errors.Wrap(ErrInvalidRequest, "name is required")
	}
	if r.Iterations < 0 {
		return errors.Wrapf(ErrInvalidRequest, "iterations must be >= 0, got %d", r.Iterations)
	}
	return nil
}

// State is the lifecycle state of a single run.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// ProgressEvent is published once per completed step.
type ProgressEvent struct {
	JobName   string    `json:"job_name"`
	Iteration int       `json:"iteration"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Outcome summarises a finished run. Exactly one is produced per Run call
// that passes validation.
type Outcome struct {
	JobName             string        `json:"job_name"`
	Iterations          int           `json:"iterations"`
	IterationsCompleted int           `json:"iterations_completed"`
	FinalValue          float64       `json:"final_value"`
	Elapsed             time.Duration `json:"elapsed"`
	Cancelled           bool          `json:"cancelled"`
	State               State         `json:"state"`
}

// ProgressSink receives progress events. Implementations must not block
// the caller; wrap slow consumers with an asynchronous sink.
type ProgressSink interface {
	Observe(event ProgressEvent)
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(event ProgressEvent)

func (f SinkFunc) Observe(event ProgressEvent) { f(event) }

type nopSink struct{}

func (nopSink) Observe(ProgressEvent) {}
