package compute

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"
)

// StepError reports the step at which a run was aborted.
type StepError struct {
	JobName string
	Step    int
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("job %s: step %d: %v", e.JobName, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStepFailed) true for every StepError.
func (e *StepError) Is(target error) bool { return target == ErrStepFailed }

// Job runs a Series for a bounded number of steps. A Job holds only
// configuration, so one value may serve any number of concurrent runs.
type Job struct {
	series   Series
	sink     ProgressSink
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates a Job computing the Leibniz series with a one second pause
// between steps unless overridden by opts.
func New(opts ...Option) *Job {
	j := &Job{
		series:   Leibniz{},
		sink:     nopSink{},
		interval: DefaultInterval,
		clock:    clock.RealClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Series returns the update rule used by the job.
func (j *Job) Series() Series { return j.series }

// Run executes req until every step is done, ctx is cancelled or a step
// fails. ctx is checked before each step and while pausing between steps.
// A cancelled run returns a nil error with Outcome.Cancelled set.
func (j *Job) Run(ctx context.Context, req Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{JobName: req.Name, Iterations: req.Iterations, State: StateNotStarted}, err
	}

	logger := j.logger.With("job_name", req.Name)
	start := j.clock.Now()
	out := Outcome{
		JobName:    req.Name,
		Iterations: req.Iterations,
		State:      StateRunning,
	}

	logger.Info("Job started",
		"iterations", req.Iterations,
		"series", j.series.Name(),
		"interval_ms", j.interval.Milliseconds(),
	)

	var acc float64
	for i := 0; i < req.Iterations; i++ {
		if ctx.Err() != nil {
			out.Cancelled = true
			break
		}

		next, err := j.series.Next(i, acc)
		if err == nil && (math.IsNaN(next) || math.IsInf(next, 0)) {
			err = errors.Errorf("accumulator is not finite: %v", next)
		}
		if err != nil {
			out.State = StateFailed
			out.FinalValue = j.series.Scale(acc)
			out.Elapsed = j.clock.Since(start)
			logger.Error("Job failed",
				"step", i,
				"iterations_completed", out.IterationsCompleted,
				"error", err,
			)
			return out, &StepError{JobName: req.Name, Step: i, Err: err}
		}

		acc = next
		out.IterationsCompleted = i + 1
		j.sink.Observe(ProgressEvent{
			JobName:   req.Name,
			Iteration: i,
			Value:     j.series.Scale(acc),
			Timestamp: j.clock.Now(),
		})

		if out.IterationsCompleted < req.Iterations && !j.pause(ctx) {
			out.Cancelled = true
			break
		}
	}

	out.FinalValue = j.series.Scale(acc)
	out.Elapsed = j.clock.Since(start)
	if out.Cancelled {
		out.State = StateCancelled
	} else {
		out.State = StateCompleted
	}

	logger.Info("Job finished",
		"state", out.State,
		"iterations_completed", out.IterationsCompleted,
		"final_value", out.FinalValue,
		"duration_ms", out.Elapsed.Milliseconds(),
	)

	return out, nil
}

// pause waits for the step interval and reports false if ctx was cancelled
// first.
func (j *Job) pause(ctx context.Context) bool {
	if j.interval <= 0 {
		return true
	}

	timer := j.clock.NewTimer(j.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C():
		return true
	}
}
