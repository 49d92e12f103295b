package compute

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

// DefaultInterval is the pause between consecutive steps.
const DefaultInterval = time.Second

// Option configures a Job.
type Option func(*Job)

// WithSeries sets the update rule applied at every step.
func WithSeries(s Series) Option {
	return func(j *Job) {
		if s != nil {
			j.series = s
		}
	}
}

// WithSink sets where progress events are published.
func WithSink(sink ProgressSink) Option {
	return func(j *Job) {
		if sink != nil {
			j.sink = sink
		}
	}
}

// WithInterval sets the pause between steps. Zero or negative disables it.
func WithInterval(d time.Duration) Option {
	return func(j *Job) { j.interval = d }
}

// WithClock replaces the clock used for timestamps, elapsed time and pauses.
func WithClock(c clock.Clock) Option {
	return func(j *Job) {
		if c != nil {
			j.clock = c
		}
	}
}

// WithLogger sets the logger for run lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) {
		if logger != nil {
			j.logger = logger
		}
	}
}
