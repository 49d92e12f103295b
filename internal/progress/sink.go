package progress

import (
	"context"
	"log/slog"

	"github.com/dandantas/pijob/internal/compute"
)

type multi []compute.ProgressSink

// Multi fans every event out to sinks in order. Nil sinks are skipped.
func Multi(sinks ...compute.ProgressSink) compute.ProgressSink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Observe(event compute.ProgressEvent) {
	for _, s := range m {
		s.Observe(event)
	}
}

// LogSink writes one log line per event.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink logs events at level. A nil logger means slog.Default().
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, level: level}
}

func (s *LogSink) Observe(event compute.ProgressEvent) {
	s.logger.Log(context.Background(), s.level, "Job progress",
		"job_name", event.JobName,
		"iteration", event.Iteration+1,
		"value", event.Value,
		"timestamp", event.Timestamp,
	)
}
