package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/dandantas/pijob/internal/compute"
	"github.com/dandantas/pijob/internal/model"
	"github.com/dandantas/pijob/internal/service"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Entry is one cron-triggered run.
type Entry struct {
	Name       string
	Iterations int
	Spec       string
	Series     string
}

// ParseEntries parses "name|iterations|cron-spec[|series]" entries
// separated by ";". Blank entries are ignored.
func ParseEntries(raw string) ([]Entry, error) {
	var entries []Entry
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, "|")
		if len(fields) < 3 || len(fields) > 4 {
			return nil, errors.Errorf("scheduled run %q: want name|iterations|spec[|series]", part)
		}
		iterations, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, errors.Wrapf(err, "scheduled run %q: invalid iterations", part)
		}
		e := Entry{
			Name:       strings.TrimSpace(fields[0]),
			Iterations: iterations,
			Spec:       strings.TrimSpace(fields[2]),
		}
		if len(fields) == 4 {
			e.Series = strings.TrimSpace(fields[3])
		}
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if seen[e.Name] {
			return nil, errors.Errorf("scheduled run %q: duplicate job name %q", part, e.Name)
		}
		seen[e.Name] = true
		entries = append(entries, e)
	}
	return entries, nil
}

// Validate checks the request, series and cron spec of e.
func (e Entry) Validate() error {
	if err := (compute.Request{Name: e.Name, Iterations: e.Iterations}).Validate(); err != nil {
		return errors.Wrapf(err, "scheduled run %q", e.Name)
	}
	if _, err := compute.SeriesByName(e.Series); err != nil {
		return errors.Wrapf(err, "scheduled run %q", e.Name)
	}
	if _, err := parser.Parse(e.Spec); err != nil {
		return errors.Wrapf(err, "scheduled run %q: invalid cron expression", e.Name)
	}
	return nil
}

// Starter launches runs. It is satisfied by *service.RunManager.
type Starter interface {
	Start(req compute.Request, opts service.StartOptions) (string, error)
}

// Scheduler starts runs on cron schedules. A tick is skipped while the
// previous run of the same entry is still in progress.
type Scheduler struct {
	cron    *cron.Cron
	starter Starter
	entries []Entry
}

func NewScheduler(entries []Entry, starter Starter) (*Scheduler, error) {
	logger := cronLogger{slog.Default().With("component", "scheduler")}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		starter: starter,
		entries: entries,
	}

	for _, e := range entries {
		if _, err := s.cron.AddFunc(e.Spec, func() { s.trigger(e) }); err != nil {
			return nil, errors.Wrapf(err, "scheduled run %q", e.Name)
		}
	}
	return s, nil
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler", "entries", len(s.entries))
	s.cron.Start()
}

// Stop stops firing schedules and waits for in-flight triggers.
func (s *Scheduler) Stop(ctx context.Context) {
	slog.Info("Stopping scheduler")
	select {
	case <-s.cron.Stop().Done():
		slog.Info("Scheduler stopped")
	case <-ctx.Done():
		slog.Warn("Timeout waiting for scheduler to stop")
	}
}

func (s *Scheduler) trigger(e Entry) {
	correlationID := uuid.New().String()
	runID, err := s.starter.Start(
		compute.Request{Name: e.Name, Iterations: e.Iterations},
		service.StartOptions{
			TriggeredBy:   model.TriggerSchedule,
			CorrelationID: correlationID,
			Series:        e.Series,
			Exclusive:     true,
		},
	)
	if errors.Is(err, service.ErrAlreadyRunning) {
		slog.Info("Skipping scheduled run, previous run still in progress", "job_name", e.Name)
		return
	}
	if err != nil {
		slog.Error("Failed to start scheduled run",
			"job_name", e.Name,
			"correlation_id", correlationID,
			"error", err,
		)
		return
	}

	slog.Info("Scheduled run started",
		"job_name", e.Name,
		"run_id", runID,
		"correlation_id", correlationID,
	)
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
