package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/dandantas/pijob/internal/compute"
	"github.com/dandantas/pijob/internal/database"
	"github.com/dandantas/pijob/internal/model"
	"github.com/dandantas/pijob/internal/progress"
	"github.com/dandantas/pijob/internal/webhook"
)

var (
	// ErrAtCapacity is returned when the live-run limit is reached. Runs are
	// never queued.
	ErrAtCapacity = errors.New("too many runs in progress")

	// ErrRunNotFound is returned for unknown run IDs.
	ErrRunNotFound = errors.New("run not found")

	// ErrShuttingDown is returned once Shutdown has been called.
	ErrShuttingDown = errors.New("run manager is shutting down")

	// ErrAlreadyRunning is returned for an exclusive start while a run with
	// the same job name is live.
	ErrAlreadyRunning = errors.New("a run with this job name is in progress")
)

// HistoryStore persists one record per finished run.
type HistoryStore interface {
	Create(ctx context.Context, record *model.RunRecord) error
	GetByRunID(ctx context.Context, runID string) (*model.RunRecord, error)
	List(ctx context.Context, filter database.RunFilter, page, limit int) ([]model.RunRecord, int64, error)
}

// OutcomeRecorder is told about every finished run.
type OutcomeRecorder interface {
	RecordOutcome(out compute.Outcome)
}

// ManagerConfig configures a RunManager.
type ManagerConfig struct {
	Interval        time.Duration
	Series          compute.Series
	MaxConcurrent   int
	ProgressBuffer  int
	StatusRetention time.Duration

	// Sinks receive the events of every run, in addition to the live status.
	Sinks    []compute.ProgressSink
	Outcomes OutcomeRecorder

	// Notifier, when set, is sent a notification for every finished run and
	// for every NotifyEvery-th step when NotifyEvery > 0.
	Notifier      progress.Notifier
	NotifyEvery   int
	NotifyTimeout time.Duration

	Clock clock.Clock
}

// StartOptions describes who started a run and how.
type StartOptions struct {
	TriggeredBy   string
	CorrelationID string
	// Series overrides the manager's default series by name.
	Series string
	// Exclusive refuses the start while a run with the same job name is live.
	Exclusive bool
}

// RunManager starts runs, tracks their live status and cancels them on
// request. Each run owns its own context; nothing else is shared between
// runs.
type RunManager struct {
	cfg      ManagerConfig
	history  HistoryStore
	statuses *model.RunStatusStore

	mu     sync.Mutex
	live   map[string]context.CancelFunc
	closed bool

	wg         sync.WaitGroup
	baseCtx    context.Context
	baseCancel context.CancelFunc
}

func NewRunManager(cfg ManagerConfig, history HistoryStore) *RunManager {
	if cfg.Series == nil {
		cfg.Series = compute.Leibniz{}
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 100
	}
	if cfg.ProgressBuffer <= 0 {
		cfg.ProgressBuffer = 64
	}
	if cfg.StatusRetention <= 0 {
		cfg.StatusRetention = time.Hour
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RunManager{
		cfg:        cfg,
		history:    history,
		statuses:   model.NewRunStatusStore(),
		live:       make(map[string]context.CancelFunc),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Start validates req and launches it in the background. It returns the
// run ID as soon as the run is registered.
func (m *RunManager) Start(req compute.Request, opts StartOptions) (string, error) {
	series, err := m.prepare(req, opts)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(m.baseCtx)
	status, err := m.register(req, series, opts, cancel)
	if err != nil {
		cancel()
		return "", err
	}

	go func() {
		defer m.wg.Done()
		_, _ = m.execute(runCtx, cancel, status, req, series)
	}()

	return status.RunID, nil
}

// Execute runs req in the caller's goroutine. Cancelling ctx, calling
// Cancel with the returned run ID or shutting the manager down all cancel
// the run.
func (m *RunManager) Execute(ctx context.Context, req compute.Request, opts StartOptions) (string, compute.Outcome, error) {
	series, err := m.prepare(req, opts)
	if err != nil {
		return "", compute.Outcome{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.baseCtx, cancel)
	defer stop()

	status, err := m.register(req, series, opts, cancel)
	if err != nil {
		cancel()
		return "", compute.Outcome{}, err
	}
	defer m.wg.Done()

	out, err := m.execute(runCtx, cancel, status, req, series)
	return status.RunID, out, err
}

// Cancel signals the run to stop. Cancelling a run that already finished
// is a no-op.
func (m *RunManager) Cancel(runID string) error {
	m.mu.Lock()
	cancel, ok := m.live[runID]
	m.mu.Unlock()

	if ok {
		slog.Info("Cancelling run", "run_id", runID)
		cancel()
		return nil
	}
	if _, known := m.statuses.Get(runID); known {
		return nil
	}
	return errors.Wrapf(ErrRunNotFound, "run %s", runID)
}

// Status returns the live status of a run.
func (m *RunManager) Status(runID string) (model.RunStatus, error) {
	status, ok := m.statuses.Get(runID)
	if !ok {
		return model.RunStatus{}, errors.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	return status, nil
}

// List returns the statuses still retained, newest first.
func (m *RunManager) List() []model.RunStatus {
	return m.statuses.List()
}

// LiveCount returns the number of runs that have not finished.
func (m *RunManager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Active reports whether a run with the given job name is in progress.
func (m *RunManager) Active(jobName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(jobName)
}

// activeLocked requires m.mu.
func (m *RunManager) activeLocked(jobName string) bool {
	for id := range m.live {
		if status, ok := m.statuses.Get(id); ok && status.JobName == jobName && !status.State.Terminal() {
			return true
		}
	}
	return false
}

// Shutdown refuses new runs, cancels live ones and waits for them to
// record their outcome or for ctx to expire.
func (m *RunManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	live := len(m.live)
	m.mu.Unlock()

	slog.Info("Shutting down run manager", "live_runs", live)
	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Run manager stopped")
		return nil
	case <-ctx.Done():
		slog.Warn("Timeout waiting for runs to finish")
		return ctx.Err()
	}
}

func (m *RunManager) prepare(req compute.Request, opts StartOptions) (compute.Series, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if opts.Series == "" {
		return m.cfg.Series, nil
	}
	series, err := compute.SeriesByName(opts.Series)
	if err != nil {
		return nil, errors.Wrap(compute.ErrInvalidRequest, err.Error())
	}
	return series, nil
}

func (m *RunManager) register(req compute.Request, series compute.Series, opts StartOptions, cancel context.CancelFunc) (*model.RunStatus, error) {
	m.pruneStatuses()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrShuttingDown
	}
	if len(m.live) >= m.cfg.MaxConcurrent {
		return nil, errors.Wrapf(ErrAtCapacity, "limit is %d", m.cfg.MaxConcurrent)
	}
	if opts.Exclusive && m.activeLocked(req.Name) {
		return nil, errors.Wrapf(ErrAlreadyRunning, "job %s", req.Name)
	}

	status := &model.RunStatus{
		RunID:         uuid.New().String(),
		CorrelationID: opts.CorrelationID,
		JobName:       req.Name,
		Series:        series.Name(),
		Iterations:    req.Iterations,
		State:         compute.StateRunning,
		TriggeredBy:   opts.TriggeredBy,
		StartedAt:     m.cfg.Clock.Now().UTC(),
	}
	m.live[status.RunID] = cancel
	m.statuses.Set(status)
	m.wg.Add(1)

	slog.Info("Run registered",
		"run_id", status.RunID,
		"job_name", req.Name,
		"iterations", req.Iterations,
		"series", status.Series,
		"triggered_by", opts.TriggeredBy,
		"correlation_id", opts.CorrelationID,
	)
	return status, nil
}

func (m *RunManager) execute(
	ctx context.Context,
	cancel context.CancelFunc,
	status *model.RunStatus,
	req compute.Request,
	series compute.Series,
) (compute.Outcome, error) {
	runID := status.RunID
	defer func() {
		m.mu.Lock()
		delete(m.live, runID)
		m.mu.Unlock()
		cancel()
	}()

	sinks := []compute.ProgressSink{
		compute.SinkFunc(func(e compute.ProgressEvent) {
			m.statuses.Update(runID, func(s *model.RunStatus) { s.LastProgress = &e })
		}),
	}
	sinks = append(sinks, m.cfg.Sinks...)

	var notify *progress.Async
	if m.cfg.Notifier != nil && m.cfg.NotifyEvery > 0 {
		notify = progress.NewAsync(
			progress.NewWebhookSink(m.cfg.Notifier, runID, m.cfg.NotifyEvery, m.cfg.NotifyTimeout),
			m.cfg.ProgressBuffer,
		)
		sinks = append(sinks, notify)
	}

	job := compute.New(
		compute.WithSeries(series),
		compute.WithSink(progress.Multi(sinks...)),
		compute.WithInterval(m.cfg.Interval),
		compute.WithClock(m.cfg.Clock),
		compute.WithLogger(slog.Default().With("run_id", runID)),
	)

	out, runErr := job.Run(ctx, req)
	if notify != nil {
		notify.Close()
	}

	finishedAt := m.cfg.Clock.Now().UTC()
	m.statuses.Update(runID, func(s *model.RunStatus) {
		s.State = out.State
		s.Outcome = &out
		s.FinishedAt = &finishedAt
		if runErr != nil {
			s.Error = runErr.Error()
		}
	})
	final, _ := m.statuses.Get(runID)

	if m.cfg.Outcomes != nil {
		m.cfg.Outcomes.RecordOutcome(out)
	}

	record := model.NewRunRecord(&final, out, runErr, finishedAt)
	if err := m.history.Create(context.Background(), record); err != nil {
		slog.Error("Failed to record run history", "run_id", runID, "error", err)
	}

	if m.cfg.Notifier != nil {
		m.notifyFinished(runID, out, runErr)
	}

	return out, runErr
}

// notifyFinished delivers the outcome in the background; the run is
// already complete.
func (m *RunManager) notifyFinished(runID string, out compute.Outcome, runErr error) {
	n := webhook.Notification{
		Event:   webhook.EventFinished,
		RunID:   runID,
		JobName: out.JobName,
		Outcome: &out,
	}
	if runErr != nil {
		n.Error = runErr.Error()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.NotifyTimeout)
		defer cancel()
		if _, err := m.cfg.Notifier.Notify(ctx, n); err != nil {
			slog.Warn("Run outcome notification not delivered", "run_id", runID, "error", err)
		}
	}()
}

// pruneStatuses forgets finished runs older than the retention window.
func (m *RunManager) pruneStatuses() {
	cutoff := m.cfg.Clock.Now().Add(-m.cfg.StatusRetention)
	for _, s := range m.statuses.List() {
		if s.FinishedAt != nil && s.FinishedAt.Before(cutoff) {
			m.statuses.Delete(s.RunID)
		}
	}
}
