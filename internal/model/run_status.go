package model

import (
	"sort"
	"sync"
	"time"

	"github.com/dandantas/pijob/internal/compute"
)

// RunStatus is the live view of a run held by the run manager.
type RunStatus struct {
	RunID         string                 `json:"run_id"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	JobName       string                 `json:"job_name"`
	Series        string                 `json:"series"`
	Iterations    int                    `json:"iterations"`
	State         compute.State          `json:"state"`
	TriggeredBy   string                 `json:"triggered_by"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    *time.Time             `json:"finished_at,omitempty"`
	LastProgress  *compute.ProgressEvent `json:"last_progress,omitempty"`
	Outcome       *compute.Outcome       `json:"outcome,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// RunStatusStore is an in-memory, concurrency-safe index of run statuses.
// Get and List return shallow copies, so Update callbacks must replace
// pointer fields rather than mutate what they point to.
type RunStatusStore struct {
	mu   sync.RWMutex
	runs map[string]*RunStatus
}

func NewRunStatusStore() *RunStatusStore {
	return &RunStatusStore{
		runs: make(map[string]*RunStatus),
	}
}

func (s *RunStatusStore) Set(status *RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[status.RunID] = status
}

// Update applies fn to the stored status under the write lock.
func (s *RunStatusStore) Update(runID string, fn func(*RunStatus)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.runs[runID]
	if !ok {
		return false
	}
	fn(status)
	return true
}

func (s *RunStatusStore) Get(runID string) (RunStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.runs[runID]
	if !ok {
		return RunStatus{}, false
	}
	return *status, true
}

// List returns all statuses, newest first.
func (s *RunStatusStore) List() []RunStatus {
	s.mu.RLock()
	out := make([]RunStatus, 0, len(s.runs))
	for _, status := range s.runs {
		out = append(out, *status)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (s *RunStatusStore) Delete(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}
