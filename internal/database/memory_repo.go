package database

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/dandantas/pijob/internal/model"
)

// MemoryRunRepository keeps run history in process. It is used when no
// MongoDB URI is configured and in tests.
type MemoryRunRepository struct {
	mu      sync.RWMutex
	records []model.RunRecord
	byRunID map[string]int
}

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{byRunID: make(map[string]int)}
}

func (r *MemoryRunRepository) Create(_ context.Context, record *model.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byRunID[record.RunID]; exists {
		return errors.Errorf("run record %s already exists", record.RunID)
	}
	r.byRunID[record.RunID] = len(r.records)
	r.records = append(r.records, *record)
	return nil
}

func (r *MemoryRunRepository) GetByRunID(_ context.Context, runID string) (*model.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byRunID[runID]
	if !ok {
		return nil, errors.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	record := r.records[i]
	return &record, nil
}

func (r *MemoryRunRepository) List(_ context.Context, filter RunFilter, page, limit int) ([]model.RunRecord, int64, error) {
	r.mu.RLock()
	matched := make([]model.RunRecord, 0, len(r.records))
	for _, rec := range r.records {
		if filter.matches(rec) {
			matched = append(matched, rec)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].FinishedAt.After(matched[j].FinishedAt) })

	total := int64(len(matched))
	if page < 1 || limit < 1 || page-1 > (math.MaxInt-limit)/limit {
		return []model.RunRecord{}, total, nil
	}
	skip := (page - 1) * limit
	if skip >= len(matched) {
		return []model.RunRecord{}, total, nil
	}
	end := skip + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[skip:end], total, nil
}

func (f RunFilter) matches(rec model.RunRecord) bool {
	if f.JobName != "" && rec.JobName != f.JobName {
		return false
	}
	if f.Status != "" && string(rec.Status) != f.Status {
		return false
	}
	if !f.From.IsZero() && rec.FinishedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && rec.FinishedAt.After(f.To) {
		return false
	}
	return true
}
