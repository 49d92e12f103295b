package service

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/dandantas/pijob/internal/compute"
	"github.com/dandantas/pijob/internal/database"
	"github.com/dandantas/pijob/internal/model"
)

// HistoryService answers queries over finished runs.
type HistoryService struct {
	store HistoryStore
}

func NewHistoryService(store HistoryStore) *HistoryService {
	return &HistoryService{store: store}
}

// Get returns the record of a finished run.
func (s *HistoryService) Get(ctx context.Context, runID string) (*model.RunRecord, error) {
	rec, err := s.store.GetByRunID(ctx, runID)
	if errors.Is(err, database.ErrRunNotFound) {
		return nil, errors.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	return rec, err
}

// HistoryQuery filters a history listing. From and To are RFC 3339.
type HistoryQuery struct {
	JobName string
	Status  string
	From    string
	To      string
	Page    int
	Limit   int
}

// List returns one page of run summaries and the total match count.
func (s *HistoryService) List(ctx context.Context, q HistoryQuery) ([]model.RunSummary, int64, error) {
	filter := database.RunFilter{JobName: q.JobName, Status: q.Status}

	if q.Status != "" && !compute.State(q.Status).Terminal() {
		return nil, 0, errors.Wrapf(compute.ErrInvalidRequest, "unknown status %q", q.Status)
	}
	var err error
	if filter.From, err = parseTime(q.From); err != nil {
		return nil, 0, errors.Wrap(compute.ErrInvalidRequest, "from: "+err.Error())
	}
	if filter.To, err = parseTime(q.To); err != nil {
		return nil, 0, errors.Wrap(compute.ErrInvalidRequest, "to: "+err.Error())
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return nil, 0, errors.Wrapf(compute.ErrInvalidRequest, "page %d is out of range", q.Page)
	}

	records, total, err := s.store.List(ctx, filter, q.Page, q.Limit)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]model.RunSummary, len(records))
	for i := range records {
		summaries[i] = records[i].ToSummary()
	}
	return summaries, total, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
