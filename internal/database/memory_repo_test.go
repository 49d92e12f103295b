package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/dandantas/pijob/internal/compute"
	"github.com/dandantas/pijob/internal/model"
)

func seed(t *testing.T, repo *MemoryRunRepository) time.Time {
	t.Helper()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		status := compute.StateCompleted
		if i%2 == 1 {
			status = compute.StateCancelled
		}
		require.NoError(t, repo.Create(context.Background(), &model.RunRecord{
			RunID:      fmt.Sprintf("run-%d", i),
			JobName:    fmt.Sprintf("job-%d", i%2),
			Status:     status,
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	return base
}

func TestMemoryRunRepository_GetByRunID(t *testing.T) {
	repo := NewMemoryRunRepository()
	seed(t, repo)

	rec, err := repo.GetByRunID(context.Background(), "run-3")
	require.NoError(t, err)
	assert.Equal(t, "job-1", rec.JobName)

	_, err = repo.GetByRunID(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestMemoryRunRepository_RejectsDuplicates(t *testing.T) {
	repo := NewMemoryRunRepository()
	seed(t, repo)

	err := repo.Create(context.Background(), &model.RunRecord{RunID: "run-0"})
	assert.Error(t, err)
}

func TestMemoryRunRepository_List(t *testing.T) {
	repo := NewMemoryRunRepository()
	base := seed(t, repo)
	ctx := context.Background()

	all, total, err := repo.List(ctx, RunFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, all, 5)
	assert.Equal(t, "run-4", all[0].RunID)

	page2, total, err := repo.List(ctx, RunFilter{}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Equal(t, []string{"run-2", "run-1"}, []string{page2[0].RunID, page2[1].RunID})

	cancelled, total, err := repo.List(ctx, RunFilter{Status: "cancelled"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, rec := range cancelled {
		assert.Equal(t, compute.StateCancelled, rec.Status)
	}

	windowed, _, err := repo.List(ctx, RunFilter{JobName: "job-0", From: base.Add(time.Minute)}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, windowed, 2)

	empty, total, err := repo.List(ctx, RunFilter{}, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Empty(t, empty)
}

func TestMemoryRunRepository_ListOverflowingPage(t *testing.T) {
	repo := NewMemoryRunRepository()
	seed(t, repo)

	var (
		records []model.RunRecord
		total   int64
		err     error
	)
	require.NotPanics(t, func() {
		records, total, err = repo.List(context.Background(), RunFilter{}, 92233720368547760, 100)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Empty(t, records)
}

func TestRunFilter_BSON(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := RunFilter{JobName: "pi", Status: "completed", From: from}.toBSON()

	assert.Equal(t, "pi", f["job_name"])
	assert.Equal(t, "completed", f["status"])
	window, ok := f["finished_at"].(bson.M)
	require.True(t, ok, "finished_at filter has type %T", f["finished_at"])
	assert.Equal(t, from, window["$gte"])
	assert.NotContains(t, window, "$lte")
}
