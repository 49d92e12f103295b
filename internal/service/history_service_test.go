package service

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dandantas/pijob/internal/compute"
	"github.com/dandantas/pijob/internal/database"
	"github.com/dandantas/pijob/internal/model"
)

func TestHistoryService(t *testing.T) {
	store := database.NewMemoryRunRepository()
	ctx := context.Background()
	for i, state := range []compute.State{compute.StateCompleted, compute.StateCancelled, compute.StateCompleted} {
		require.NoError(t, store.Create(ctx, &model.RunRecord{
			RunID:      []string{"a", "b", "c"}[i],
			JobName:    "pi",
			Status:     state,
			FinishedAt: fixedTime.Add(time.Duration(i) * time.Hour),
		}))
	}
	svc := NewHistoryService(store)

	rec, err := svc.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, compute.StateCancelled, rec.Status)

	_, err = svc.Get(ctx, "zzz")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	summaries, total, err := svc.List(ctx, HistoryQuery{Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "c", summaries[0].RunID)
	assert.Equal(t, fixedTime.Add(2*time.Hour).Format(time.RFC3339), summaries[0].FinishedAt)

	summaries, _, err = svc.List(ctx, HistoryQuery{From: fixedTime.Add(30 * time.Minute).Format(time.RFC3339)})
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	_, _, err = svc.List(ctx, HistoryQuery{From: "yesterday"})
	assert.True(t, errors.Is(err, compute.ErrInvalidRequest))

	_, _, err = svc.List(ctx, HistoryQuery{Status: "running"})
	assert.True(t, errors.Is(err, compute.ErrInvalidRequest))

	_, _, err = svc.List(ctx, HistoryQuery{Page: 92233720368547760, Limit: 100})
	assert.True(t, errors.Is(err, compute.ErrInvalidRequest))

	summaries, total, err = svc.List(ctx, HistoryQuery{Page: 1000, Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Empty(t, summaries)
}
