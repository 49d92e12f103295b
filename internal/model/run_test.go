package model

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dandantas/pijob/internal/compute"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRunStatusStore(t *testing.T) {
	store := NewRunStatusStore()
	store.Set(&RunStatus{RunID: "a", JobName: "first", State: compute.StateRunning, StartedAt: t0})
	store.Set(&RunStatus{RunID: "b", JobName: "second", State: compute.StateRunning, StartedAt: t0.Add(time.Minute)})

	ok := store.Update("a", func(s *RunStatus) { s.State = compute.StateCancelled })
	assert.True(t, ok)
	assert.False(t, store.Update("missing", func(*RunStatus) {}))

	got, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, compute.StateCancelled, got.State)

	got.State = compute.StateFailed
	again, _ := store.Get("a")
	assert.Equal(t, compute.StateCancelled, again.State, "Get must return a copy")

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].RunID)

	store.Delete("a")
	_, ok = store.Get("a")
	assert.False(t, ok)
}

func TestNewRunRecord(t *testing.T) {
	status := &RunStatus{
		RunID:         "run-1",
		CorrelationID: "corr-1",
		Series:        "leibniz",
		TriggeredBy:   TriggerAPI,
		StartedAt:     t0,
	}
	out := compute.Outcome{
		JobName:             "pi",
		Iterations:          10,
		IterationsCompleted: 3,
		FinalValue:          3.4666666667,
		Elapsed:             2500 * time.Millisecond,
		Cancelled:           true,
		State:               compute.StateCancelled,
	}

	rec := NewRunRecord(status, out, nil, t0.Add(3*time.Second))
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, "pi", rec.JobName)
	assert.Equal(t, int64(2500), rec.DurationMs)
	assert.Equal(t, compute.StateCancelled, rec.Status)
	assert.Empty(t, rec.Error)

	summary := rec.ToSummary()
	assert.Equal(t, "cancelled", summary.Status)
	assert.Equal(t, "2024-03-01T09:00:03Z", summary.FinishedAt)

	failed := NewRunRecord(status, compute.Outcome{JobName: "pi", State: compute.StateFailed}, errors.New("step 2: NaN"), t0)
	assert.Equal(t, "step 2: NaN", failed.Error)
}
