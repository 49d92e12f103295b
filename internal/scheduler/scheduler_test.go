package scheduler

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dandantas/pijob/internal/compute"
	"github.com/dandantas/pijob/internal/model"
	"github.com/dandantas/pijob/internal/service"
)

func TestParseEntries(t *testing.T) {
	entries, err := ParseEntries(" hourly-pi|1000|@hourly ; nightly|50|0 2 * * *|nilakantha;")
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Name: "hourly-pi", Iterations: 1000, Spec: "@hourly"},
		{Name: "nightly", Iterations: 50, Spec: "0 2 * * *", Series: "nilakantha"},
	}, entries)

	entries, err = ParseEntries("")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseEntries_Invalid(t *testing.T) {
	tests := map[string]string{
		"too few fields":  "pi|10",
		"bad iterations":  "pi|ten|@hourly",
		"negative":        "pi|-1|@hourly",
		"bad cron":        "pi|10|every hour",
		"unknown series":  "pi|10|@hourly|madhava",
		"missing name":    "|10|@hourly",
		"too many fields": "pi|10|@hourly|leibniz|extra",
		"duplicate name":  "pi|10|@hourly;pi|20|@daily",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEntries(raw)
			assert.Error(t, err)
		})
	}
}

type fakeStarter struct {
	mu      sync.Mutex
	active  map[string]bool
	started []compute.Request
	opts    []service.StartOptions
	err     error
}

func (f *fakeStarter) Start(req compute.Request, opts service.StartOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if opts.Exclusive && f.active[req.Name] {
		return "", errors.Wrapf(service.ErrAlreadyRunning, "job %s", req.Name)
	}
	f.started = append(f.started, req)
	f.opts = append(f.opts, opts)
	return "run-id", nil
}

func TestScheduler_Trigger(t *testing.T) {
	starter := &fakeStarter{active: map[string]bool{"busy": true}}
	entries := []Entry{
		{Name: "pi", Iterations: 10, Spec: "@hourly", Series: "nilakantha"},
		{Name: "busy", Iterations: 10, Spec: "@hourly"},
	}
	s, err := NewScheduler(entries, starter)
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)

	s.trigger(entries[0])
	s.trigger(entries[1])

	require.Len(t, starter.started, 1)
	assert.Equal(t, compute.Request{Name: "pi", Iterations: 10}, starter.started[0])
	assert.Equal(t, model.TriggerSchedule, starter.opts[0].TriggeredBy)
	assert.Equal(t, "nilakantha", starter.opts[0].Series)
	assert.True(t, starter.opts[0].Exclusive)
	assert.NotEmpty(t, starter.opts[0].CorrelationID)
}

func TestScheduler_TriggerSurvivesStartErrors(t *testing.T) {
	starter := &fakeStarter{err: errors.Wrap(service.ErrAtCapacity, "limit is 1")}
	s, err := NewScheduler(nil, starter)
	require.NoError(t, err)

	assert.NotPanics(t, func() { s.trigger(Entry{Name: "pi", Iterations: 1, Spec: "@hourly"}) })
	assert.Empty(t, starter.started)
}
