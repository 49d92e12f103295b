package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dandantas/pijob/internal/compute"
	"github.com/dandantas/pijob/internal/webhook"
)

func event(job string, i int, v float64) compute.ProgressEvent {
	return compute.ProgressEvent{JobName: job, Iteration: i, Value: v, Timestamp: time.Unix(int64(i), 0)}
}

func TestMulti_FansOutInOrder(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	sink := Multi(a, nil, b)

	sink.Observe(event("pi", 0, 4))
	sink.Observe(event("pi", 1, 2.6666))

	assert.Equal(t, a.Events(), b.Events())
	assert.Equal(t, 2, a.Len())
	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, 1, last.Iteration)
}

func TestRecorder_Empty(t *testing.T) {
	_, ok := NewRecorder().Last()
	assert.False(t, ok)
}

func TestLogSink_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewLogSink(logger, slog.LevelInfo).Observe(event("pi", 2, 3.4666))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Job progress", line["msg"])
	assert.Equal(t, "pi", line["job_name"])
	assert.Equal(t, float64(3), line["iteration"])
	assert.InDelta(t, 3.4666, line["value"], 1e-9)
}

type blockingSink struct {
	release chan struct{}
	rec     *Recorder
}

func (s *blockingSink) Observe(e compute.ProgressEvent) {
	<-s.release
	s.rec.Observe(e)
}

func TestAsync_DoesNotBlockOnSlowSink(t *testing.T) {
	slow := &blockingSink{release: make(chan struct{}), rec: NewRecorder()}
	async := NewAsync(slow, 2)

	start := time.Now()
	for i := 0; i < 10; i++ {
		async.Observe(event("async-drop", i, float64(i)))
	}
	assert.Less(t, time.Since(start), time.Second)

	close(slow.release)
	async.Close()

	delivered := slow.rec.Len()
	assert.GreaterOrEqual(t, delivered, 2)
	assert.Equal(t, int64(10-delivered), async.Dropped())
	assert.Equal(t, float64(async.Dropped()), testutil.ToFloat64(droppedEvents.WithLabelValues("async-drop")))
}

func TestAsync_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	rec := NewRecorder()
	async := NewAsync(rec, 100)
	for i := 0; i < 50; i++ {
		async.Observe(event("async-closed", i, float64(i)))
	}
	async.Close()
	async.Close()
	async.Observe(event("async-closed", 50, 50))

	events := rec.Events()
	require.Len(t, events, 50)
	for i, e := range events {
		assert.Equal(t, i, e.Iteration)
	}
	assert.Equal(t, int64(1), async.Dropped())
	assert.Equal(t, float64(1), testutil.ToFloat64(droppedEvents.WithLabelValues("async-closed")))
}

func TestMetricsSink(t *testing.T) {
	sink := NewMetricsSink()
	sink.Observe(event("metrics-test", 0, 4))
	sink.Observe(event("metrics-test", 1, 2.5))
	sink.RecordOutcome(compute.Outcome{JobName: "metrics-test", State: compute.StateCancelled, Elapsed: time.Second})

	assert.Equal(t, 2.0, testutil.ToFloat64(stepsCompleted.WithLabelValues("metrics-test")))
	assert.Equal(t, 2.5, testutil.ToFloat64(currentValue.WithLabelValues("metrics-test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(runsFinished.WithLabelValues("metrics-test", "cancelled")))
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []webhook.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n webhook.Notification) (*webhook.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return &webhook.Delivery{Status: "delivered"}, nil
}

func TestWebhookSink_ForwardsEveryNth(t *testing.T) {
	n := &fakeNotifier{}
	sink := NewWebhookSink(n, "run-1", 3, time.Second)

	for i := 0; i < 7; i++ {
		sink.Observe(event("pi", i, float64(i)))
	}

	require.Len(t, n.sent, 2)
	assert.Equal(t, webhook.EventProgress, n.sent[0].Event)
	assert.Equal(t, "run-1", n.sent[0].RunID)
	assert.Equal(t, 2, n.sent[0].Progress.Iteration)
	assert.Equal(t, 5, n.sent[1].Progress.Iteration)
}
