package progress

import (
	"context"
	"time"

	"github.com/dandantas/pijob/internal/compute"
	"github.com/dandantas/pijob/internal/webhook"
)

// Notifier delivers webhook notifications.
type Notifier interface {
	Notify(ctx context.Context, n webhook.Notification) (*webhook.Delivery, error)
}

// WebhookSink forwards every Nth progress event of a run. Delivery is
// synchronous, so wrap it with NewAsync before handing it to a job.
type WebhookSink struct {
	notifier Notifier
	runID    string
	every    int
	timeout  time.Duration
}

// NewWebhookSink forwards events whose 1-based step number is a multiple
// of every. every < 1 forwards every event.
func NewWebhookSink(notifier Notifier, runID string, every int, timeout time.Duration) *WebhookSink {
	if every < 1 {
		every = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{notifier: notifier, runID: runID, every: every, timeout: timeout}
}

func (s *WebhookSink) Observe(event compute.ProgressEvent) {
	if (event.Iteration+1)%s.every != 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	e := event
	// Failures are logged by the dispatcher and never reach the job.
	_, _ = s.notifier.Notify(ctx, webhook.Notification{
		Event:     webhook.EventProgress,
		RunID:     s.runID,
		JobName:   event.JobName,
		Timestamp: event.Timestamp,
		Progress:  &e,
	})
}
