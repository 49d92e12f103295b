// Package webhook delivers run notifications to an HTTP receiver with
// bounded redelivery and a circuit breaker.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/dandantas/pijob/internal/compute"
)

// ErrCircuitOpen is returned when delivery is skipped because the receiver
// has been failing.
var ErrCircuitOpen = errors.New("webhook circuit breaker is open")

const (
	EventProgress = "run.progress"
	EventFinished = "run.finished"
)

// Notification is the JSON body POSTed to the receiver.
type Notification struct {
	Event     string                 `json:"event"`
	RunID     string                 `json:"run_id,omitempty"`
	JobName   string                 `json:"job_name"`
	Timestamp time.Time              `json:"timestamp"`
	Progress  *compute.ProgressEvent `json:"progress,omitempty"`
	Outcome   *compute.Outcome       `json:"outcome,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Attempt records one HTTP delivery attempt.
type Attempt struct {
	Number     int    `json:"number"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Delivery summarises every attempt made for one notification.
type Delivery struct {
	URL      string    `json:"url"`
	Event    string    `json:"event"`
	Attempts []Attempt `json:"attempts"`
	Status   string    `json:"status"` // "delivered", "failed", "skipped"
}

// Config configures a Dispatcher.
type Config struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Retry   RetryPolicy
	Breaker BreakerConfig
	Clock   clock.Clock
}

// Dispatcher POSTs notifications to a single URL.
type Dispatcher struct {
	url     string
	headers map[string]string
	client  *http.Client
	policy  RetryPolicy
	breaker *CircuitBreaker
	clock   clock.Clock
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Breaker == (BreakerConfig{}) {
		cfg.Breaker = DefaultBreakerConfig()
	}
	return &Dispatcher{
		url:     cfg.URL,
		headers: cfg.Headers,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		policy:  cfg.Retry.withDefaults(),
		breaker: NewCircuitBreaker(cfg.Breaker, cfg.Clock),
		clock:   cfg.Clock,
	}
}

// URL returns the receiver address.
func (d *Dispatcher) URL() string { return d.url }

// BreakerState returns the circuit breaker state name.
func (d *Dispatcher) BreakerState() string { return d.breaker.State().String() }

// Notify delivers n, retrying per the dispatcher's policy. The returned
// Delivery is always non-nil.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) (*Delivery, error) {
	if n.Timestamp.IsZero() {
		n.Timestamp = d.clock.Now().UTC()
	}
	delivery := &Delivery{URL: d.url, Event: n.Event, Attempts: make([]Attempt, 0, d.policy.MaxAttempts)}

	if !d.breaker.Allow() {
		slog.Warn("Circuit breaker is open, skipping webhook delivery",
			"webhook_url", d.url,
			"event", n.Event,
			"job_name", n.JobName,
		)
		delivery.Status = "skipped"
		return delivery, ErrCircuitOpen
	}

	body, err := json.Marshal(n)
	if err != nil {
		delivery.Status = "failed"
		return delivery, errors.Wrap(err, "failed to marshal notification")
	}

	for attempt := 1; ; attempt++ {
		result, err := d.deliver(ctx, body)
		result.Number = attempt
		delivery.Attempts = append(delivery.Attempts, result)

		if err == nil {
			d.breaker.RecordSuccess()
			delivery.Status = "delivered"
			slog.Debug("Webhook delivered",
				"webhook_url", d.url,
				"event", n.Event,
				"run_id", n.RunID,
				"attempt", attempt,
			)
			return delivery, nil
		}

		if !d.policy.Retryable(attempt, result.StatusCode, err) {
			d.breaker.RecordFailure()
			delivery.Status = "failed"
			slog.Error("Webhook delivery failed",
				"webhook_url", d.url,
				"event", n.Event,
				"run_id", n.RunID,
				"attempts", attempt,
				"status_code", result.StatusCode,
				"error", err,
			)
			return delivery, errors.Wrapf(err, "webhook delivery failed after %d attempts", attempt)
		}

		delay := d.policy.Delay(attempt)
		slog.Warn("Webhook delivery failed, retrying",
			"webhook_url", d.url,
			"event", n.Event,
			"attempt", attempt,
			"next_retry_ms", delay.Milliseconds(),
			"error", err,
		)

		timer := d.clock.NewTimer(delay)
		select {
		case <-timer.C():
		case <-ctx.Done():
			timer.Stop()
			delivery.Status = "failed"
			return delivery, ctx.Err()
		}
	}
}

// deliver performs one POST.
func (d *Dispatcher) deliver(ctx context.Context, body []byte) (Attempt, error) {
	start := d.clock.Now()
	var attempt Attempt

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		attempt.Error = err.Error()
		return attempt, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	attempt.DurationMs = d.clock.Since(start).Milliseconds()
	if err != nil {
		attempt.Error = err.Error()
		return attempt, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	attempt.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		attempt.Error = fmt.Sprintf("webhook returned status %d", resp.StatusCode)
		return attempt, errors.New(attempt.Error)
	}
	return attempt, nil
}
