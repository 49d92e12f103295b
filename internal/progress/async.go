package progress

import (
	"sync"
	"sync/atomic"

	"github.com/dandantas/pijob/internal/compute"
)

// Async decouples a job from a slow sink. Observe never blocks: when the
// buffer is full the event is dropped and counted.
type Async struct {
	next    compute.ProgressSink
	events  chan compute.ProgressEvent
	dropped atomic.Int64
	closed  atomic.Bool
	mu      sync.RWMutex
	done    chan struct{}
}

// NewAsync starts a goroutine delivering events to next. Call Close to
// drain and stop it.
func NewAsync(next compute.ProgressSink, buffer int) *Async {
	if buffer < 1 {
		buffer = 1
	}
	a := &Async{
		next:   next,
		events: make(chan compute.ProgressEvent, buffer),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) Observe(event compute.ProgressEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed.Load() {
		a.drop(event)
		return
	}
	select {
	case a.events <- event:
	default:
		a.drop(event)
	}
}

func (a *Async) drop(event compute.ProgressEvent) {
	a.dropped.Add(1)
	droppedEvents.WithLabelValues(event.JobName).Inc()
}

// Dropped returns how many events were discarded.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting events and waits until buffered ones are delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed.Swap(true) {
		a.mu.Unlock()
		<-a.done
		return
	}
	close(a.events)
	a.mu.Unlock()
	<-a.done
}

func (a *Async) loop() {
	defer close(a.done)
	for event := range a.events {
		a.next.Observe(event)
	}
}
