package progress

import (
	"sync"

	"github.com/dandantas/pijob/internal/compute"
)

// Recorder keeps every observed event in memory.
type Recorder struct {
	mu     sync.RWMutex
	events []compute.ProgressEvent
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Observe(event compute.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []compute.ProgressEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]compute.ProgressEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent event.
func (r *Recorder) Last() (compute.ProgressEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.events) == 0 {
		return compute.ProgressEvent{}, false
	}
	return r.events[len(r.events)-1], true
}

func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}
