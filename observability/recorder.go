package observability

import (
	"context"
	"sync"
)

// Recorder is an Observer that retains the most recent events in a capped
// ring buffer. It backs audit surfaces that need to show "what happened to
// my data recently" without an external log pipeline, and doubles as a test
// capture. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	cap    int
	events []Event
}

// NewRecorder creates a Recorder retaining up to capacity events. A
// capacity of 0 or less retains everything.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{cap: capacity}
}

func (r *Recorder) OnEvent(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
	if r.cap > 0 && len(r.events) > r.cap {
		r.events = r.events[len(r.events)-r.cap:]
	}
}

// Events returns a snapshot of the retained events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset discards all retained events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
