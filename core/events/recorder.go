package events

import "sync"

// Recorder retains the most recent events in memory so read surfaces can serve
// an audit trail without a dedicated indexer. Oldest events are evicted first
// once the capacity is reached.
type Recorder struct {
	mu       sync.RWMutex
	capacity int
	buf      []Event
}

// NewRecorder creates a recorder retaining up to capacity events. A
// non-positive capacity falls back to a sensible default.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Recorder{capacity: capacity}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, evt)
	if len(r.buf) > r.capacity {
		r.buf = r.buf[len(r.buf)-r.capacity:]
	}
}

// Recent returns up to limit events, newest last. A non-positive limit returns
// everything retained.
func (r *Recorder) Recent(limit int) []Event {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.buf)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, n)
	copy(out, r.buf[len(r.buf)-n:])
	return out
}
