package broadcast

import (
	"sync"
	"time"
)

// Sink is the append-only in-memory outcome log. It is bounded: once
// max entries are reached the oldest are dropped, so an unattended
// repeat-broadcast run cannot grow memory without limit.
type Sink struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

func NewSink(max int) *Sink {
	if max <= 0 {
		max = defaultMaxLogEntries
	}
	return &Sink{max: max}
}

func (s *Sink) Append(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.max; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
}

// Snapshot returns a copy, safe to read while appends continue.
func (s *Sink) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// SetMax adjusts the bound (hot reload); existing overflow is trimmed.
func (s *Sink) SetMax(max int) {
	if max <= 0 {
		max = defaultMaxLogEntries
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.max = max
	if over := len(s.entries) - s.max; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
}
