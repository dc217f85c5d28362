package monitor

import (
	"sync"
	"time"
)

// Session tracks how long a monitor has been actively watching its window,
// both for the current stretch and accumulated over its lifetime. The zero
// value is ready to use and safe for concurrent use.
type Session struct {
	mu          sync.Mutex
	active      bool
	start       time.Time
	last        time.Duration
	accumulated time.Duration
}

// OnTick records whether the monitor was active at now.
func (s *Session) OnTick(active bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		if !s.active { // off -> on
			s.active = true
			s.start = now
			s.last = 0
		}
		s.last = now.Sub(s.start)
	} else if s.active { // on -> off
		s.last = now.Sub(s.start)
		s.accumulated += s.last
		s.active = false
	}
}

// Values returns the current (or most recent) stretch and the accumulated
// total, which includes the ongoing stretch.
func (s *Session) Values() (session, total time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session = s.last
	total = s.accumulated
	if s.active {
		total += session
	}
	return
}
