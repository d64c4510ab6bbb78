package testutil

import (
	"slices"
	"sync"
	"time"
)

// ManualScheduler is a fake timer source for debounce tests. Timers fire
// only when Advance moves the virtual clock past their deadline.
//
// Pass the Schedule method value where an engine.Scheduler is expected.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run on
// the goroutine that calls Advance, outside the internal lock.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*ManualTimer
}

// ManualTimer is a timer created by ManualScheduler.
type ManualTimer struct {
	s        *ManualScheduler
	deadline time.Duration
	seq      int
	f        func()
	stopped  bool
	fired    bool
}

// NewManualScheduler returns a scheduler whose virtual clock starts at 0.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// AfterFunc registers f to run once d has elapsed on the virtual clock.
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) *ManualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &ManualTimer{s: s, deadline: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Schedule is AfterFunc returning the timer's Stop method.
func (s *ManualScheduler) Schedule(d time.Duration, f func()) func() bool {
	return s.AfterFunc(d, f).Stop
}

// Stop cancels the timer. It reports whether the call stopped it before it
// fired.
func (t *ManualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d and fires every due timer in
// deadline order. It returns the number of timers fired.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	s.now += d
	var due []*ManualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.deadline <= s.now {
			t.fired = true
			due = append(due, t)
		}
	}
	s.timers = slices.DeleteFunc(s.timers, func(t *ManualTimer) bool { return t.stopped || t.fired })
	s.mu.Unlock()

	slices.SortFunc(due, func(a, b *ManualTimer) int {
		if a.deadline != b.deadline {
			return int(a.deadline - b.deadline)
		}
		return a.seq - b.seq
	})
	for _, t := range due {
		t.f()
	}
	return len(due)
}

// Pending returns the number of armed timers.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Now returns the virtual time elapsed since creation.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}
