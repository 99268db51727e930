package exercise

import (
	"sync"
	"time"
)

// Stopwatch is the attempt timer shown to the operator. Event timestamps
// are read from it, so pausing it also pauses event time.
type Stopwatch struct {
	now func() time.Time

	mu      sync.Mutex
	running bool
	since   time.Time
	acc     time.Duration
}

func NewStopwatch(now func() time.Time) *Stopwatch {
	if now == nil {
		now = time.Now
	}
	return &Stopwatch{now: now}
}

// Restart zeroes the watch and starts it.
func (s *Stopwatch) Restart() {
	s.mu.Lock()
	s.acc = 0
	s.running = true
	s.since = s.now()
	s.mu.Unlock()
}

// Pause stops the watch; false if it was not running.
func (s *Stopwatch) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.acc += s.now().Sub(s.since)
	s.running = false
	return true
}

// Resume restarts a paused watch; false if it was running.
func (s *Stopwatch) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.since = s.now()
	return true
}

// Reset zeroes the elapsed time without changing whether it runs.
func (s *Stopwatch) Reset() {
	s.mu.Lock()
	s.acc = 0
	s.since = s.now()
	s.mu.Unlock()
}

// Stop pauses and zeroes the watch.
func (s *Stopwatch) Stop() {
	s.mu.Lock()
	s.acc = 0
	s.running = false
	s.mu.Unlock()
}

func (s *Stopwatch) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Stopwatch) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.acc
	if s.running {
		d += s.now().Sub(s.since)
	}
	return d
}
