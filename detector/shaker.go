package detector

import (
	"sync"
	"sync/atomic"
	"time"
)

// Shaker holds the transient shaking flag set by an alert.
//
// Each Start re-arms the clear timer, so overlapping alerts extend the shake
// instead of cutting it short.
type Shaker struct {
	shaking  atomic.Bool
	onChange func(bool)

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewShaker creates a shaker.
//
// Parameters:
//   - onChange: Called with the new value whenever the flag flips (may be nil)
//
// Returns:
//   - *Shaker: Idle shaker
func NewShaker(onChange func(bool)) *Shaker {
	return &Shaker{onChange: onChange}
}

// Start sets the flag and schedules it to clear after d.
func (s *Shaker) Start(d time.Duration) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(d, func() { s.clear(gen) })
	s.mu.Unlock()

	if !s.shaking.Swap(true) && s.onChange != nil {
		s.onChange(true)
	}
}

// Shaking reports whether the flag is set.
func (s *Shaker) Shaking() bool {
	return s.shaking.Load()
}

// Stop cancels any pending clear and drops the flag without notifying onChange.
func (s *Shaker) Stop() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.mu.Unlock()

	s.shaking.Store(false)
}

func (s *Shaker) clear(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	if s.shaking.Swap(false) && s.onChange != nil {
		s.onChange(false)
	}
}
