// Package progress carries fractional progress (0.0 to 1.0) from long
// running work to whoever renders it.
package progress

import (
	"sync"
	"time"
)

// Func receives a completion fraction in [0, 1].
type Func func(float64)

// Noop discards progress.
func Noop(float64) {}

// OrNoop returns fn, or Noop when fn is nil.
func OrNoop(fn Func) Func {
	if fn == nil {
		return Noop
	}
	return fn
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// Steps splits a progress range into a fixed number of equal units.
// Report forwards progress within the current unit; Advance completes it.
type Steps struct {
	fn    Func
	count int
	step  int
}

// NewSteps divides fn's range into count units. A count below one is
// treated as one.
func NewSteps(count int, fn Func) *Steps {
	if count < 1 {
		count = 1
	}
	return &Steps{fn: OrNoop(fn), count: count}
}

// Report forwards p, the progress within the current unit.
func (s *Steps) Report(p float64) {
	s.fn(clamp((float64(s.step) + clamp(p)) / float64(s.count)))
}

// Advance marks the current unit complete and moves to the next one.
func (s *Steps) Advance() {
	s.Report(1)
	if s.step < s.count {
		s.step++
	}
}

// Func returns Report as a Func so a unit can be handed to nested work.
func (s *Steps) Func() Func {
	return s.Report
}

// Monotonic wraps fn so that it only ever sees clamped, non-decreasing
// values. Sub-steps that restart from zero cannot move a bar backwards.
func Monotonic(fn Func) Func {
	fn = OrNoop(fn)
	var (
		mu   sync.Mutex
		last = -1.0
	)
	return func(p float64) {
		p = clamp(p)
		mu.Lock()
		if p <= last {
			mu.Unlock()
			return
		}
		last = p
		mu.Unlock()
		fn(p)
	}
}

// Throttle wraps fn so that intermediate values are delivered at most once
// per interval. Completion (1.0) is always delivered.
func Throttle(fn Func, interval time.Duration) Func {
	fn = OrNoop(fn)
	var (
		mu   sync.Mutex
		last time.Time
	)
	return func(p float64) {
		mu.Lock()
		now := time.Now()
		if p < 1 && !last.IsZero() && now.Sub(last) < interval {
			mu.Unlock()
			return
		}
		last = now
		mu.Unlock()
		fn(p)
	}
}
