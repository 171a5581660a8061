package server

import "sync/atomic"

// Limiter bounds the number of in-flight requests with a lock-free counter.
// Acquire and release are paired per accepted request; release must run
// exactly once on every exit path.
type Limiter struct {
	ceiling  int64
	inFlight atomic.Int64
}

// NewLimiter builds a limiter with the given ceiling.
func NewLimiter(ceiling int) *Limiter {
	return &Limiter{ceiling: int64(ceiling)}
}

// Acquire reserves a slot, reporting false when the ceiling is reached.
func (l *Limiter) Acquire() bool {
	if l.inFlight.Add(1) > l.ceiling {
		l.inFlight.Add(-1)
		return false
	}
	return true
}

// Release frees a previously acquired slot.
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
}

// InFlight returns the current number of active requests.
func (l *Limiter) InFlight() int64 {
	return l.inFlight.Load()
}
