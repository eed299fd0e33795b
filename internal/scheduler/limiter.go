package scheduler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DispatchLimiter grants each worker its own token bucket for outbound
// dispatch RPCs (SPEC_FULL.md 4.6), so a worker that just returned from
// Suspect isn't flooded with every task that queued up while it was
// unreachable. Adapted from the teacher's scheduler/limiter.go
// TokenBucketLimiter: same per-key lazy-bucket map, generalized from a
// boolean Allow to a Reserve that reports the backoff delay so the
// dispatch loop can requeue instead of dropping.
type DispatchLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewDispatchLimiter creates a limiter granting r dispatches/sec per
// worker with burst b.
func NewDispatchLimiter(r float64, b int) *DispatchLimiter {
	return &DispatchLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(r),
		b:        b,
	}
}

func (l *DispatchLimiter) limiterFor(workerID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[workerID]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limiters[workerID] = lim
	}
	return lim
}

// Reserve reports whether a dispatch to workerID may proceed immediately.
// If not, it cancels the reservation and returns the delay the caller
// should wait before retrying.
func (l *DispatchLimiter) Reserve(workerID string) (allowed bool, delay time.Duration) {
	lim := l.limiterFor(workerID)
	res := lim.Reserve()
	d := res.Delay()
	if d > 0 {
		res.Cancel()
		return false, d
	}
	return true, 0
}
