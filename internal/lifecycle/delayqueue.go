package lifecycle

import (
	"sync"
	"time"
)

// delayQueue schedules deferred retry submissions with time.AfterFunc
// rather than a time wheel or min-heap: retry volume is bounded by the
// number of in-flight failing jobs, never large enough to justify a
// wheel.
type delayQueue struct {
	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	stopped bool
}

func newDelayQueue() *delayQueue {
	return &delayQueue{timers: make(map[*time.Timer]struct{})}
}

// after schedules fn to run after d, unless the queue has been stopped in
// the meantime.
func (q *delayQueue) after(d time.Duration, fn func()) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		q.mu.Lock()
		delete(q.timers, t)
		stopped := q.stopped
		q.mu.Unlock()
		if !stopped {
			fn()
		}
	})
	q.timers[t] = struct{}{}
	q.mu.Unlock()
}

// stop cancels every pending timer. Already-fired callbacks that are
// mid-flight are not interrupted, but none will run after stop returns.
func (q *delayQueue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	for t := range q.timers {
		t.Stop()
	}
	q.timers = make(map[*time.Timer]struct{})
}
