package frame

import (
	"sync"
	"time"
)

// defaultRateWindow is the number of inter-event deltas the moving average
// covers.
const defaultRateWindow = 30

// rateTracker estimates an events-per-second figure from a sliding window of
// inter-event time deltas. The reported rate is the reciprocal of the mean
// delta; it reacts quickly to bursts without needing a background timer.
type rateTracker struct {
	mu     sync.Mutex
	window int
	deltas []time.Duration
	next   int
	filled int
	sum    time.Duration
	last   time.Time
}

func newRateTracker(window int) *rateTracker {
	if window <= 0 {
		window = defaultRateWindow
	}
	return &rateTracker{
		window: window,
		deltas: make([]time.Duration, window),
	}
}

// Mark records one event at time now. The first event after a reset only
// seeds the timestamp; rates are computed from subsequent deltas.
func (r *rateTracker) Mark(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.last.IsZero() {
		r.last = now
		return
	}
	delta := now.Sub(r.last)
	if delta < 0 {
		delta = 0
	}
	r.last = now

	r.sum -= r.deltas[r.next]
	r.deltas[r.next] = delta
	r.sum += delta
	r.next = (r.next + 1) % r.window
	if r.filled < r.window {
		r.filled++
	}
}

// PerSecond returns the approximate event rate in events per second, or 0
// before two events have been observed.
func (r *rateTracker) PerSecond() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.filled == 0 || r.sum <= 0 {
		return 0
	}
	mean := float64(r.sum) / float64(r.filled)
	return float64(time.Second) / mean
}

// Reset forgets all samples and the last-event timestamp.
func (r *rateTracker) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.deltas {
		r.deltas[i] = 0
	}
	r.next = 0
	r.filled = 0
	r.sum = 0
	r.last = time.Time{}
}
