package throttle

import "sync/atomic"

// tracker counts in-flight tasks for a single Run and keeps the highest
// value observed.
type tracker struct {
	inflight  atomic.Int64
	highWater atomic.Int64
}

func (t *tracker) start() {
	n := t.inflight.Add(1)
	for {
		hw := t.highWater.Load()
		if n <= hw || t.highWater.CompareAndSwap(hw, n) {
			return
		}
	}
}

func (t *tracker) done() {
	t.inflight.Add(-1)
}
