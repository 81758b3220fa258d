// Package transporttest provides an instrumented in-memory transport for
// tests.
//
// [Fake] serves configured bodies after configurable delays and records how
// many reads were in flight at once, so tests can assert concurrency bounds
// without a network.
package transporttest

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"
)

type entry struct {
	body  []byte
	delay time.Duration
	err   error
}

// Fake is an in-memory transport. Unknown identifiers fail with an error
// wrapping fs.ErrNotExist.
type Fake struct {
	mu      sync.Mutex
	entries map[string]entry
	calls   []string

	inflight  atomic.Int64
	highWater atomic.Int64
	cancelled atomic.Int64
}

// NewFake creates an empty [Fake].
func NewFake() *Fake {
	return &Fake{entries: make(map[string]entry)}
}

// Set serves body for id after delay.
func (f *Fake) Set(id, body string, delay time.Duration) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[id] = entry{body: []byte(body), delay: delay}
	return f
}

// Fail makes reads of id return err after delay.
func (f *Fake) Fail(id string, err error, delay time.Duration) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[id] = entry{err: err, delay: delay}
	return f
}

// ReadAll implements the transport contract.
func (f *Fake) ReadAll(ctx context.Context, id string) ([]byte, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		hw := f.highWater.Load()
		if n <= hw || f.highWater.CompareAndSwap(hw, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, id)
	e, ok := f.entries[id]
	f.mu.Unlock()

	if e.delay > 0 {
		timer := time.NewTimer(e.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			f.cancelled.Add(1)
			return nil, ctx.Err()
		}
	}

	if !ok {
		return nil, fmt.Errorf("fake %s: %w", id, fs.ErrNotExist)
	}
	if e.err != nil {
		return nil, e.err
	}
	return append([]byte(nil), e.body...), nil
}

// HighWater returns the largest number of concurrent reads observed.
func (f *Fake) HighWater() int {
	return int(f.highWater.Load())
}

// Inflight returns the number of reads currently in progress.
func (f *Fake) Inflight() int {
	return int(f.inflight.Load())
}

// Cancelled returns how many reads ended because their context was done.
func (f *Fake) Cancelled() int {
	return int(f.cancelled.Load())
}

// Calls returns the identifiers read so far, in call order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
