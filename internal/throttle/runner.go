package throttle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrNotDispatched marks tasks that were never started because the run was
// cancelled or a fail-fast run already saw a failure.
var ErrNotDispatched = errors.New("task not dispatched")

// ErrInvalidBudget is returned by [Runner.Run] when the budget is below 1.
var ErrInvalidBudget = errors.New("concurrency budget must be at least 1")

// Task performs the work for index i. The context is cancelled when the
// caller's context is cancelled or, in fail-fast mode, when another task fails.
type Task func(ctx context.Context, i int) error

// Hooks observe task lifecycle events. Nil fields are skipped.
//
// Hooks run on the task's goroutine and must be non-blocking.
type Hooks struct {
	// OnStart is called after a task takes a slot, before it runs.
	OnStart func()

	// OnDone is called after a task finishes, with its error.
	OnDone func(err error)
}

// Options configures a [Runner].
type Options struct {
	// Policy selects the drain policy. Empty means [Batch].
	Policy Policy

	// FailFast cancels in-flight tasks and stops dispatching after the first
	// task error.
	FailFast bool

	// Limiter, when set, is waited on before each dispatch.
	Limiter *rate.Limiter

	// Logger receives panic reports. Defaults to slog.Default().
	Logger *slog.Logger

	Hooks Hooks
}

// Report describes the outcome of a [Runner.Run] call.
type Report struct {
	// Errs holds one entry per task index; nil means the task succeeded.
	// Tasks that never started hold an error wrapping [ErrNotDispatched].
	Errs []error

	// HighWater is the largest number of tasks observed in flight at once.
	HighWater int

	// Dispatched is the number of tasks that were started.
	Dispatched int
}

// Failed reports whether any task returned an error or was not dispatched.
func (r Report) Failed() bool {
	for _, err := range r.Errs {
		if err != nil {
			return true
		}
	}
	return false
}

// Runner executes indexed tasks under a concurrency budget.
//
// A Runner holds no per-run state and is safe for concurrent use; each call
// to [Runner.Run] tracks its own in-flight count.
type Runner struct {
	policy   Policy
	failFast bool
	limiter  *rate.Limiter
	logger   *slog.Logger
	hooks    Hooks
}

// New creates a [Runner]. It returns an error for an unknown policy.
func New(opts Options) (*Runner, error) {
	policy := opts.Policy
	if policy == "" {
		policy = Batch
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("unknown drain policy %q", policy)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		policy:   policy,
		failFast: opts.FailFast,
		limiter:  opts.Limiter,
		logger:   logger,
		hooks:    opts.Hooks,
	}, nil
}

// Policy returns the runner's drain policy.
func (r *Runner) Policy() Policy {
	return r.policy
}

// run holds the state of a single Run call.
type run struct {
	*Runner
	task    Task
	errs    []error
	tracker tracker
	cancel  context.CancelFunc

	mu         sync.Mutex
	dispatched int
}

// Run executes tasks 0..n-1 with at most min(budget, n) in flight and blocks
// until every dispatched task has returned.
//
// Run never returns early: when ctx is cancelled it stops dispatching, waits
// for running tasks, and marks the remaining indexes with [ErrNotDispatched].
func (r *Runner) Run(ctx context.Context, budget, n int, task Task) (Report, error) {
	if budget < 1 {
		return Report{}, fmt.Errorf("%w, got %d", ErrInvalidBudget, budget)
	}
	if n == 0 {
		return Report{Errs: []error{}}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &run{
		Runner: r,
		task:   task,
		errs:   make([]error, n),
		cancel: cancel,
	}

	switch r.policy {
	case Rolling:
		st.rolling(ctx, budget, n)
	case Pool:
		st.pool(ctx, budget, n)
	default:
		st.batch(ctx, budget, n)
	}

	return Report{
		Errs:       st.errs,
		HighWater:  int(st.tracker.highWater.Load()),
		Dispatched: st.dispatched,
	}, nil
}

// batch dispatches windows of up to budget tasks and waits for each window
// to drain before starting the next.
func (st *run) batch(ctx context.Context, budget, n int) {
	for start := 0; start < n; start += budget {
		end := min(start+budget, n)

		var g errgroup.Group
		stopped := -1
		for i := start; i < end; i++ {
			if err := st.wait(ctx); err != nil {
				stopped = i
				break
			}
			st.spawn(ctx, &g, i)
		}
		_ = g.Wait() // drain point

		if stopped >= 0 {
			st.skip(ctx, stopped, n)
			return
		}
		if ctx.Err() != nil {
			st.skip(ctx, end, n)
			return
		}
	}
}

// rolling keeps up to budget tasks running, starting a new one whenever a
// slot is released.
func (st *run) rolling(ctx context.Context, budget, n int) {
	sem := semaphore.NewWeighted(int64(budget))

	var g errgroup.Group
	for i := 0; i < n; i++ {
		if err := st.wait(ctx); err != nil {
			st.skip(ctx, i, n)
			break
		}
		// Acquire blocks until a slot frees; taking the slot and registering
		// the task happen before the goroutine exists, so the count can
		// never exceed the semaphore size.
		if err := sem.Acquire(ctx, 1); err != nil {
			st.skip(ctx, i, n)
			break
		}
		idx := i
		st.markDispatched()
		g.Go(func() error {
			defer sem.Release(1)
			return st.exec(ctx, idx)
		})
	}
	_ = g.Wait()
}

// pool runs min(budget, n) workers pulling indexes from a jobs channel.
func (st *run) pool(ctx context.Context, budget, n int) {
	workers := min(budget, n)
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				_ = st.exec(ctx, i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		if err := st.wait(ctx); err != nil {
			st.skip(ctx, i, n)
			break
		}
		select {
		case jobs <- i:
			st.markDispatched()
		case <-ctx.Done():
			st.skip(ctx, i, n)
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)

	wg.Wait()
}

// spawn starts task i on g. Used by policies that bound concurrency by
// construction of the window rather than by a semaphore.
func (st *run) spawn(ctx context.Context, g *errgroup.Group, i int) {
	st.markDispatched()
	g.Go(func() error {
		return st.exec(ctx, i)
	})
}

// wait blocks on the rate limiter if one is configured.
func (st *run) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.limiter == nil {
		return nil
	}
	return st.limiter.Wait(ctx)
}

func (st *run) markDispatched() {
	st.mu.Lock()
	st.dispatched++
	st.mu.Unlock()
}

// skip marks indexes from..n-1 as not dispatched.
func (st *run) skip(ctx context.Context, from, n int) {
	cause := context.Cause(ctx)
	for i := from; i < n; i++ {
		if cause != nil {
			st.errs[i] = fmt.Errorf("%w: %w", ErrNotDispatched, cause)
		} else {
			st.errs[i] = ErrNotDispatched
		}
	}
}

// exec runs task i with in-flight accounting and panic recovery. A panic is
// converted into an error carrying a correlation ID; the stack is logged.
func (st *run) exec(ctx context.Context, i int) (err error) {
	st.tracker.start()
	if st.hooks.OnStart != nil {
		st.hooks.OnStart()
	}

	defer func() {
		if rec := recover(); rec != nil {
			correlationID := uuid.NewString()
			st.logger.Error("task panic",
				"correlation_id", correlationID,
				"index", i,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("task panic (correlation_id: %s)", correlationID)
		}

		st.errs[i] = err
		st.tracker.done()
		if st.hooks.OnDone != nil {
			st.hooks.OnDone(err)
		}
		if err != nil && st.failFast {
			st.cancel()
		}
	}()

	return st.task(ctx, i)
}
