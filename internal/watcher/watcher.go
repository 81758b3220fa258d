package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jpalmerr/boundfetch"
	"github.com/jpalmerr/boundfetch/internal/metrics"
	"github.com/jpalmerr/boundfetch/internal/store"
)

// DefaultSchedule is used when Options.Schedule is empty.
const DefaultSchedule = "@every 1m"

// ErrNoResources is returned by [New] when there is nothing to watch.
var ErrNoResources = errors.New("watcher: no resources to watch")

// Settler fetches a batch of identifiers and reports each outcome.
// *boundfetch.Fetcher implements it.
type Settler interface {
	FetchAllSettled(ctx context.Context, ids []string, budget int) ([]boundfetch.Outcome, error)
}

// Options configures a [Watcher].
type Options struct {
	// Schedule is a standard five-field cron expression or a descriptor
	// such as "@every 30s" or "@hourly". Empty means [DefaultSchedule].
	Schedule string

	// Budget is the concurrency budget per cycle. Must be at least 1.
	Budget int

	// Metrics records cycle and per-record counters. May be nil.
	Metrics *metrics.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	now func() time.Time
}

// Summary counts the records written by one cycle, keyed by status.
type Summary struct {
	CheckedAt time.Time
	Duration  time.Duration
	Counts    map[string]int
}

// Total returns the number of records in the cycle.
func (s Summary) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// Watcher runs digest cycles on a schedule.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Watcher struct {
	fetcher   Settler
	resources []boundfetch.Resource
	ids       []string
	store     store.Store
	schedule  cron.Schedule
	budget    int
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	// serialises cycles started by the scheduler and by RunOnce
	runMu sync.Mutex

	mu      sync.Mutex
	started bool
	stopped bool
	cron    *cron.Cron
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a [Watcher] over resources, writing records to st.
//
// Returns an error if the schedule does not parse, the budget is below 1,
// or resources is empty.
func New(f Settler, resources []boundfetch.Resource, st store.Store, opts Options) (*Watcher, error) {
	if len(resources) == 0 {
		return nil, ErrNoResources
	}
	if opts.Budget < 1 {
		return nil, fmt.Errorf("watcher: budget must be at least 1, got %d", opts.Budget)
	}

	spec := opts.Schedule
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("watcher: invalid schedule %q: %w", spec, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}

	return &Watcher{
		fetcher:   f,
		resources: resources,
		ids:       boundfetch.IDs(resources),
		store:     st,
		schedule:  schedule,
		budget:    opts.Budget,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       now,
	}, nil
}

// Start runs one cycle immediately in the background and then schedules
// further cycles until [Watcher.Stop] is called or ctx is cancelled.
//
// Start is idempotent. If Stop was called before Start, Start is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	job := cron.FuncJob(func() {
		if runCtx.Err() != nil {
			return
		}
		w.runLogged(runCtx)
	})

	w.cron = cron.New(
		cron.WithLogger(cronLogger{w.logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{w.logger})),
	)
	w.cron.Schedule(w.schedule, job)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.runLogged(runCtx)
		if runCtx.Err() != nil {
			return
		}

		w.cron.Start()
		<-runCtx.Done()
		// wait for a scheduled cycle still in flight
		<-w.cron.Stop().Done()
	}()
}

// Stop cancels any running cycle, stops the scheduler and waits for all
// goroutines to exit.
//
// Stop is idempotent and safe to call before Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()

	w.wg.Wait()
}

// RunOnce runs a single cycle and returns its summary.
//
// Returns an error if the fetch could not start or ctx ended before the
// cycle finished. No records are written for a cancelled cycle.
func (w *Watcher) RunOnce(ctx context.Context) (Summary, error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	checkedAt := w.now()
	start := time.Now()

	outcomes, err := w.fetcher.FetchAllSettled(ctx, w.ids, w.budget)
	if err != nil {
		return Summary{}, fmt.Errorf("watcher: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, fmt.Errorf("watcher: cycle cancelled: %w", err)
	}

	summary := Summary{
		CheckedAt: checkedAt,
		Counts:    make(map[string]int),
	}
	for i, outcome := range outcomes {
		record := w.record(w.resources[i], outcome, checkedAt)
		w.store.Update(record)
		w.metrics.WatchRecord(record.Status)
		summary.Counts[record.Status]++

		if record.Status == store.StatusChanged || record.Status == store.StatusMismatch {
			w.logger.Info("digest "+record.Status,
				"resource", record.ID,
				"digest", record.Digest,
				"previous", record.Previous,
				"expected", record.Expected,
			)
		}
	}
	summary.Duration = time.Since(start)
	w.metrics.WatchRun(checkedAt)

	return summary, nil
}

// runLogged runs a cycle and logs its outcome.
func (w *Watcher) runLogged(ctx context.Context) {
	summary, err := w.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("watch cycle failed", "error", err)
		}
		return
	}

	attrs := []any{
		"resources", summary.Total(),
		"duration_ms", summary.Duration.Milliseconds(),
	}
	for _, status := range statuses {
		if n := summary.Counts[status]; n > 0 {
			attrs = append(attrs, status, n)
		}
	}
	w.logger.Info("watch cycle completed", attrs...)
}

// statuses fixes the order of per-status log attributes.
var statuses = []string{
	store.StatusMatch,
	store.StatusMismatch,
	store.StatusNew,
	store.StatusUnchanged,
	store.StatusChanged,
	store.StatusError,
}

// record builds the stored record for one outcome, comparing against the
// expected digest if set, otherwise against the last successful digest.
func (w *Watcher) record(res boundfetch.Resource, outcome boundfetch.Outcome, checkedAt time.Time) store.DigestRecord {
	record := store.DigestRecord{
		ID:        res.ID(),
		Name:      res.Name(),
		Expected:  res.ExpectedDigest(),
		Labels:    res.Labels(),
		LatencyMs: outcome.Latency.Milliseconds(),
		CheckedAt: checkedAt,
	}

	var last string
	if prev, ok := w.store.Get(res.ID()); ok {
		last = prev.Digest
		if last == "" {
			last = prev.Previous
		}
	}
	record.Previous = last

	if !outcome.OK() {
		msg := outcome.Err.Error()
		record.Status = store.StatusError
		record.Error = &msg
		return record
	}

	record.Digest = boundfetch.DigestBytes(outcome.Body)
	record.Bytes = len(outcome.Body)

	switch {
	case record.Expected != "" && record.Digest == record.Expected:
		record.Status = store.StatusMatch
	case record.Expected != "":
		record.Status = store.StatusMismatch
	case last == "":
		record.Status = store.StatusNew
	case last == record.Digest:
		record.Status = store.StatusUnchanged
	default:
		record.Status = store.StatusChanged
	}
	return record
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
