package boundfetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jpalmerr/boundfetch/internal/metrics"
	"github.com/jpalmerr/boundfetch/internal/throttle"
	"github.com/jpalmerr/boundfetch/internal/transport"
)

const tracerName = "github.com/jpalmerr/boundfetch"

// Transport reads all bytes of a resource.
//
// Implementations must be safe for concurrent use and should return promptly
// once ctx is done.
type Transport interface {
	ReadAll(ctx context.Context, id string) ([]byte, error)
}

// TransportFunc adapts a function to the [Transport] interface.
type TransportFunc func(ctx context.Context, id string) ([]byte, error)

// ReadAll calls f(ctx, id).
func (f TransportFunc) ReadAll(ctx context.Context, id string) ([]byte, error) {
	return f(ctx, id)
}

// FetchEvent describes one completed fetch. It is passed to callbacks
// registered with [WithFetchCallback].
type FetchEvent struct {
	// Index is the position of the identifier in the call's input.
	Index int

	// ID is the resource identifier.
	ID string

	// Bytes is the size of the fetched content. Zero on failure.
	Bytes int

	// Latency is the time spent in the transport.
	Latency time.Duration

	// Err is nil on success.
	Err error
}

// Fetcher retrieves resources under a concurrency budget and hashes their
// content.
//
// A Fetcher is created with [New] and is safe for concurrent use. Each call
// carries its own budget; the Fetcher holds no per-call state.
//
// Typical use:
//
//	f, err := boundfetch.New(boundfetch.WithDrainPolicy(boundfetch.PolicyRolling))
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	results, err := f.FetchAllBounded(ctx, ids, 8)
type Fetcher struct {
	transport Transport
	mux       *transport.Mux
	runner    *throttle.Runner
	settled   *throttle.Runner
	policy    DrainPolicy
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	callbacks []func(FetchEvent)
	format    DigestFormat
}

// New creates a [Fetcher] with the given options.
//
// Without [WithTransport] the Fetcher reads http and https URLs, local files
// (bare paths or file:// URLs) and s3://bucket/key objects.
//
// Defaults:
//   - Drain policy: [PolicyBatch]
//   - Fail fast: off
//   - Per-fetch timeout: none
//   - Max body size: 32MB
//   - Digest format: [DigestLower]
func New(opts ...Option) (*Fetcher, error) {
	cfg := &fetcherConfig{
		policy:       PolicyBatch,
		digestFormat: DigestLower,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.transport != nil && (len(cfg.headers) > 0 || cfg.maxBodySize > 0) {
		return nil, errors.New("WithHeaders and WithMaxBodySize cannot be combined with WithTransport")
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	tp := cfg.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	f := &Fetcher{
		transport: cfg.transport,
		policy:    cfg.policy,
		timeout:   cfg.timeout,
		logger:    logger,
		tracer:    tp.Tracer(tracerName),
		callbacks: cfg.callbacks,
		format:    cfg.digestFormat,
	}

	if f.transport == nil {
		f.mux = transport.NewDefaultMux(transport.DefaultOptions{
			HTTP: transport.HTTPOptions{
				Headers:        cfg.headers,
				TracerProvider: tp,
			},
			MaxBodySize: cfg.maxBodySize,
		})
		f.transport = f.mux
	}

	if cfg.registerer != nil {
		m, err := metrics.New(cfg.registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		f.metrics = m
	}

	// the in-flight gauge follows the runner's slot accounting
	var hooks throttle.Hooks
	if f.metrics != nil {
		hooks = throttle.Hooks{
			OnStart: f.metrics.SlotTaken,
			OnDone:  func(error) { f.metrics.SlotFreed() },
		}
	}

	var err error
	f.runner, err = throttle.New(throttle.Options{
		Policy:   throttle.Policy(cfg.policy),
		FailFast: cfg.failFast,
		Limiter:  cfg.limiter,
		Logger:   logger,
		Hooks:    hooks,
	})
	if err != nil {
		return nil, err
	}
	f.settled, err = throttle.New(throttle.Options{
		Policy:  throttle.Policy(cfg.policy),
		Limiter: cfg.limiter,
		Logger:  logger,
		Hooks:   hooks,
	})
	if err != nil {
		return nil, err
	}

	return f, nil
}

// Policy returns the configured drain policy.
func (f *Fetcher) Policy() DrainPolicy {
	return f.policy
}

// Close releases idle connections held by the default transport. It is safe
// to call more than once; a Fetcher remains usable after Close.
func (f *Fetcher) Close() {
	if f == nil || f.mux == nil {
		return
	}
	f.mux.Close()
}

// FetchAllSync fetches each identifier in turn, in input order.
//
// It is the sequential baseline for [Fetcher.FetchAllBounded]. The first
// failure stops the call and is returned as a *[TransportError]; no partial
// results are returned.
//
// Returns an error wrapping [ErrInvalidArgument] if any identifier is
// malformed, before anything is fetched.
func (f *Fetcher) FetchAllSync(ctx context.Context, ids []string) (Results, error) {
	if err := f.validate(ids); err != nil {
		return Results{}, err
	}

	ctx, span := f.tracer.Start(ctx, "boundfetch.FetchAllSync",
		trace.WithAttributes(attribute.Int("boundfetch.count", len(ids))))
	defer span.End()

	bodies := make([][]byte, len(ids))
	for i, id := range ids {
		f.metrics.SlotTaken()
		body, _, err := f.fetch(ctx, i, id)
		f.metrics.SlotFreed()
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			f.metrics.BatchDone("sync", 1, err)
			return Results{}, err
		}
		bodies[i] = body
	}

	f.metrics.BatchDone("sync", min(1, len(ids)), nil)
	return Results{bodies: bodies}, nil
}

// FetchAllBounded fetches every identifier with at most budget fetches in
// flight at any instant, and returns the bodies in input order regardless of
// completion order.
//
// How freed slots are refilled is set by [WithDrainPolicy]. With the default
// [PolicyBatch] the call issues budget fetches, waits for all of them, then
// issues the next window.
//
// The result is all or nothing. If any fetch fails the call waits for every
// in-flight fetch to settle and returns an *[AggregateError] listing each
// failure by input index. With [WithFailFast] the first failure cancels the
// fetches still running and nothing further is issued; the error then holds
// only the failures that caused the stop.
//
// Cancelling ctx cancels outstanding fetches. The call returns an error
// wrapping ctx's cause.
//
// Returns an error wrapping [ErrInvalidArgument] if budget is below 1 or an
// identifier is malformed, before anything is fetched.
func (f *Fetcher) FetchAllBounded(ctx context.Context, ids []string, budget int) (Results, error) {
	if budget < 1 {
		return Results{}, invalidArgument("concurrency budget must be at least 1, got %d", budget)
	}
	if err := f.validate(ids); err != nil {
		return Results{}, err
	}

	ctx, span := f.tracer.Start(ctx, "boundfetch.FetchAllBounded",
		trace.WithAttributes(
			attribute.Int("boundfetch.count", len(ids)),
			attribute.Int("boundfetch.budget", budget),
			attribute.String("boundfetch.policy", f.policy.String()),
		))
	defer span.End()

	bodies := make([][]byte, len(ids))
	report, err := f.runner.Run(ctx, budget, len(ids), func(ctx context.Context, i int) error {
		body, _, err := f.fetch(ctx, i, ids[i])
		if err != nil {
			return err
		}
		bodies[i] = body
		return nil
	})
	if err != nil {
		return Results{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	span.SetAttributes(attribute.Int("boundfetch.high_water", report.HighWater))

	err = f.batchError(ctx, ids, report)
	f.metrics.BatchDone(f.policy.String(), report.HighWater, err)
	f.logger.Debug("fetch batch completed",
		"count", len(ids),
		"budget", budget,
		"policy", f.policy.String(),
		"high_water", report.HighWater,
		"dispatched", report.Dispatched,
		"failed", err != nil,
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Results{}, err
	}
	return Results{bodies: bodies}, nil
}

// FetchAllSettled fetches every identifier like [Fetcher.FetchAllBounded]
// but never fails as a whole: it returns one [Outcome] per identifier, in
// input order, each holding either a body or an error. [WithFailFast] does
// not apply.
//
// If ctx is cancelled, fetches that never started carry an error wrapping
// [ErrNotDispatched].
//
// Returns an error wrapping [ErrInvalidArgument] if budget is below 1 or an
// identifier is malformed.
func (f *Fetcher) FetchAllSettled(ctx context.Context, ids []string, budget int) ([]Outcome, error) {
	if budget < 1 {
		return nil, invalidArgument("concurrency budget must be at least 1, got %d", budget)
	}
	if err := f.validate(ids); err != nil {
		return nil, err
	}

	ctx, span := f.tracer.Start(ctx, "boundfetch.FetchAllSettled",
		trace.WithAttributes(
			attribute.Int("boundfetch.count", len(ids)),
			attribute.Int("boundfetch.budget", budget),
			attribute.String("boundfetch.policy", f.policy.String()),
		))
	defer span.End()

	outcomes := make([]Outcome, len(ids))
	report, err := f.settled.Run(ctx, budget, len(ids), func(ctx context.Context, i int) error {
		body, latency, err := f.fetch(ctx, i, ids[i])
		outcomes[i].Body = body
		outcomes[i].Latency = latency
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	failed := 0
	for i := range outcomes {
		outcomes[i].Index = i
		outcomes[i].ID = ids[i]
		if e := report.Errs[i]; e != nil {
			outcomes[i].Body = nil
			outcomes[i].Err = asTransportError(i, ids[i], e)
			failed++
		}
	}

	span.SetAttributes(
		attribute.Int("boundfetch.high_water", report.HighWater),
		attribute.Int("boundfetch.failed", failed),
	)
	var batchErr error
	if failed > 0 {
		batchErr = fmt.Errorf("%d of %d fetches failed", failed, len(ids))
	}
	f.metrics.BatchDone(f.policy.String(), report.HighWater, batchErr)
	return outcomes, nil
}

// Digest fetches one resource and returns the MD5 of its content as 32 hex
// characters, rendered per [WithDigestFormat].
//
// A transport failure is returned as a *[TransportError] wrapping the cause
// unchanged.
//
// Returns an error wrapping [ErrInvalidArgument] if id is malformed.
func (f *Fetcher) Digest(ctx context.Context, id string) (string, error) {
	if err := f.validateID(id); err != nil {
		return "", err
	}

	body, _, err := f.fetch(ctx, 0, id)
	if err != nil {
		return "", err
	}
	return FormatDigest(body, f.format), nil
}

// batchError builds the error for a finished bounded run, or nil when every
// fetch succeeded.
func (f *Fetcher) batchError(ctx context.Context, ids []string, report throttle.Report) error {
	if !report.Failed() {
		return nil
	}

	if ctx.Err() != nil {
		completed := 0
		for _, e := range report.Errs {
			if e == nil {
				completed++
			}
		}
		return fmt.Errorf("fetch cancelled after %d of %d completed: %w", completed, len(ids), context.Cause(ctx))
	}

	agg := &AggregateError{Total: len(ids)}
	for i, e := range report.Errs {
		if e == nil {
			continue
		}
		// fetches stopped by a fail-fast cancel are collateral, not causes
		if errors.Is(e, ErrNotDispatched) || errors.Is(e, context.Canceled) {
			continue
		}
		agg.Failures = append(agg.Failures, asTransportError(i, ids[i], e))
	}
	if len(agg.Failures) == 0 {
		for i, e := range report.Errs {
			if e != nil {
				agg.Failures = append(agg.Failures, asTransportError(i, ids[i], e))
			}
		}
	}
	return agg
}

// fetch reads one resource through the transport with timeout, tracing,
// metrics, logging and panic recovery.
func (f *Fetcher) fetch(ctx context.Context, i int, id string) (body []byte, latency time.Duration, err error) {
	scheme := transport.Scheme(id)

	ctx, span := f.tracer.Start(ctx, "boundfetch.fetch",
		trace.WithAttributes(
			attribute.String("boundfetch.resource", id),
			attribute.String("boundfetch.scheme", scheme),
			attribute.Int("boundfetch.index", i),
		))
	defer span.End()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			f.logger.Error("transport panic",
				"correlation_id", correlationID,
				"resource", id,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			body = nil
			err = fmt.Errorf("transport panic (correlation_id: %s)", correlationID)
		}

		latency = time.Since(start)
		f.metrics.FetchDone(scheme, latency, len(body), err)

		logAttrs := []any{
			"resource", id,
			"index", i,
			"latency_ms", latency.Milliseconds(),
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			f.logger.Warn("fetch failed", append(logAttrs, "error", err.Error())...)
			err = &TransportError{Index: i, ID: id, Err: err}
		} else {
			span.SetAttributes(attribute.Int("boundfetch.bytes", len(body)))
			f.logger.Debug("fetch completed", append(logAttrs, "bytes", len(body))...)
		}

		if len(f.callbacks) > 0 {
			event := FetchEvent{Index: i, ID: id, Bytes: len(body), Latency: latency, Err: err}
			for _, cb := range f.callbacks {
				invokeCallbackSafe(cb, event, f.logger)
			}
		}
	}()

	body, err = f.transport.ReadAll(ctx, id)
	return
}

// validate checks every identifier before any fetch is issued.
func (f *Fetcher) validate(ids []string) error {
	for i, id := range ids {
		if err := f.validateID(id); err != nil {
			return fmt.Errorf("ids[%d]: %w", i, err)
		}
	}
	return nil
}

func (f *Fetcher) validateID(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if f.mux != nil {
		if scheme := transport.Scheme(id); !f.mux.Supports(scheme) {
			return invalidArgument("unsupported scheme %q in %q", scheme, id)
		}
	}
	return nil
}

// invokeCallbackSafe calls a fetch callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(FetchEvent), event FetchEvent, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("fetch callback panicked",
				"panic", r,
				"resource", event.ID,
			)
		}
	}()
	cb(event)
}
