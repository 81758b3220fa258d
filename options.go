package boundfetch

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// fetcherConfig holds mutable state during Fetcher construction.
type fetcherConfig struct {
	transport      Transport
	logger         *slog.Logger
	policy         DrainPolicy
	failFast       bool
	timeout        time.Duration
	maxBodySize    int64
	headers        map[string]string
	limiter        *rate.Limiter
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	callbacks      []func(FetchEvent)
	digestFormat   DigestFormat
}

// Option is a function that configures a [Fetcher] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*fetcherConfig) error

// WithTransport replaces the default scheme-routing transport.
//
// Use this to inject a fake in tests or to read from a source boundfetch does
// not know about. [WithHeaders] and [WithMaxBodySize] configure the default
// transport only and cannot be combined with WithTransport.
//
// Returns an error if t is nil.
func WithTransport(t Transport) Option {
	return func(cfg *fetcherConfig) error {
		if t == nil {
			return errors.New("transport cannot be nil")
		}
		cfg.transport = t
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Fetcher.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *fetcherConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithDrainPolicy selects how [Fetcher.FetchAllBounded] refills its
// concurrency budget. Defaults to [PolicyBatch].
//
// Returns an error for an unknown policy.
func WithDrainPolicy(p DrainPolicy) Option {
	return func(cfg *fetcherConfig) error {
		if !p.Valid() {
			return fmt.Errorf("unknown drain policy %q", p)
		}
		cfg.policy = p
		return nil
	}
}

// WithFailFast makes [Fetcher.FetchAllBounded] cancel in-flight fetches and
// stop issuing new ones as soon as one fetch fails.
//
// Without it every fetch runs to completion and the returned
// [AggregateError] lists every failure.
func WithFailFast(enabled bool) Option {
	return func(cfg *fetcherConfig) error {
		cfg.failFast = enabled
		return nil
	}
}

// WithTimeout bounds each individual fetch. Zero (the default) means fetches
// are bounded only by the caller's context.
//
// Returns an error if the duration is negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *fetcherConfig) error {
		if d < 0 {
			return errors.New("timeout cannot be negative")
		}
		cfg.timeout = d
		return nil
	}
}

// WithMaxBodySize caps the bytes read per resource. Larger resources fail
// rather than being truncated. Defaults to 32MB.
//
// Returns an error if n is not positive.
func WithMaxBodySize(n int64) Option {
	return func(cfg *fetcherConfig) error {
		if n <= 0 {
			return errors.New("max body size must be positive")
		}
		cfg.maxBodySize = n
		return nil
	}
}

// WithHeaders adds HTTP headers sent with every http and https fetch.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	f, err := boundfetch.New(
//	    boundfetch.WithHeaders("Authorization", "Bearer token123"),
//	)
//
// Returns an error if an odd number of arguments is provided or a header
// name is invalid.
func WithHeaders(keyValues ...string) Option {
	return func(cfg *fetcherConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string)
		}
		for i := 0; i < len(keyValues); i += 2 {
			key := http.CanonicalHeaderKey(keyValues[i])
			if key == "" {
				return errors.New("header name cannot be empty")
			}
			cfg.headers[key] = keyValues[i+1]
		}
		return nil
	}
}

// WithRateLimit caps how fast fetches are dispatched, independent of the
// concurrency budget. Each dispatch waits for a token before taking a slot.
//
// Returns an error if perSecond is not positive or burst is below 1.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(cfg *fetcherConfig) error {
		if perSecond <= 0 {
			return errors.New("rate limit must be positive")
		}
		if burst < 1 {
			return errors.New("rate limit burst must be at least 1")
		}
		cfg.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithRegisterer registers fetch metrics with reg. Without it no metrics are
// recorded.
//
// Returns an error if reg is nil.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *fetcherConfig) error {
		if reg == nil {
			return errors.New("registerer cannot be nil")
		}
		cfg.registerer = reg
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry provider used for batch and fetch
// spans. Defaults to the global provider.
//
// Returns an error if tp is nil.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *fetcherConfig) error {
		if tp == nil {
			return errors.New("tracer provider cannot be nil")
		}
		cfg.tracerProvider = tp
		return nil
	}
}

// WithFetchCallback registers a function to be called after every fetch.
//
// Multiple callbacks may be registered; they execute in registration order.
//
// IMPORTANT: Callbacks run on the fetching goroutine and may be called
// concurrently from several fetches. They must be safe for concurrent use and
// non-blocking; a slow callback holds a concurrency slot.
//
// Panics within callbacks are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithFetchCallback(cb func(FetchEvent)) Option {
	return func(cfg *fetcherConfig) error {
		if cb == nil {
			return nil
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}

// WithDigestFormat sets how [Fetcher.Digest] renders digests. Defaults to
// [DigestLower].
//
// Returns an error for an unknown format.
func WithDigestFormat(f DigestFormat) Option {
	return func(cfg *fetcherConfig) error {
		if !f.Valid() {
			return fmt.Errorf("unknown digest format %q", f)
		}
		cfg.digestFormat = f
		return nil
	}
}
