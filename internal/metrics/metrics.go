// Package metrics holds the Prometheus collectors for fetch and watch
// activity.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Metrics records fetch, batch and watch activity.
//
// All methods are safe on a nil *Metrics, which records nothing.
type Metrics struct {
	inflight      prometheus.Gauge
	highWater     prometheus.Gauge
	fetchesTotal  *prometheus.CounterVec
	fetchDur      *prometheus.HistogramVec
	fetchBytes    prometheus.Histogram
	batchesTotal  *prometheus.CounterVec
	watchRuns     prometheus.Counter
	watchRecords  *prometheus.CounterVec
	watchLastRun  prometheus.Gauge
	profilingOpen prometheus.Gauge
}

// NewRegistry returns a registry with the Go and process collectors
// registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates the collectors and registers them with reg.
//
// Registering twice against the same registry reuses the collectors that are
// already there, so several fetchers may share one registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boundfetch_inflight",
			Help: "Current number of in-flight fetches",
		}),
		highWater: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boundfetch_inflight_high_water",
			Help: "Largest number of in-flight fetches observed in the last batch",
		}),
		fetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boundfetch_fetches_total",
			Help: "Total fetches by scheme and outcome",
		}, []string{"scheme", "outcome"}),
		fetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boundfetch_fetch_duration_seconds",
			Help:    "Fetch latency by scheme",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"scheme"}),
		fetchBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "boundfetch_fetch_bytes",
			Help:    "Size of fetched resources",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216},
		}),
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boundfetch_batches_total",
			Help: "Total fetch-all calls by drain policy and outcome",
		}, []string{"policy", "outcome"}),
		watchRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boundfetch_watch_runs_total",
			Help: "Total number of watch cycles",
		}),
		watchRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boundfetch_watch_records_total",
			Help: "Total digest records produced by watch cycles, by status",
		}, []string{"status"}),
		watchLastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boundfetch_watch_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed watch cycle",
		}),
		profilingOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boundfetch_profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled (0)",
		}),
	}

	var err error
	if m.inflight, err = register(reg, m.inflight); err != nil {
		return nil, err
	}
	if m.highWater, err = register(reg, m.highWater); err != nil {
		return nil, err
	}
	if m.fetchesTotal, err = register(reg, m.fetchesTotal); err != nil {
		return nil, err
	}
	if m.fetchDur, err = register(reg, m.fetchDur); err != nil {
		return nil, err
	}
	if m.fetchBytes, err = register(reg, m.fetchBytes); err != nil {
		return nil, err
	}
	if m.batchesTotal, err = register(reg, m.batchesTotal); err != nil {
		return nil, err
	}
	if m.watchRuns, err = register(reg, m.watchRuns); err != nil {
		return nil, err
	}
	if m.watchRecords, err = register(reg, m.watchRecords); err != nil {
		return nil, err
	}
	if m.watchLastRun, err = register(reg, m.watchLastRun); err != nil {
		return nil, err
	}
	if m.profilingOpen, err = register(reg, m.profilingOpen); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, returning the existing collector when an identical
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Outcome maps a fetch error to an outcome label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}

// SlotTaken records a fetch taking a concurrency slot.
func (m *Metrics) SlotTaken() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

// SlotFreed records a fetch releasing its concurrency slot.
func (m *Metrics) SlotFreed() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}

// FetchDone records the outcome, latency and size of one fetch.
func (m *Metrics) FetchDone(scheme string, d time.Duration, size int, err error) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(scheme, Outcome(err)).Inc()
	m.fetchDur.WithLabelValues(scheme).Observe(d.Seconds())
	if err == nil {
		m.fetchBytes.Observe(float64(size))
	}
}

// BatchDone records a finished fetch-all call and its high-water mark.
func (m *Metrics) BatchDone(policy string, highWater int, err error) {
	if m == nil {
		return
	}
	m.highWater.Set(float64(highWater))
	m.batchesTotal.WithLabelValues(policy, Outcome(err)).Inc()
}

// WatchRun records a completed watch cycle at t.
func (m *Metrics) WatchRun(t time.Time) {
	if m == nil {
		return
	}
	m.watchRuns.Inc()
	m.watchLastRun.Set(float64(t.Unix()))
}

// WatchRecord counts one digest record by status.
func (m *Metrics) WatchRecord(status string) {
	if m == nil {
		return
	}
	m.watchRecords.WithLabelValues(status).Inc()
}

// SetProfilingActive sets the profiling gauge.
func (m *Metrics) SetProfilingActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.profilingOpen.Set(1)
	} else {
		m.profilingOpen.Set(0)
	}
}
