// Package prof starts continuous profiling with Pyroscope.
package prof

import (
	"errors"
	"log/slog"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/jpalmerr/boundfetch/internal/metrics"
)

// Options configures the profiler.
type Options struct {
	Enabled              bool
	AppName              string
	ServerAddress        string
	TenantID             string
	Tags                 map[string]string
	ProfileMutexFraction int
	BlockProfileRate     int
}

// Start starts the profiler and returns a function that stops it.
// The returned stop function is never nil and is safe to call more than once.
func Start(opts Options, m *metrics.Metrics, logger *slog.Logger) (func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !opts.Enabled {
		logger.Debug("pyroscope disabled")
		return func() {}, nil
	}

	if opts.ServerAddress == "" {
		return func() {}, errors.New("prof: invalid server address (\"\")")
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	cfg := pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		TenantID:        opts.TenantID,
		Tags:            opts.Tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		},
	}

	profiler, err := pyroscope.Start(cfg)
	if err != nil {
		logger.Error("pyroscope start failed",
			"server_address", opts.ServerAddress,
			"app_name", opts.AppName,
			"error", err,
		)
		return func() {}, err
	}

	m.SetProfilingActive(true)
	logger.Info("pyroscope started",
		"server_address", opts.ServerAddress,
		"app_name", opts.AppName,
	)

	stopped := false
	return func() {
		if stopped {
			return
		}
		stopped = true
		_ = profiler.Stop()
		m.SetProfilingActive(false)
		logger.Info("pyroscope stopped", "app_name", opts.AppName)
	}, nil
}
