package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// mockStats tracks concurrent requests seen by the mock server.
type mockStats struct {
	inflight  atomic.Int64
	highWater atomic.Int64
	requests  atomic.Int64
}

func (s *mockStats) enter() {
	s.requests.Add(1)
	n := s.inflight.Add(1)
	for {
		hw := s.highWater.Load()
		if n <= hw || s.highWater.CompareAndSwap(hw, n) {
			return
		}
	}
}

func (s *mockStats) leave() {
	s.inflight.Add(-1)
}

// StartMockBlobServer runs a mock blob endpoint. Each request sleeps for
// ?ms= milliseconds (or 50-200ms when unset) and returns a body derived
// from the path, so digests are stable across runs.
// Call this in a goroutine before fetching.
func StartMockBlobServer(addr string, stats *mockStats) {
	mux := http.NewServeMux()
	mux.HandleFunc("/blob/", func(w http.ResponseWriter, r *http.Request) {
		stats.enter()
		defer stats.leave()

		delay := time.Duration(50+rand.Intn(150)) * time.Millisecond
		if ms, err := strconv.Atoi(r.URL.Query().Get("ms")); err == nil {
			delay = time.Duration(ms) * time.Millisecond
		}
		time.Sleep(delay)

		w.Header().Set("Content-Type", "text/plain")
		if _, err := fmt.Fprintf(w, "blob %s\n", r.URL.Path); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
