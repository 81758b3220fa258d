// Standalone mock blob server for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/boundfetch watch -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

func main() {
	fmt.Println("Mock blob server starting on :9999")
	fmt.Println("Blob content rotates every 20-60 seconds")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		states = make(map[string]*mockState)
		mu     sync.Mutex
	)

	http.HandleFunc("/blob/", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path

		delay := time.Duration(50+rand.Intn(150)) * time.Millisecond
		if ms, err := strconv.Atoi(r.URL.Query().Get("ms")); err == nil {
			delay = time.Duration(ms) * time.Millisecond
		}
		time.Sleep(delay)

		mu.Lock()
		state, exists := states[key]
		if !exists {
			state = &mockState{
				nextChangeAt: time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second),
			}
			states[key] = state
		}

		if time.Now().After(state.nextChangeAt) {
			state.revision++
			state.nextChangeAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
			slog.Info("content change", "blob", key, "revision", state.revision)
		}
		revision := state.revision
		mu.Unlock()

		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "blob %s revision %d\n", key, revision)
	})

	if err := http.ListenAndServe(":9999", nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

type mockState struct {
	revision     int
	nextChangeAt time.Time
}
