package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/boundfetch"
)

func main() {
	// start mock server (see mock_server.go)
	stats := &mockStats{}
	go StartMockBlobServer(":9999", stats)
	time.Sleep(100 * time.Millisecond)

	// set API: 3 regions × 4 shards = 12 resources from one declaration
	resources, err := boundfetch.NewResourceSet("Shard",
		boundfetch.WithIDTemplate("http://localhost:9999/blob/{{.region}}/{{.shard}}?ms=100"),
		boundfetch.WithDimensions(map[string][]string{
			"region": {"eu", "us", "ap"},
			"shard":  {"0", "1", "2", "3"},
		}),
	)
	if err != nil {
		slog.Error("failed to create resource set", "error", err)
		os.Exit(1)
	}
	ids := boundfetch.IDs(resources)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	const budget = 4

	fmt.Println()
	fmt.Printf("  boundfetch demo: %d resources, 100ms each, budget %d\n", len(ids), budget)
	fmt.Println()

	f, err := boundfetch.New()
	if err != nil {
		slog.Error("failed to create fetcher", "error", err)
		os.Exit(1)
	}
	start := time.Now()
	if _, err := f.FetchAllSync(ctx, ids); err != nil {
		slog.Error("sync fetch failed", "error", err)
		os.Exit(1)
	}
	report("sync", time.Since(start), stats)
	f.Close()

	var last boundfetch.Results
	for _, policy := range []boundfetch.DrainPolicy{boundfetch.PolicyBatch, boundfetch.PolicyRolling, boundfetch.PolicyPool} {
		f, err := boundfetch.New(boundfetch.WithDrainPolicy(policy))
		if err != nil {
			slog.Error("failed to create fetcher", "error", err)
			os.Exit(1)
		}
		start := time.Now()
		last, err = f.FetchAllBounded(ctx, ids, budget)
		f.Close()
		if err != nil {
			slog.Error("bounded fetch failed", "policy", policy, "error", err)
			os.Exit(1)
		}
		report(policy.String(), time.Since(start), stats)
	}

	fmt.Println()
	for i, body := range last.All() {
		fmt.Printf("  %s  %s\n", boundfetch.DigestBytes(body), resources[i].Name())
	}
	fmt.Println()
}

// report prints one timing line and resets the high-water mark.
func report(label string, elapsed time.Duration, stats *mockStats) {
	fmt.Printf("  %-8s %6dms  max in flight %d\n",
		label, elapsed.Milliseconds(), stats.highWater.Swap(0))
}
