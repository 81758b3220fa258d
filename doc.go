// Package boundfetch fetches many resources under a concurrency budget and
// hashes their content.
//
// A [Fetcher] never has more fetches in flight than the budget passed to the
// call, and returns bodies in input order regardless of which fetch finished
// first. Resources are addressed by identifier: http and https URLs, local
// file paths or file:// URLs, and s3://bucket/key objects.
//
// # Quick Start
//
//	f, err := boundfetch.New()
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	results, err := f.FetchAllBounded(ctx, []string{
//	    "https://example.com/a.json",
//	    "https://example.com/b.json",
//	    "/var/data/c.json",
//	}, 2)
//	if err != nil {
//	    return err
//	}
//	for i, body := range results.All() {
//	    fmt.Println(i, boundfetch.DigestBytes(body))
//	}
//
// # Drain Policies
//
// [WithDrainPolicy] selects how freed slots are refilled:
//
//   - [PolicyBatch]: issue budget fetches, wait for the whole window, repeat (default)
//   - [PolicyRolling]: start the next fetch as soon as any slot frees
//   - [PolicyPool]: min(budget, n) workers pull identifiers from a queue
//
// Every policy keeps the number of in-flight fetches at or below
// min(budget, n) at every instant.
//
// # Errors
//
// Invalid arguments (a budget below 1, a malformed identifier) wrap
// [ErrInvalidArgument] and are reported before anything is fetched. A single
// failed fetch is a *[TransportError] that unwraps to the transport's cause.
// [Fetcher.FetchAllBounded] is all or nothing and reports failures as an
// *[AggregateError]; [Fetcher.FetchAllSettled] returns a per-identifier
// [Outcome] instead.
//
// # Digests
//
// [Fetcher.Digest] fetches one resource and returns its MD5 as 32 hex
// characters. [DigestBytes] and [DigestReader] hash content already in hand.
//
// # Architecture
//
// The internal packages are not part of the public API:
//
//   - internal/throttle: drain policies and in-flight accounting
//   - internal/transport: http, file and s3 transports routed by scheme
//   - internal/memo: concurrent get-or-create map used for lazy transports
//   - internal/metrics: Prometheus collectors
//   - internal/otelx, internal/prof: trace export and continuous profiling
//   - internal/watcher, internal/store, internal/server: scheduled re-digest
//     with an HTTP API, used by the boundfetch watch command
package boundfetch
