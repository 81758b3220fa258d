package boundfetch

import (
	"iter"
	"time"
)

// Results holds the bodies of a successful fetch-all call, aligned with the
// input identifiers.
//
// Each body is an independent buffer. Results is read-only; the zero value
// is an empty result.
type Results struct {
	bodies [][]byte
}

// Len returns the number of results, which equals the number of identifiers.
func (r Results) Len() int {
	return len(r.bodies)
}

// At returns the body fetched for the i-th identifier.
func (r Results) At(i int) []byte {
	return r.bodies[i]
}

// Strings returns every body as a string, in input order.
func (r Results) Strings() []string {
	out := make([]string, len(r.bodies))
	for i, b := range r.bodies {
		out[i] = string(b)
	}
	return out
}

// All iterates over the results in input order, yielding each index with
// its body.
//
//	for i, body := range results.All() {
//	    fmt.Println(ids[i], len(body))
//	}
func (r Results) All() iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		for i, b := range r.bodies {
			if !yield(i, b) {
				return
			}
		}
	}
}

// Outcome is the per-identifier result of [Fetcher.FetchAllSettled].
type Outcome struct {
	// Index is the position of the identifier in the input.
	Index int

	// ID is the resource identifier.
	ID string

	// Body is the fetched content. nil when Err is set.
	Body []byte

	// Err is a *TransportError when the fetch failed. Fetches that never
	// started wrap [ErrNotDispatched].
	Err error

	// Latency is the time spent in the transport. Zero when the fetch never
	// started.
	Latency time.Duration
}

// OK reports whether the fetch succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}
