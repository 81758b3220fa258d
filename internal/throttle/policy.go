package throttle

import (
	"fmt"
	"strings"
)

// Policy selects how a [Runner] refills its concurrency budget.
type Policy string

const (
	// Batch waits for every task in the current window before starting the
	// next window.
	Batch Policy = "batch"

	// Rolling starts a new task as soon as any slot frees up.
	Rolling Policy = "rolling"

	// Pool runs a fixed set of workers that pull task indexes from a channel.
	Pool Policy = "pool"
)

// String returns the policy name.
func (p Policy) String() string {
	return string(p)
}

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case Batch, Rolling, Pool:
		return true
	default:
		return false
	}
}

// ParsePolicy converts a policy name into a [Policy]. The empty string maps
// to [Batch].
func ParsePolicy(s string) (Policy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Batch, nil
	}
	p := Policy(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown drain policy %q (expected 'batch', 'rolling', or 'pool')", s)
	}
	return p, nil
}
