package boundfetch

import "github.com/jpalmerr/boundfetch/internal/throttle"

// DrainPolicy selects how a bounded fetch refills its concurrency budget.
type DrainPolicy string

const (
	// PolicyBatch issues up to budget fetches, waits for the whole window to
	// finish, then issues the next window. This is the default.
	PolicyBatch DrainPolicy = DrainPolicy(throttle.Batch)

	// PolicyRolling starts a new fetch as soon as any in-flight fetch
	// finishes.
	PolicyRolling DrainPolicy = DrainPolicy(throttle.Rolling)

	// PolicyPool runs min(budget, n) workers that pull identifiers from a
	// queue.
	PolicyPool DrainPolicy = DrainPolicy(throttle.Pool)
)

// String returns the string representation of the policy.
func (p DrainPolicy) String() string {
	return string(p)
}

// Valid reports whether p is a known policy.
func (p DrainPolicy) Valid() bool {
	return throttle.Policy(p).Valid()
}

// ParseDrainPolicy parses "batch", "rolling" or "pool", case-insensitively.
// An empty string yields [PolicyBatch].
func ParseDrainPolicy(s string) (DrainPolicy, error) {
	p, err := throttle.ParsePolicy(s)
	if err != nil {
		return "", err
	}
	return DrainPolicy(p), nil
}
