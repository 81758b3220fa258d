package boundfetch

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// resourceConfig holds mutable state during resource construction.
type resourceConfig struct {
	name     string
	expected string
	labels   map[string]string
}

// ResourceOption is a function that configures a [Resource] during
// construction.
//
// Built-in options: [WithName], [WithExpectedDigest], [WithLabels].
type ResourceOption func(*resourceConfig) error

// WithName sets the display name used in logs and the watch API.
//
// Returns an error if the name is empty.
func WithName(name string) ResourceOption {
	return func(cfg *resourceConfig) error {
		if strings.TrimSpace(name) == "" {
			return errors.New("resource name cannot be empty")
		}
		cfg.name = name
		return nil
	}
}

// WithExpectedDigest sets the MD5 the resource is expected to hash to.
//
// In watch mode a resource with an expected digest reports match or mismatch
// instead of tracking changes. The digest is accepted in either case and
// stored lowercase.
//
// Returns an error if the value is not 32 hex characters.
func WithExpectedDigest(md5hex string) ResourceOption {
	return func(cfg *resourceConfig) error {
		if len(md5hex) != 32 {
			return fmt.Errorf("expected digest must be 32 hex characters, got %d", len(md5hex))
		}
		if _, err := hex.DecodeString(md5hex); err != nil {
			return fmt.Errorf("expected digest %q is not hex", md5hex)
		}
		cfg.expected = strings.ToLower(md5hex)
		return nil
	}
}

// WithLabels adds metadata labels to the resource for grouping in watch
// output.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	res, err := boundfetch.NewResource(id,
//	    boundfetch.WithLabels("env", "production", "team", "platform"),
//	)
//
// Returns an error if an odd number of arguments is provided.
func WithLabels(keyValues ...string) ResourceOption {
	return func(cfg *resourceConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithLabels requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.labels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}
