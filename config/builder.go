package config

import (
	"fmt"
	"sort"

	"github.com/jpalmerr/boundfetch"
)

// BuildResources converts parsed configuration into SDK resources.
//
// Individual resources come first in file order, followed by each set's
// expansion. Returns an error if two entries resolve to the same ID.
func BuildResources(cfg *Config) ([]boundfetch.Resource, error) {
	var resources []boundfetch.Resource

	for i, rc := range cfg.Resources {
		r, err := buildResource(rc)
		if err != nil {
			return nil, fmt.Errorf("resources[%d]: %w", i, err)
		}
		resources = append(resources, r)
	}

	for i, sc := range cfg.Sets {
		set, err := boundfetch.NewResourceSet(sc.Name,
			boundfetch.WithIDTemplate(sc.IDTemplate),
			boundfetch.WithDimensions(sc.Dimensions),
			boundfetch.WithSetLabels(mapToKeyValuePairs(sc.Labels)...),
		)
		if err != nil {
			return nil, fmt.Errorf("sets[%d] (%s): %w", i, sc.Name, err)
		}
		resources = append(resources, set...)
	}

	seen := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		if _, dup := seen[r.ID()]; dup {
			return nil, fmt.Errorf("duplicate resource id %q", r.ID())
		}
		seen[r.ID()] = struct{}{}
	}

	return resources, nil
}

// buildResource converts a single ResourceConfig to an SDK Resource.
func buildResource(rc ResourceConfig) (boundfetch.Resource, error) {
	var opts []boundfetch.ResourceOption

	if rc.Name != "" {
		opts = append(opts, boundfetch.WithName(rc.Name))
	}
	if rc.ExpectedMD5 != "" {
		opts = append(opts, boundfetch.WithExpectedDigest(rc.ExpectedMD5))
	}
	if len(rc.Labels) > 0 {
		opts = append(opts, boundfetch.WithLabels(mapToKeyValuePairs(rc.Labels)...))
	}

	return boundfetch.NewResource(rc.ID, opts...)
}

// BuildOptions converts the fetcher settings into SDK options.
// Logging, metrics and tracing options are left to the caller.
func BuildOptions(cfg *Config) ([]boundfetch.Option, error) {
	policy, err := boundfetch.ParseDrainPolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	format, err := boundfetch.ParseDigestFormat(cfg.DigestFormat)
	if err != nil {
		return nil, err
	}

	opts := []boundfetch.Option{
		boundfetch.WithDrainPolicy(policy),
		boundfetch.WithDigestFormat(format),
		boundfetch.WithFailFast(cfg.FailFast),
	}

	if cfg.Timeout != 0 {
		opts = append(opts, boundfetch.WithTimeout(cfg.Timeout.Duration()))
	}
	if cfg.MaxBodySize > 0 {
		opts = append(opts, boundfetch.WithMaxBodySize(cfg.MaxBodySize))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, boundfetch.WithHeaders(mapToKeyValuePairs(cfg.Headers)...))
	}
	if cfg.RateLimit.PerSecond > 0 {
		opts = append(opts, boundfetch.WithRateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst))
	}

	return opts, nil
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
