// Package config provides YAML configuration parsing for boundfetch.
//
// A configuration file lists the resources to fetch and the fetcher
// settings, and is used by the fetch, digest, watch and validate commands.
//
// Example configuration:
//
//	concurrency: 4
//	policy: rolling
//	timeout: 10s
//
//	headers:
//	  Authorization: Bearer ${API_TOKEN}
//
//	resources:
//	  - id: https://releases.example.com/v1.2.0/app.tar.gz
//	    name: App v1.2.0
//	    expected_md5: 5d41402abc4b2a76b9719d911017c592
//	  - id: /var/lib/app/schema.sql
//
//	sets:
//	  - name: Mirror
//	    id_template: "https://{{.region}}.mirror.example.com/app.tar.gz"
//	    dimensions:
//	      region: [eu, us, ap]
//
//	watch:
//	  schedule: "@every 5m"
//	  listen: ":9090"
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"text/template"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/boundfetch"
)

// Defaults applied by [Parse].
const (
	DefaultConcurrency = 4
	DefaultSchedule    = "@every 1m"
	DefaultListen      = ":9090"
	DefaultAppName     = "boundfetch"
)

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the watch dashboard title.
	Title string `yaml:"title"`

	// Concurrency is the budget: the maximum number of fetches in flight.
	// Defaults to 4.
	Concurrency int `yaml:"concurrency"`

	// Policy is the drain policy: batch, rolling or pool. Defaults to batch.
	Policy string `yaml:"policy"`

	// FailFast cancels a bounded fetch at its first failure.
	FailFast bool `yaml:"fail_fast"`

	// Timeout bounds each fetch. Zero means no per-fetch timeout.
	Timeout Duration `yaml:"timeout"`

	// MaxBodySize caps each body in bytes. Zero keeps the transport default.
	MaxBodySize int64 `yaml:"max_body_size"`

	// DigestFormat is "lower" or "upper". Defaults to lower.
	DigestFormat string `yaml:"digest_format"`

	// Headers are sent with every http(s) request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// RateLimit throttles how fast fetches are dispatched.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Resources lists individual resources.
	Resources []ResourceConfig `yaml:"resources"`

	// Sets lists resource sets that expand via cartesian product.
	Sets []SetConfig `yaml:"sets"`

	Watch     WatchConfig     `yaml:"watch"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Profiling ProfilingConfig `yaml:"profiling"`
}

// ResourceConfig defines a single resource.
type ResourceConfig struct {
	// ID is the resource identifier: an http(s) URL, a file path or
	// file:// URL, or an s3://bucket/key URI.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	ID string `yaml:"id"`

	// Name is the display name. Defaults to the ID.
	Name string `yaml:"name"`

	// ExpectedMD5 is compared against the digest in watch mode.
	ExpectedMD5 string `yaml:"expected_md5"`

	// Labels are metadata key-value pairs for grouping/filtering.
	Labels map[string]string `yaml:"labels"`
}

// SetConfig defines a resource set that expands via cartesian product.
//
// For example, with dimensions {env: [prod, staging], svc: [api, web]},
// the set expands to 4 resources: prod/api, prod/web, staging/api, staging/web.
type SetConfig struct {
	// Name is the base name for generated resources.
	Name string `yaml:"name"`

	// IDTemplate is a Go template for generating identifiers.
	// Dimension keys are available as template variables: {{.env}}, {{.svc}}
	IDTemplate string `yaml:"id_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	// Labels are additional labels applied to all generated resources.
	Labels map[string]string `yaml:"labels"`
}

// RateLimitConfig throttles dispatch. A zero PerSecond disables it.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	// Schedule is a cron expression or descriptor. Defaults to "@every 1m".
	Schedule string `yaml:"schedule"`

	// Listen is the ops HTTP server address. Defaults to ":9090".
	Listen string `yaml:"listen"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// ProfilingConfig configures continuous profiling with Pyroscope.
type ProfilingConfig struct {
	Enabled       bool              `yaml:"enabled"`
	ServerAddress string            `yaml:"server_address"`
	AppName       string            `yaml:"app_name"`
	TenantID      string            `yaml:"tenant_id"`
	Tags          map[string]string `yaml:"tags"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in resource IDs, set templates and
// header values. Defaults are applied before validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Watch.Schedule == "" {
		c.Watch.Schedule = DefaultSchedule
	}
	if c.Watch.Listen == "" {
		c.Watch.Listen = DefaultListen
	}
	if c.RateLimit.PerSecond > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}
	if c.Tracing.Enabled && c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
	if c.Profiling.AppName == "" {
		c.Profiling.AppName = DefaultAppName
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if _, err := boundfetch.ParseDrainPolicy(c.Policy); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if _, err := boundfetch.ParseDigestFormat(c.DigestFormat); err != nil {
		return fmt.Errorf("digest_format: %w", err)
	}
	if c.Timeout.Duration() < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", c.Timeout.Duration())
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max_body_size cannot be negative, got %d", c.MaxBodySize)
	}
	if c.RateLimit.PerSecond < 0 {
		return fmt.Errorf("rate_limit.per_second cannot be negative, got %g", c.RateLimit.PerSecond)
	}
	if c.RateLimit.PerSecond > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1, got %d", c.RateLimit.Burst)
	}

	for k, v := range c.Headers {
		if k == "" {
			return errors.New("headers: name cannot be empty")
		}
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}

	for i := range c.Resources {
		r := &c.Resources[i]

		if r.ID == "" {
			return fmt.Errorf("resources[%d]: id is required", i)
		}
		expanded, err := expandEnvVars(r.ID)
		if err != nil {
			return fmt.Errorf("resources[%d]: id: %w", i, err)
		}
		r.ID = expanded

		if err := boundfetch.ValidateID(r.ID); err != nil {
			return fmt.Errorf("resources[%d]: %w", i, err)
		}
		if r.ExpectedMD5 != "" {
			if _, err := boundfetch.NewResource(r.ID, boundfetch.WithExpectedDigest(r.ExpectedMD5)); err != nil {
				return fmt.Errorf("resources[%d] (%s): expected_md5: %w", i, r.ID, err)
			}
		}
	}

	for i := range c.Sets {
		s := &c.Sets[i]

		if s.Name == "" {
			return fmt.Errorf("sets[%d]: name is required", i)
		}

		if s.IDTemplate == "" {
			return fmt.Errorf("sets[%d] (%s): id_template is required", i, s.Name)
		}
		expanded, err := expandEnvVars(s.IDTemplate)
		if err != nil {
			return fmt.Errorf("sets[%d] (%s): id_template: %w", i, s.Name, err)
		}
		s.IDTemplate = expanded

		if _, err := template.New("").Parse(s.IDTemplate); err != nil {
			return fmt.Errorf("sets[%d] (%s): invalid id_template: %w", i, s.Name, err)
		}

		if len(s.Dimensions) == 0 {
			return fmt.Errorf("sets[%d] (%s): at least one dimension is required", i, s.Name)
		}
		for dimName, dimValues := range s.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("sets[%d] (%s): dimension %q has no values", i, s.Name, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("sets[%d] (%s): dimension %q has duplicate value %q", i, s.Name, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}
	}

	if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
		return fmt.Errorf("watch.schedule: invalid schedule %q: %w", c.Watch.Schedule, err)
	}

	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			return errors.New("tracing.endpoint is required when tracing is enabled")
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			return fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %g", c.Tracing.SampleRatio)
		}
	}

	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return errors.New("profiling.server_address is required when profiling is enabled")
	}

	return nil
}
