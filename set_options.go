package boundfetch

import (
	"errors"
	"fmt"
)

// setConfig holds configuration during resource set construction.
type setConfig struct {
	idTemplate   string
	dimensions   map[string][]string
	staticLabels map[string]string
}

// SetOption configures resource set generation.
// SetOption implements the functional options pattern for [NewResourceSet].
type SetOption func(*setConfig) error

// WithIDTemplate sets the identifier template for resource generation.
// The template uses Go's text/template syntax with dimension keys as variables.
//
// Example:
//
//	WithIDTemplate("https://cdn.example.com/{{.channel}}/{{.version}}/SHA256SUMS")
//
// Returns an error if the template string is empty.
func WithIDTemplate(tmpl string) SetOption {
	return func(cfg *setConfig) error {
		if tmpl == "" {
			return errors.New("identifier template required")
		}
		cfg.idTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the dimension values for cartesian product expansion.
// Each key in the map becomes a template variable, and the cartesian product
// of all values generates the resource combinations.
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithDimensions(dims map[string][]string) SetOption {
	return func(cfg *setConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithSetLabels adds static labels to all generated resources.
// On collision, static labels take precedence over dimension labels.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
func WithSetLabels(keyValues ...string) SetOption {
	return func(cfg *setConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithSetLabels requires an even number of arguments (key-value pairs)")
		}
		if cfg.staticLabels == nil {
			cfg.staticLabels = make(map[string]string)
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.staticLabels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}
