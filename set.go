package boundfetch

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
)

// NewResourceSet creates multiple resources from an identifier template and
// dimensions using cartesian product expansion.
//
// The template uses Go's text/template syntax. For http and https templates
// dimension values are path-escaped before interpolation; for files and s3
// keys they are used as given. Missing template keys cause an error.
//
// Each resource name includes dimension values in the format
// "Base Name (val1/val2)" (values from alphabetically sorted keys).
//
// Labels are automatically added from dimension values. Static labels from
// [WithSetLabels] take precedence over dimension labels on collision.
//
// Example:
//
//	resources, err := boundfetch.NewResourceSet("builds",
//	    boundfetch.WithIDTemplate("s3://artifacts/{{.os}}/{{.arch}}/app.tar.gz"),
//	    boundfetch.WithDimensions(map[string][]string{
//	        "os":   {"linux", "darwin"},
//	        "arch": {"amd64", "arm64"},
//	    }),
//	)
//	// Returns 4 resources
func NewResourceSet(baseName string, opts ...SetOption) ([]Resource, error) {
	// validate base name
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base name cannot be empty")
	}

	cfg := &setConfig{
		staticLabels: make(map[string]string),
	}

	// apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// validate required fields
	if cfg.idTemplate == "" {
		return nil, errors.New("identifier template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	// missingkey=error so a typo in the template fails instead of rendering "<no value>"
	tmpl, err := template.New("id").Option("missingkey=error").Parse(cfg.idTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid identifier template: %w", err)
	}

	// only URL templates need path-escaped values; file paths and s3 keys keep them raw
	lower := strings.ToLower(cfg.idTemplate)
	escape := strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")

	// generate combinations
	combinations := cartesianProduct(cfg.dimensions)
	if len(combinations) == 0 {
		return nil, nil
	}

	// create resources
	resources := make([]Resource, 0, len(combinations))
	for _, combo := range combinations {
		// escape values for the template, keep originals for names and labels
		data := combo
		if escape {
			data = pathEscapeMap(combo)
		}

		id, err := executeTemplate(tmpl, data)
		if err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		name := formatSetName(baseName, combo)
		// merge labels: dimension first, static overrides
		labels := mergeMaps(combo, cfg.staticLabels)

		res, err := NewResource(id, WithName(name), WithLabels(flattenMap(labels)...))
		if err != nil {
			return nil, fmt.Errorf("failed to create resource '%s': %w", name, err)
		}
		resources = append(resources, res)
	}

	return resources, nil
}

// cartesianProduct generates all combinations of dimension values.
// Keys are sorted alphabetically for deterministic output.
// Values maintain their original slice order.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	// sort keys for deterministic iteration
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// an empty dimension yields no combinations (WithDimensions also rejects it)
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	// calculate total combinations
	total := 1
	for _, k := range keys {
		total *= len(dims[k])
	}

	result := make([]map[string]string, 0, total)

	// cartesian product
	indices := make([]int, len(keys))
	for {
		// indices is our position in the product
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		// increment indices (rightmost first)
		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

// pathEscapeMap returns a new map with all values path-escaped.
func pathEscapeMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = url.PathEscape(v)
	}
	return result
}

// executeTemplate renders the template with the given data.
func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatSetName creates a name in the format "Base (v1/v2)".
// Values are ordered by sorted keys for consistent naming.
func formatSetName(baseName string, combo map[string]string) string {
	keys := make([]string, 0, len(combo))
	for k := range combo {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = combo[k]
	}
	return fmt.Sprintf("%s (%s)", baseName, strings.Join(parts, "/"))
}

// mergeMaps merges multiple maps, with later maps taking precedence.
func mergeMaps(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// flattenMap converts a map to a slice of key-value pairs for variadic functions.
// Keys are sorted for deterministic output.
func flattenMap(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(m)*2)
	for _, k := range keys {
		result = append(result, k, m[k])
	}
	return result
}
