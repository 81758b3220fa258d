package boundfetch

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/jpalmerr/boundfetch/internal/transport"
)

// Resource is a named resource identifier with optional metadata.
//
// Resource is immutable after creation via [NewResource]. The fetch methods
// take plain identifier strings; use [IDs] to convert a slice of resources.
// Watch mode uses the name, labels and expected digest.
type Resource struct {
	id       string
	name     string
	expected string
	labels   map[string]string
}

// ID returns the resource identifier (URL, file path or s3:// URI).
func (r Resource) ID() string {
	return r.id
}

// Name returns the display name. Defaults to the identifier.
func (r Resource) Name() string {
	return r.name
}

// ExpectedDigest returns the lowercase MD5 the resource is expected to have,
// or "" when none was configured.
func (r Resource) ExpectedDigest() string {
	return r.expected
}

// Labels returns a copy of the resource's labels. Returns nil if no labels
// are set.
func (r Resource) Labels() map[string]string {
	if len(r.labels) == 0 {
		return nil
	}
	return copyMap(r.labels)
}

// NewResource validates id and creates a [Resource].
//
// Returns an error wrapping [ErrInvalidArgument] if the identifier is
// malformed or an option is invalid.
//
// Example:
//
//	res, err := boundfetch.NewResource("https://example.com/release.tar.gz",
//	    boundfetch.WithName("release"),
//	    boundfetch.WithExpectedDigest("5d41402abc4b2a76b9719d911017c592"),
//	)
func NewResource(id string, opts ...ResourceOption) (Resource, error) {
	if err := ValidateID(id); err != nil {
		return Resource{}, err
	}

	cfg := &resourceConfig{
		labels: make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Resource{}, invalidArgument("resource %q: %v", id, err)
		}
	}

	name := cfg.name
	if name == "" {
		name = id
	}

	return Resource{
		id:       id,
		name:     name,
		expected: cfg.expected,
		labels:   cfg.labels,
	}, nil
}

// IDs returns the identifiers of resources, in order.
func IDs(resources []Resource) []string {
	ids := make([]string, len(resources))
	for i, r := range resources {
		ids[i] = r.id
	}
	return ids
}

// ValidateID reports whether id is a well-formed resource identifier.
//
// An identifier must be non-empty and free of control characters. http and
// https identifiers need a host; s3 identifiers need a bucket and key; file
// URLs must be local. Other schemes are accepted here and rejected by the
// fetcher only when no transport handles them.
//
// Returns an error wrapping [ErrInvalidArgument].
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return invalidArgument("empty resource identifier")
	}
	if strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return invalidArgument("resource identifier %q contains control characters", id)
	}

	switch transport.Scheme(id) {
	case "http", "https":
		u, err := url.Parse(id)
		if err != nil {
			return invalidArgument("resource identifier %q: %v", id, err)
		}
		if u.Host == "" {
			return invalidArgument("resource identifier %q has no host", id)
		}
	case "s3":
		if _, _, err := transport.ParseS3URI(id); err != nil {
			return invalidArgument("%v", err)
		}
	case "file":
		if _, err := transport.FilePath(id); err != nil {
			return invalidArgument("resource identifier %q: %v", id, err)
		}
	}
	return nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
