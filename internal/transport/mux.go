package transport

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jpalmerr/boundfetch/internal/memo"
)

// Factory builds a [Transport] on first use of a scheme.
type Factory func(ctx context.Context) (Transport, error)

// Mux routes identifiers to transports by scheme.
//
// Transports registered with [Mux.HandleFactory] are built lazily the first
// time their scheme is used, and exactly once even when many fetches race on
// the first use. A factory that fails is retried on the next request.
type Mux struct {
	factories map[string]Factory
	built     *memo.Map[string, Transport]
}

// NewMux creates an empty [Mux].
func NewMux() *Mux {
	return &Mux{
		factories: make(map[string]Factory),
		built:     memo.New[string, Transport](),
	}
}

// Handle registers t for the given schemes.
func (m *Mux) Handle(t Transport, schemes ...string) {
	for _, s := range schemes {
		tr := t
		m.factories[strings.ToLower(s)] = func(context.Context) (Transport, error) { return tr, nil }
	}
}

// HandleFactory registers a lazily built transport for the given schemes.
// Schemes sharing one call share one built transport.
func (m *Mux) HandleFactory(f Factory, schemes ...string) {
	shared := memo.New[struct{}, Transport]()
	for _, s := range schemes {
		m.factories[strings.ToLower(s)] = func(ctx context.Context) (Transport, error) {
			return shared.GetOrCreate(struct{}{}, func() (Transport, error) { return f(ctx) })
		}
	}
}

// Supports reports whether a transport is registered for scheme.
func (m *Mux) Supports(scheme string) bool {
	_, ok := m.factories[strings.ToLower(scheme)]
	return ok
}

// Schemes returns the registered schemes in sorted order.
func (m *Mux) Schemes() []string {
	schemes := make([]string, 0, len(m.factories))
	for s := range m.factories {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// ReadAll dispatches id to the transport registered for its scheme.
func (m *Mux) ReadAll(ctx context.Context, id string) ([]byte, error) {
	scheme := Scheme(id)
	factory, ok := m.factories[scheme]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedScheme, scheme)
	}

	t, err := m.built.GetOrCreate(scheme, func() (Transport, error) {
		return factory(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("init %s transport: %w", scheme, err)
	}
	return t.ReadAll(ctx, id)
}

// Close releases idle resources held by built transports that support it.
func (m *Mux) Close() {
	m.built.Range(func(_ string, t Transport) bool {
		if c, ok := t.(interface{ Close() }); ok {
			c.Close()
		}
		return true
	})
}

// DefaultOptions configures [NewDefaultMux].
type DefaultOptions struct {
	HTTP        HTTPOptions
	MaxBodySize int64
}

// NewDefaultMux returns a [Mux] handling http, https, file and s3.
//
// The S3 client is only built, from the default AWS credential chain, when an
// s3:// identifier is first fetched.
func NewDefaultMux(opts DefaultOptions) *Mux {
	httpOpts := opts.HTTP
	if httpOpts.MaxBodySize == 0 {
		httpOpts.MaxBodySize = opts.MaxBodySize
	}

	m := NewMux()
	m.Handle(NewHTTP(httpOpts), "http", "https")
	m.Handle(File{MaxBodySize: opts.MaxBodySize}, "file")
	m.HandleFactory(func(ctx context.Context) (Transport, error) {
		return NewS3FromDefaultConfig(ctx, opts.MaxBodySize)
	}, "s3")
	return m
}
