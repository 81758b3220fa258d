// Package transport reads the raw bytes behind a resource identifier.
//
// This package is internal to boundfetch. It defines the [Transport] contract
// used by the bounded fetcher and provides implementations for HTTP(S), local
// files and S3 objects, plus a [Mux] that routes identifiers by scheme.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// DefaultMaxBodySize caps how many bytes a transport reads for a single
// resource unless configured otherwise.
const DefaultMaxBodySize int64 = 32 << 20 // 32MB

// ErrBodyTooLarge is returned when a resource exceeds the configured size cap.
var ErrBodyTooLarge = errors.New("resource exceeds maximum body size")

// ErrUnsupportedScheme is returned for identifiers whose scheme has no
// registered transport.
var ErrUnsupportedScheme = errors.New("unsupported scheme")

// Transport reads all bytes of a resource.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation while bytes are in transit.
type Transport interface {
	ReadAll(ctx context.Context, id string) ([]byte, error)
}

// Func adapts a function to the [Transport] interface.
type Func func(ctx context.Context, id string) ([]byte, error)

// ReadAll calls f(ctx, id).
func (f Func) ReadAll(ctx context.Context, id string) ([]byte, error) {
	return f(ctx, id)
}

// Scheme returns the lower-cased scheme of id.
//
// Identifiers without a scheme, and Windows drive letters such as "C:\data",
// are treated as local file paths and report "file".
func Scheme(id string) string {
	idx := strings.Index(id, "://")
	if idx <= 0 {
		return "file"
	}
	u, err := url.Parse(id)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return "file"
	}
	return strings.ToLower(u.Scheme)
}

// readLimited reads at most limit bytes from r, returning [ErrBodyTooLarge]
// when more are available.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, limit)
	}
	return body, nil
}
