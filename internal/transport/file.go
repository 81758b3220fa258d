package transport

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// File reads resources from the local filesystem.
//
// Identifiers may be bare paths or file:// URLs. The read checks the context
// between chunks, so cancelling a large read stops it promptly.
type File struct {
	// MaxBodySize caps the bytes read per file. Zero uses [DefaultMaxBodySize].
	MaxBodySize int64
}

// ReadAll returns the contents of the file named by id.
//
// Errors from the filesystem are wrapped, so errors.Is(err, fs.ErrNotExist)
// still holds for a missing file.
func (f File) ReadAll(ctx context.Context, id string) ([]byte, error) {
	path, err := FilePath(id)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = fh.Close() }()

	body, err := readLimited(&ctxReader{ctx: ctx, r: fh}, f.MaxBodySize)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return body, nil
}

// FilePath converts a bare path or file:// URL into a filesystem path.
func FilePath(id string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(id), "file://") {
		if id == "" {
			return "", fmt.Errorf("empty file path")
		}
		return filepath.Clean(id), nil
	}

	u, err := url.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid file url %q: %w", id, err)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("file url %q: remote host %q not supported", id, u.Host)
	}
	if u.Path == "" {
		return "", fmt.Errorf("file url %q has no path", id)
	}
	return filepath.FromSlash(u.Path), nil
}

// ctxReader stops reading once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
