package boundfetch

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// DigestFormat selects how a content digest is rendered.
type DigestFormat string

const (
	// DigestLower renders digests as lowercase hex. This is the default.
	DigestLower DigestFormat = "lower"

	// DigestUpper renders digests as uppercase hex.
	DigestUpper DigestFormat = "upper"
)

// String returns the string representation of the format.
func (f DigestFormat) String() string {
	return string(f)
}

// Valid reports whether f is a known format.
func (f DigestFormat) Valid() bool {
	return f == DigestLower || f == DigestUpper
}

// ParseDigestFormat parses "lower" or "upper", case-insensitively. An empty
// string yields [DigestLower].
func ParseDigestFormat(s string) (DigestFormat, error) {
	f := DigestFormat(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return DigestLower, nil
	}
	if !f.Valid() {
		return "", fmt.Errorf("unknown digest format %q (expected 'lower' or 'upper')", s)
	}
	return f, nil
}

func (f DigestFormat) render(sum []byte) string {
	s := hex.EncodeToString(sum)
	if f == DigestUpper {
		return strings.ToUpper(s)
	}
	return s
}

// DigestBytes returns the MD5 digest of b as 32 lowercase hex characters.
//
// Empty input yields d41d8cd98f00b204e9800998ecf8427e.
func DigestBytes(b []byte) string {
	sum := md5.Sum(b)
	return DigestLower.render(sum[:])
}

// DigestReader returns the MD5 digest of everything read from r as 32
// lowercase hex characters.
func DigestReader(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return DigestLower.render(h.Sum(nil)), nil
}

// FormatDigest renders the MD5 of b using format f.
func FormatDigest(b []byte, f DigestFormat) string {
	sum := md5.Sum(b)
	return f.render(sum[:])
}
