package cryptox

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// DigestFile streams the file at path through SHA-256 and returns the
// lowercase hex digest. The read is abandoned if ctx is cancelled.
func DigestFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied artifact path
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	return DigestReader(ctx, f)
}

// DigestReader is DigestFile for an arbitrary reader.
func DigestReader(ctx context.Context, r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, &ctxReader{ctx: ctx, r: r}); err != nil {
		return "", fmt.Errorf("cryptox: digest: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestBytes returns the lowercase hex SHA-256 of b.
func DigestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// EqualDigest compares two hex digests in constant time, ignoring case and an
// optional "sha256:" prefix.
func EqualDigest(a, b string) bool {
	a = normalizeDigest(a)
	b = normalizeDigest(b)
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func normalizeDigest(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "sha256:")
}

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
