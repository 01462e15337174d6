// Package digest computes and checks content digests of downloaded files.
// Digests are SHA-256 in lowercase hex.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/glorpus-work/hoard/pkg/errors"
)

// Size is the length of a hex encoded digest.
const Size = sha256.Size * 2

// Sum returns the digest of everything read from r.
func Sum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumBytes returns the digest of b.
func SumBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SumFile returns the digest of the file at path.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Sum(f)
}

// Verify computes the digest of path and compares it with expected.
// An empty expected digest accepts any content. The computed digest is returned
// in both cases so callers can record it as ground truth.
func Verify(path, expected string) (string, error) {
	actual, err := SumFile(path)
	if err != nil {
		return "", err
	}
	if expected != "" && !Equal(actual, expected) {
		return actual, fmt.Errorf("%w: expected %s, got %s", errors.ErrIntegrity, Normalize(expected), actual)
	}
	return actual, nil
}

// Normalize lowercases a digest and strips an optional "sha256:" prefix.
func Normalize(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	return strings.TrimPrefix(d, "sha256:")
}

// Equal compares two digests after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Valid reports whether d is a well-formed digest.
func Valid(d string) bool {
	d = Normalize(d)
	if len(d) != Size {
		return false
	}
	_, err := hex.DecodeString(d)
	return err == nil
}
