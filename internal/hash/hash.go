// Package hash computes and verifies SHA-256 content fingerprints.
//
// Fingerprints are lowercase hex, 64 characters, and depend only on file
// bytes. Every function here is safe for concurrent use.
package hash

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// Sum returns the fingerprint of an in-memory buffer.
func Sum(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// File streams path through SHA-256 and returns its fingerprint. The file
// is never held in memory as a whole.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := sha256.New()
	_, err = io.Copy(hasher, f)
	if err != nil {
		return "", fmt.Errorf("while hashing %s: %w", path, err)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// Verify recomputes the fingerprint of path and compares it against want.
func Verify(path string, want string) (bool, error) {
	got, err := File(path)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
