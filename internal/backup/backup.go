// Package backup encodes image bytes into the base64 payload embedded in
// record files, so a deleted image can be rebuilt from its sidecar alone.
package backup

import (
	"encoding/base64"
	"fmt"
	"os"
)

// Size limits for the embedded payload, in megabytes. Encoding a
// multi-gigabyte file into a sidecar would make every save crawl, so
// files above the limit simply carry no backup.
const (
	DefaultLimitMB = 10
	MinLimitMB     = 5
	MaxLimitMB     = 20
)

// Limit converts a configured limit in megabytes into bytes, clamping it
// into the supported range. Zero or negative means the default.
func Limit(mb int) int64 {
	if mb <= 0 {
		mb = DefaultLimitMB
	}
	if mb < MinLimitMB {
		mb = MinLimitMB
	}
	if mb > MaxLimitMB {
		mb = MaxLimitMB
	}
	return int64(mb) * 1024 * 1024
}

// WithinLimit reports whether a file of the given size gets a backup.
func WithinLimit(size, limit int64) bool {
	return size >= 0 && size <= limit
}

// Encode returns the base64 payload for raw image bytes.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode inverts Encode. Decode(Encode(b)) returns b for every b.
func Decode(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("while decoding backup payload: %w", err)
	}
	return data, nil
}

// EncodedLen returns the payload size produced for size raw bytes. The
// loader uses it to account for in-flight encodings.
func EncodedLen(size int64) int64 {
	if size <= 0 {
		return 0
	}
	return int64(base64.StdEncoding.EncodedLen(int(size)))
}

// EncodeFile reads path and returns its payload when the file passes the
// size gate. Files over the limit return an empty payload and no error.
func EncodeFile(path string, limit int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !WithinLimit(info.Size(), limit) {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Encode(data), nil
}
