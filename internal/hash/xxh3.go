package hash

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"

	"blustash/internal/blustash"
)

// XXH3 computes the index digests with the xxh3 family: a 128-bit content
// digest and a 64-bit path digest. Content digests depend only on the bytes
// read, so two files with identical content hash identically regardless of
// name or location.
type XXH3 struct{}

// New creates an XXH3 hasher.
func New() *XXH3 { return &XXH3{} }

// Sum streams the file's bytes through xxh3-128 and returns the byte count
// and the 16-byte digest.
func (XXH3) Sum(path string) (int64, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	h := xxh3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, nil, fmt.Errorf("reading file: %w", err)
	}
	sum := h.Sum128().Bytes()
	return n, sum[:], nil
}

// PathHash digests an absolute path string with xxh3-64.
func (XXH3) PathHash(path string) int64 {
	return int64(xxh3.HashString(path))
}

// Compile-time check that XXH3 implements blustash.Hasher
var _ blustash.Hasher = (*XXH3)(nil)
