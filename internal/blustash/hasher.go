package blustash

// Hasher computes the digests the index is keyed by.
type Hasher interface {
	// Sum reads the file's current bytes exactly once and returns the byte
	// count and the content digest. The digest depends only on content,
	// never on name, path, or modification time.
	Sum(path string) (int64, []byte, error)

	// PathHash digests an absolute path string for existence lookups.
	PathHash(path string) int64
}
