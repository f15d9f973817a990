package blustash

// DirEntry describes one entry of a listed directory.
// Symlinks are reported as such and never followed; the scanner treats them
// as leaves and skips them.
type DirEntry struct {
	Name      string
	IsDir     bool
	IsSymlink bool
	IsRegular bool
}

// FilesystemManager abstracts the filesystem operations the scanner needs,
// so traversal logic can be tested against temporary trees or fakes.
type FilesystemManager interface {
	// Resolve validates a raw path: resolves it to an absolute path and
	// stats it. Returns an error if the path does not exist.
	Resolve(rawPath string) (*Path, error)

	// ListDir returns the entries of a directory. The listing is a single
	// readdir pass; the scanner decides what to descend into.
	ListDir(path string) ([]DirEntry, error)
}
