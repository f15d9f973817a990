package blustash

// Path represents a validated filesystem path.
// Path objects are created by FilesystemManager.Resolve, which resolves the
// raw path to an absolute one and verifies it exists.
type Path struct {
	absPath string
	isDir   bool
}

// NewPath creates a Path from its components.
// This is primarily for use by FilesystemManager implementations.
func NewPath(absPath string, isDir bool) *Path {
	return &Path{absPath: absPath, isDir: isDir}
}

// String returns the absolute path as a string.
func (p *Path) String() string {
	return p.absPath
}

// IsDir returns true if this path points to a directory.
func (p *Path) IsDir() bool {
	return p.isDir
}
