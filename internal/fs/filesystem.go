package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"blustash/internal/blustash"
)

// OSFilesystemManager is the real filesystem implementation of
// blustash.FilesystemManager, backed by the os package.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a filesystem manager that operates on the
// real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*blustash.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	return blustash.NewPath(absPath, info.IsDir()), nil
}

// ListDir returns the entries of a directory in one readdir pass.
// Symlinks are reported as such; the caller decides to skip them.
func (m *OSFilesystemManager) ListDir(path string) ([]blustash.DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	result := make([]blustash.DirEntry, 0, len(entries))
	for _, e := range entries {
		t := e.Type()
		result = append(result, blustash.DirEntry{
			Name:      e.Name(),
			IsDir:     e.IsDir(),
			IsSymlink: t&fs.ModeSymlink != 0,
			IsRegular: t.IsRegular(),
		})
	}
	return result, nil
}

// Compile-time check that OSFilesystemManager implements blustash.FilesystemManager
var _ blustash.FilesystemManager = (*OSFilesystemManager)(nil)
