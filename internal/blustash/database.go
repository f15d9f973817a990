package blustash

import "blustash/internal/model"

// Database is the index store the scanner and stager operate on.
//
// The store keeps a session-style batch transaction: Begin opens it, row
// operations execute inside it (assigning ids immediately, so parent rows can
// be referenced before the batch commits), and Commit makes the batch
// durable. Row operations called with no open batch run in their own implicit
// transaction. The store assumes a single active writer; concurrent batches
// are not supported.
type Database interface {
	// Batch transaction control

	// Begin opens a new batch transaction. At most one may be open.
	Begin() error
	// Commit commits the open batch transaction.
	Commit() error
	// Rollback discards the open batch transaction. Calling it with no open
	// batch is a no-op, so it is safe to defer.
	Rollback() error

	// Dir operations

	// InvalidateAll clears the is_valid flag on every Dir and File row, in
	// its own transaction. First phase of mark-and-sweep.
	InvalidateAll() error

	// FindDirByPathHash returns the Dir whose full_path_hash matches, or nil.
	// The hash is trusted as unique; there is no exact-path tiebreak.
	FindDirByPathHash(hash int64) (*model.Dir, error)

	// InsertDir inserts a new Dir and assigns its ID before returning.
	InsertDir(d *model.Dir) error

	// RevalidateDir marks a Dir valid again and reattaches its parent.
	RevalidateDir(id int64, parentID *int64) error

	// ListDirs returns every Dir row, for full-path reconstruction.
	ListDirs() ([]*model.Dir, error)

	// File operations

	// LatestFileByDirAndName returns the newest File row for (dirID, name),
	// or nil if the path has never been indexed.
	LatestFileByDirAndName(dirID int64, name string) (*model.File, error)

	// InsertFile inserts a new File and assigns its ID before returning.
	InsertFile(f *model.File) error

	// RevalidateFile marks a File row valid again.
	RevalidateFile(id int64) error

	// ListUnsafedFiles returns all valid File rows not yet flagged safed.
	ListUnsafedFiles() ([]*model.File, error)

	// MarkFilesSafed flags the given File rows safed in one transaction.
	MarkFilesSafed(ids []int64) error

	// Sweep operations

	// DeleteInvalidFiles removes every still-invalid File row and returns
	// the number of rows deleted.
	DeleteInvalidFiles() (int64, error)

	// DeleteInvalidDirs removes every still-invalid Dir row (cascading to
	// its subtree) and returns the number of Dir rows deleted.
	DeleteInvalidDirs() (int64, error)

	// ScanSession operations

	// InsertScanSession inserts a session row and assigns its ID.
	InsertScanSession(s *model.ScanSession) error

	// SetScanSessionChangedFiles stamps the final change count on a session.
	SetScanSessionChangedFiles(id int64, changed int64) error

	// LatestScanSession returns the most recent session, or nil.
	LatestScanSession() (*model.ScanSession, error)

	// Path returns the store's file path (or ":memory:").
	Path() string

	// Close closes the store.
	Close() error
}
