package model

import "time"

// Dir represents one directory in the indexed tree.
// The scan root stores its absolute path in Name; every other row stores a
// single path segment. FullPathHash is the xxh3-64 digest of the absolute
// path and is the lookup key during reconciliation.
type Dir struct {
	ID           int64
	Name         string
	FullPathHash int64
	ParentID     *int64 // nil only for the scan root
	IsValid      bool   // sweep flag
}

// File represents one observed version of a file within a Dir.
// Content changes are recorded by inserting a new row; the superseded row is
// linked via PredecessorID and removed at sweep. After sweep at most one row
// per (DirID, Name) is valid.
type File struct {
	ID            int64
	DirID         int64
	Name          string
	Size          int64
	ContentHash   []byte // xxh3-128, 16 bytes
	IsValid       bool   // sweep flag
	IsSafed       bool   // content has been included in a generated manifest
	PredecessorID *int64 // prior row for the same (dir, name), if superseded
	ScanSessionID *int64 // session that created this row
}

// ScanSession records one scan invocation that detected at least one change.
// A scan that changes nothing leaves no session behind.
type ScanSession struct {
	ID           int64
	UUID         string
	StartedAt    time.Time
	ChangedFiles int64
}
