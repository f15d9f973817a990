package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"blustash/internal/blustash"
	"blustash/internal/database/migrations"
	"blustash/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteIndex implements the blustash.Database interface using SQLite.
//
// It carries at most one open batch transaction. Row operations execute in
// that transaction when present (so inserted rows get their ids before the
// batch commits), otherwise in their own implicit transaction. The index
// assumes a single active writer.
type SQLiteIndex struct {
	db   *sql.DB
	tx   *sql.Tx
	path string
}

// NewSQLiteIndex opens (and configures) a SQLite index store.
// path can be a file path or ":memory:" for an in-memory store.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteIndex{db: db, path: path}, nil
}

// NewSQLiteIndexFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteIndexFromDB(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db, path: ""}
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. Exported for tools and tests that need a properly configured
// connection. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a second pooled connection would also break
	// ":memory:" databases, which exist per connection.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is OFF for backward
	// compatibility). Subtree ownership relies on cascading deletes.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// h returns the open batch transaction if there is one, else the base connection.
func (s *SQLiteIndex) h() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Batch transaction control

func (s *SQLiteIndex) Begin() error {
	if s.tx != nil {
		return fmt.Errorf("batch transaction already open")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting batch transaction: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *SQLiteIndex) Commit() error {
	if s.tx == nil {
		return fmt.Errorf("no batch transaction open")
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("committing batch transaction: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Rollback() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("rolling back batch transaction: %w", err)
	}
	return nil
}

// Dir operations

func (s *SQLiteIndex) InvalidateAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE dir SET is_valid = 0"); err != nil {
		return fmt.Errorf("invalidating directories: %w", err)
	}
	if _, err := tx.Exec("UPDATE file SET is_valid = 0"); err != nil {
		return fmt.Errorf("invalidating files: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) FindDirByPathHash(hash int64) (*model.Dir, error) {
	row := s.h().QueryRow(
		"SELECT id, name, full_path_hash, parent_id, is_valid FROM dir WHERE full_path_hash = ? LIMIT 1",
		hash)
	d, err := scanDir(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding directory by path hash: %w", err)
	}
	return d, nil
}

func (s *SQLiteIndex) InsertDir(d *model.Dir) error {
	res, err := s.h().Exec(
		"INSERT INTO dir (name, full_path_hash, parent_id, is_valid) VALUES (?, ?, ?, ?)",
		d.Name, d.FullPathHash, nullableID(d.ParentID), d.IsValid)
	if err != nil {
		return fmt.Errorf("inserting directory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading directory id: %w", err)
	}
	d.ID = id
	return nil
}

func (s *SQLiteIndex) RevalidateDir(id int64, parentID *int64) error {
	_, err := s.h().Exec(
		"UPDATE dir SET is_valid = 1, parent_id = ? WHERE id = ?",
		nullableID(parentID), id)
	if err != nil {
		return fmt.Errorf("revalidating directory: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) ListDirs() ([]*model.Dir, error) {
	rows, err := s.h().Query("SELECT id, name, full_path_hash, parent_id, is_valid FROM dir ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing directories: %w", err)
	}
	defer rows.Close()

	var dirs []*model.Dir
	for rows.Next() {
		d, err := scanDir(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning directory row: %w", err)
		}
		dirs = append(dirs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing directories: %w", err)
	}
	return dirs, nil
}

// File operations

func (s *SQLiteIndex) LatestFileByDirAndName(dirID int64, name string) (*model.File, error) {
	row := s.h().QueryRow(
		`SELECT id, dir_id, name, size, content_hash, is_valid, is_safed, predecessor_id, scan_session_id
		 FROM file WHERE dir_id = ? AND name = ? ORDER BY id DESC LIMIT 1`,
		dirID, name)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file by dir and name: %w", err)
	}
	return f, nil
}

func (s *SQLiteIndex) InsertFile(f *model.File) error {
	res, err := s.h().Exec(
		`INSERT INTO file (dir_id, name, size, content_hash, is_valid, is_safed, predecessor_id, scan_session_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.DirID, f.Name, f.Size, f.ContentHash, f.IsValid, f.IsSafed,
		nullableID(f.PredecessorID), nullableID(f.ScanSessionID))
	if err != nil {
		return fmt.Errorf("inserting file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading file id: %w", err)
	}
	f.ID = id
	return nil
}

func (s *SQLiteIndex) RevalidateFile(id int64) error {
	_, err := s.h().Exec("UPDATE file SET is_valid = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("revalidating file: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) ListUnsafedFiles() ([]*model.File, error) {
	rows, err := s.h().Query(
		`SELECT id, dir_id, name, size, content_hash, is_valid, is_safed, predecessor_id, scan_session_id
		 FROM file WHERE is_valid = 1 AND is_safed = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing unsafed files: %w", err)
	}
	defer rows.Close()

	var files []*model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing unsafed files: %w", err)
	}
	return files, nil
}

func (s *SQLiteIndex) MarkFilesSafed(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.h().Exec("UPDATE file SET is_safed = 1 WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("marking files safed: %w", err)
	}
	return nil
}

// Sweep operations

func (s *SQLiteIndex) DeleteInvalidFiles() (int64, error) {
	res, err := s.h().Exec("DELETE FROM file WHERE is_valid = 0")
	if err != nil {
		return 0, fmt.Errorf("deleting invalid files: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted files: %w", err)
	}
	return n, nil
}

func (s *SQLiteIndex) DeleteInvalidDirs() (int64, error) {
	res, err := s.h().Exec("DELETE FROM dir WHERE is_valid = 0")
	if err != nil {
		return 0, fmt.Errorf("deleting invalid directories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted directories: %w", err)
	}
	return n, nil
}

// ScanSession operations

func (s *SQLiteIndex) InsertScanSession(sess *model.ScanSession) error {
	res, err := s.h().Exec(
		"INSERT INTO scan_session (uuid, started_at, changed_files) VALUES (?, ?, ?)",
		sess.UUID, sess.StartedAt, sess.ChangedFiles)
	if err != nil {
		return fmt.Errorf("inserting scan session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading scan session id: %w", err)
	}
	sess.ID = id
	return nil
}

func (s *SQLiteIndex) SetScanSessionChangedFiles(id int64, changed int64) error {
	_, err := s.h().Exec("UPDATE scan_session SET changed_files = ? WHERE id = ?", changed, id)
	if err != nil {
		return fmt.Errorf("updating scan session: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) LatestScanSession() (*model.ScanSession, error) {
	var sess model.ScanSession
	err := s.h().QueryRow(
		"SELECT id, uuid, started_at, changed_files FROM scan_session ORDER BY id DESC LIMIT 1").
		Scan(&sess.ID, &sess.UUID, &sess.StartedAt, &sess.ChangedFiles)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No sessions recorded
		}
		return nil, fmt.Errorf("finding latest scan session: %w", err)
	}
	return &sess, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteIndex) Path() string {
	return s.path
}

// CheckMigrations verifies the index schema is up-to-date.
func (s *SQLiteIndex) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp brings the index schema to the latest version.
func (s *SQLiteIndex) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// Close discards any open batch transaction and closes the connection.
func (s *SQLiteIndex) Close() error {
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// row scanning helpers

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDir(r rowScanner) (*model.Dir, error) {
	var d model.Dir
	var parentID sql.NullInt64
	if err := r.Scan(&d.ID, &d.Name, &d.FullPathHash, &parentID, &d.IsValid); err != nil {
		return nil, err
	}
	if parentID.Valid {
		d.ParentID = &parentID.Int64
	}
	return &d, nil
}

func scanFile(r rowScanner) (*model.File, error) {
	var f model.File
	var predecessorID, scanSessionID sql.NullInt64
	if err := r.Scan(&f.ID, &f.DirID, &f.Name, &f.Size, &f.ContentHash,
		&f.IsValid, &f.IsSafed, &predecessorID, &scanSessionID); err != nil {
		return nil, err
	}
	if predecessorID.Valid {
		f.PredecessorID = &predecessorID.Int64
	}
	if scanSessionID.Valid {
		f.ScanSessionID = &scanSessionID.Int64
	}
	return &f, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// Compile-time check that SQLiteIndex implements blustash.Database
var _ blustash.Database = (*SQLiteIndex)(nil)
