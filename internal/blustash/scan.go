package blustash

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"blustash/internal/model"
)

const (
	defaultBatchSize = 1000
	defaultWorkers   = 4
)

// ScannerConfig tunes the scan pipeline.
type ScannerConfig struct {
	BatchSize int // files per committed batch, default 1000
	Workers   int // concurrent hash operations, default 4
}

// Scanner synchronizes the index with the filesystem using mark-and-sweep:
// invalidate every row, revalidate what the traversal re-observes, delete
// what stays invalid. Content changes supersede the old File row instead of
// mutating it. A single Scanner invocation assumes it is the only writer.
type Scanner struct {
	db        Database
	fsmgr     FilesystemManager
	hasher    Hasher
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	progress  ProgressObserver
	batchSize int
	workers   int
}

// NewScanner creates a Scanner with the provided dependencies.
// A nil progress observer defaults to NopProgress.
func NewScanner(db Database, fsmgr FilesystemManager, hasher Hasher, logger Logger, clock Clock, idgen IDGenerator, progress ProgressObserver, cfg ScannerConfig) *Scanner {
	if progress == nil {
		progress = NopProgress{}
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Scanner{
		db:        db,
		fsmgr:     fsmgr,
		hasher:    hasher,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		progress:  progress,
		batchSize: batchSize,
		workers:   workers,
	}
}

// ScanStats reports the outcome of one scan.
type ScanStats struct {
	DirsTotal   int
	FilesTotal  int
	Inserted    int
	Superseded  int
	Deleted     int
	DeletedDirs int
	SessionUUID string // empty when the scan changed nothing
}

// Changed returns the total number of detected changes.
func (st *ScanStats) Changed() int {
	return st.Inserted + st.Superseded + st.Deleted
}

// fileTask is one file awaiting hashing, bound to its owning Dir row.
type fileTask struct {
	path string
	dir  *model.Dir
}

// hashResult carries the outcome of hashing one file. A failed hash is
// logged and skipped; the row it would have revalidated is swept as absent.
type hashResult struct {
	size int64
	sum  []byte
	err  error
}

// Scan runs one invalidate → reconcile → sweep cycle from root.
//
// Directory upserts run sequentially inside the open batch transaction so
// every child row references a parent that already has an id. File hashing
// runs on a bounded worker pool; the resulting inserts are applied in batch
// order and committed every batchSize files, so an interrupted scan keeps
// all previously committed batches. The protocol is idempotent: re-running
// after any interruption converges.
func (s *Scanner) Scan(ctx context.Context, root *Path) (*ScanStats, error) {
	if root == nil {
		return nil, fmt.Errorf("scan root is required")
	}
	if !root.IsDir() {
		return nil, fmt.Errorf("scan root is not a directory: %s", root.String())
	}
	if _, err := s.fsmgr.ListDir(root.String()); err != nil {
		return nil, fmt.Errorf("reading scan root: %w", err)
	}

	totalDirs, totalFiles := s.countTree(root.String())
	stats := &ScanStats{DirsTotal: totalDirs, FilesTotal: totalFiles}
	s.logger.Info("scan starting", "root", root.String(), "dirs", totalDirs, "files", totalFiles)

	// Phase 1: mark. Own transaction; a crash afterwards is repaired by the
	// next scan re-running the full cycle.
	if err := s.db.InvalidateAll(); err != nil {
		return nil, fmt.Errorf("invalidating index: %w", err)
	}

	if err := s.db.Begin(); err != nil {
		return nil, fmt.Errorf("opening batch transaction: %w", err)
	}
	defer s.db.Rollback()

	// Phase 2a: reconcile directories, collecting file work on the way.
	tasks, err := s.walkDirs(ctx, root.String(), totalDirs)
	if err != nil {
		return nil, err
	}

	// Phase 2b: hash and reconcile files in committed batches.
	var session *model.ScanSession
	ensureSession := func() error {
		if session != nil {
			return nil
		}
		session = &model.ScanSession{UUID: s.idgen.New(), StartedAt: s.clock.Now()}
		if err := s.db.InsertScanSession(session); err != nil {
			session = nil
			return fmt.Errorf("recording scan session: %w", err)
		}
		return nil
	}

	processed := 0
	for start := 0; start < len(tasks); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk := tasks[start:min(start+s.batchSize, len(tasks))]
		results := s.hashChunk(chunk)

		for i, task := range chunk {
			processed++
			r := results[i]
			if r.err != nil {
				s.logger.Error("hashing file", "path", task.path, "error", r.err)
				continue
			}
			name := filepath.Base(task.path)
			prior, err := s.db.LatestFileByDirAndName(task.dir.ID, name)
			if err != nil {
				return nil, fmt.Errorf("looking up file %s: %w", task.path, err)
			}
			if prior != nil && bytes.Equal(prior.ContentHash, r.sum) {
				if err := s.db.RevalidateFile(prior.ID); err != nil {
					return nil, fmt.Errorf("revalidating file %s: %w", task.path, err)
				}
				continue
			}

			if err := ensureSession(); err != nil {
				return nil, err
			}
			f := &model.File{
				DirID:         task.dir.ID,
				Name:          name,
				Size:          r.size,
				ContentHash:   r.sum,
				IsValid:       true,
				ScanSessionID: &session.ID,
			}
			if prior != nil {
				// The prior row stays invalid and is retired at sweep.
				f.PredecessorID = &prior.ID
				stats.Superseded++
			} else {
				stats.Inserted++
			}
			if err := s.db.InsertFile(f); err != nil {
				return nil, fmt.Errorf("inserting file %s: %w", task.path, err)
			}
			s.logger.Debug("indexed file", "path", task.path, "superseded", prior != nil)
		}

		if err := s.db.Commit(); err != nil {
			return nil, fmt.Errorf("committing batch: %w", err)
		}
		if err := s.db.Begin(); err != nil {
			return nil, fmt.Errorf("opening batch transaction: %w", err)
		}
		s.progress.FileBatch(processed, totalFiles)
	}

	// Phase 3: sweep. Files first; directory validity does not by itself
	// keep a directory alive.
	deletedFiles, err := s.db.DeleteInvalidFiles()
	if err != nil {
		return nil, fmt.Errorf("sweeping files: %w", err)
	}
	deletedDirs, err := s.db.DeleteInvalidDirs()
	if err != nil {
		return nil, fmt.Errorf("sweeping directories: %w", err)
	}
	stats.Deleted = int(deletedFiles)
	stats.DeletedDirs = int(deletedDirs)

	if stats.Changed() > 0 {
		if err := ensureSession(); err != nil {
			return nil, err
		}
		if err := s.db.SetScanSessionChangedFiles(session.ID, int64(stats.Changed())); err != nil {
			return nil, fmt.Errorf("stamping scan session: %w", err)
		}
		stats.SessionUUID = session.UUID
	}

	if err := s.db.Commit(); err != nil {
		return nil, fmt.Errorf("committing sweep: %w", err)
	}

	s.logger.Info("scan complete",
		"inserted", stats.Inserted,
		"superseded", stats.Superseded,
		"deleted_files", stats.Deleted,
		"deleted_dirs", stats.DeletedDirs)
	return stats, nil
}

// walkDirs reconciles the directory tree depth-first and returns the regular
// files discovered, each bound to its durably-assigned Dir row. Symlinks are
// never followed. An unreadable directory is logged and its subtree skipped;
// whatever was indexed below it stays invalid and is swept.
func (s *Scanner) walkDirs(ctx context.Context, rootPath string, totalDirs int) ([]fileTask, error) {
	var tasks []fileTask
	seen := 0

	var walk func(path string, parent *model.Dir) error
	walk = func(path string, parent *model.Dir) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		pathHash := s.hasher.PathHash(path)
		dir, err := s.db.FindDirByPathHash(pathHash)
		if err != nil {
			return fmt.Errorf("looking up directory %s: %w", path, err)
		}

		var parentID *int64
		if parent != nil {
			parentID = &parent.ID
		}

		if dir != nil {
			// Reattach the parent if it moved; not expected for a matching
			// path hash.
			if err := s.db.RevalidateDir(dir.ID, parentID); err != nil {
				return fmt.Errorf("revalidating directory %s: %w", path, err)
			}
			dir.ParentID = parentID
			dir.IsValid = true
			s.logger.Debug("revalidated directory", "path", path)
		} else {
			name := filepath.Base(path)
			if parent == nil {
				// The root row keeps the absolute path so staging can
				// rebuild full source paths from the parent chain.
				name = path
			}
			dir = &model.Dir{Name: name, FullPathHash: pathHash, ParentID: parentID, IsValid: true}
			// InsertDir assigns the id inside the open batch; children
			// reference it before the batch commits.
			if err := s.db.InsertDir(dir); err != nil {
				return fmt.Errorf("inserting directory %s: %w", path, err)
			}
			s.logger.Debug("indexed new directory", "path", path)
		}

		seen++
		s.progress.DirScanned(seen, totalDirs)

		entries, err := s.fsmgr.ListDir(path)
		if err != nil {
			s.logger.Error("reading directory", "path", path, "error", err)
			return nil
		}
		for _, e := range entries {
			if e.IsSymlink {
				continue
			}
			child := filepath.Join(path, e.Name)
			if e.IsDir {
				if err := walk(child, dir); err != nil {
					return err
				}
			} else if e.IsRegular {
				tasks = append(tasks, fileTask{path: child, dir: dir})
			}
		}
		return nil
	}

	if err := walk(rootPath, nil); err != nil {
		return nil, err
	}
	return tasks, nil
}

// hashChunk hashes one batch of files on a bounded worker pool. Workers
// never fail the group; per-file errors travel in the result slot.
func (s *Scanner) hashChunk(chunk []fileTask) []hashResult {
	results := make([]hashResult, len(chunk))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, task := range chunk {
		i, task := i, task
		g.Go(func() error {
			size, sum, err := s.hasher.Sum(task.path)
			results[i] = hashResult{size: size, sum: sum, err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

// countTree counts directories and files under path, excluding symlinks.
// Used only for progress totals; listing errors are resolved by the
// reconcile pass and ignored here.
func (s *Scanner) countTree(path string) (dirs, files int) {
	dirs = 1
	entries, err := s.fsmgr.ListDir(path)
	if err != nil {
		return dirs, files
	}
	for _, e := range entries {
		if e.IsSymlink {
			continue
		}
		if e.IsDir {
			d, f := s.countTree(filepath.Join(path, e.Name))
			dirs += d
			files += f
		} else if e.IsRegular {
			files++
		}
	}
	return dirs, files
}
