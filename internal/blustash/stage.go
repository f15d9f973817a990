package blustash

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"blustash/internal/model"
)

const (
	defaultBackupDir = "Backup"
	defaultDataDir   = "data"
)

// StageParams controls one staging pass.
type StageParams struct {
	BasePath   string // scanned root the relative destination paths are computed against
	OutputFile string // where the manifest is written
	BackupDir  string // on-disc directory for the index db and sidecar, default "Backup"
	DataDir    string // on-disc directory for file data, default "data"
}

// StageResult reports what a staging pass produced.
type StageResult struct {
	ManifestPath string
	MetaPath     string
	Staged       int
	Skipped      int
}

// Stager selects valid, not-yet-safed files from the index and emits a
// mapping manifest for the disc-mastering tool: one "source destination"
// line per file, plus the index db file and a metadata sidecar. Immediately
// after the manifest is written every selected row is flagged safed; the
// flag does not wait for confirmation that the physical export succeeded.
type Stager struct {
	db     Database
	logger Logger
	clock  Clock
}

// NewStager creates a Stager with the provided dependencies.
func NewStager(db Database, logger Logger, clock Clock) *Stager {
	return &Stager{db: db, logger: logger, clock: clock}
}

// manifestMeta is the sidecar record shipped alongside the manifest.
type manifestMeta struct {
	Timestamp string `json:"timestamp"`
	FileCount int    `json:"file_count"`
}

// CreateManifest writes the mapping manifest and sidecar, then flags the
// staged rows safed in one commit.
func (st *Stager) CreateManifest(params StageParams) (*StageResult, error) {
	base, err := filepath.Abs(params.BasePath)
	if err != nil {
		return nil, fmt.Errorf("resolving base path: %w", err)
	}
	backupDir := params.BackupDir
	if backupDir == "" {
		backupDir = defaultBackupDir
	}
	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = defaultDataDir
	}

	files, err := st.db.ListUnsafedFiles()
	if err != nil {
		return nil, fmt.Errorf("selecting unsafed files: %w", err)
	}
	dirs, err := st.db.ListDirs()
	if err != nil {
		return nil, fmt.Errorf("loading directories: %w", err)
	}
	byID := make(map[int64]*model.Dir, len(dirs))
	for _, d := range dirs {
		byID[d.ID] = d
	}

	result := &StageResult{ManifestPath: params.OutputFile}
	var lines []string
	var ids []int64

	for _, f := range files {
		dirPath, err := reconstructPath(byID, f.DirID)
		if err != nil {
			return nil, fmt.Errorf("reconstructing path for file %d: %w", f.ID, err)
		}
		src := filepath.Join(dirPath, f.Name)
		rel, err := filepath.Rel(base, src)
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			// A root mismatch must not corrupt the manifest; the row stays
			// unsafed and is reconsidered on the next pass.
			st.logger.Warn("file is not under base path", "file", src, "base", base)
			result.Skipped++
			continue
		}
		dest := path.Join("/", dataDir, filepath.ToSlash(rel))
		lines = append(lines, src+" "+dest)
		ids = append(ids, f.ID)
	}
	result.Staged = len(ids)

	// The index travels with the backup. An in-memory index has no file to ship.
	if dbPath := st.db.Path(); dbPath != "" && dbPath != ":memory:" {
		absDB, err := filepath.Abs(dbPath)
		if err != nil {
			return nil, fmt.Errorf("resolving index db path: %w", err)
		}
		lines = append(lines, absDB+" "+path.Join("/", backupDir, filepath.Base(absDB)))
	}

	meta := manifestMeta{
		Timestamp: st.clock.Now().UTC().Format(time.RFC3339),
		FileCount: len(ids),
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding metadata sidecar: %w", err)
	}
	metaPath := strings.TrimSuffix(params.OutputFile, filepath.Ext(params.OutputFile)) + ".meta.json"
	if err := os.WriteFile(metaPath, metaBytes, 0644); err != nil {
		return nil, fmt.Errorf("writing metadata sidecar: %w", err)
	}
	result.MetaPath = metaPath
	absMeta, err := filepath.Abs(metaPath)
	if err != nil {
		return nil, fmt.Errorf("resolving sidecar path: %w", err)
	}
	lines = append(lines, absMeta+" "+path.Join("/", backupDir, "meta.json"))

	if err := os.WriteFile(params.OutputFile, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	st.logger.Info("wrote manifest", "path", params.OutputFile, "staged", result.Staged, "skipped", result.Skipped)

	if len(ids) > 0 {
		if err := st.db.MarkFilesSafed(ids); err != nil {
			return nil, fmt.Errorf("flagging files safed: %w", err)
		}
		st.logger.Info("marked files safed", "count", len(ids))
	}

	return result, nil
}

// reconstructPath rebuilds a Dir's absolute path by walking the parent chain
// to the root and joining names in order. The root row stores the absolute
// scan root, so the result is absolute.
func reconstructPath(dirs map[int64]*model.Dir, id int64) (string, error) {
	var parts []string
	cur, ok := dirs[id]
	if !ok {
		return "", fmt.Errorf("directory %d not found", id)
	}
	for cur != nil {
		parts = append(parts, cur.Name)
		if cur.ParentID == nil {
			break
		}
		next, ok := dirs[*cur.ParentID]
		if !ok {
			return "", fmt.Errorf("directory %d has dangling parent %d", cur.ID, *cur.ParentID)
		}
		cur = next
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return filepath.Join(parts...), nil
}
