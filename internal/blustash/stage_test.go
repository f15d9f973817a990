package blustash_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"blustash/internal/blustash"
	"blustash/internal/database"
	"blustash/internal/model"
	"blustash/internal/testutil"
)

// seedIndex inserts a root dir (absolute path in Name), one subdirectory and
// returns both rows.
func seedIndex(t *testing.T, db blustash.Database, root string) (*model.Dir, *model.Dir) {
	t.Helper()
	rootDir := &model.Dir{Name: root, FullPathHash: 1, IsValid: true}
	if err := db.InsertDir(rootDir); err != nil {
		t.Fatalf("inserting root dir: %v", err)
	}
	sub := &model.Dir{Name: "sub", FullPathHash: 2, ParentID: &rootDir.ID, IsValid: true}
	if err := db.InsertDir(sub); err != nil {
		t.Fatalf("inserting sub dir: %v", err)
	}
	return rootDir, sub
}

func insertFile(t *testing.T, db blustash.Database, dir *model.Dir, name string, safed bool) *model.File {
	t.Helper()
	f := &model.File{
		DirID:       dir.ID,
		Name:        name,
		Size:        int64(len(name)),
		ContentHash: []byte("0123456789abcdef"),
		IsValid:     true,
		IsSafed:     safed,
	}
	if err := db.InsertFile(f); err != nil {
		t.Fatalf("inserting file %s: %v", name, err)
	}
	return f
}

func readManifest(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestCreateManifest(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	root := t.TempDir()
	rootDir, sub := seedIndex(t, db, root)

	unsafed := insertFile(t, db, sub, "fresh.txt", false)
	insertFile(t, db, rootDir, "already.txt", true)

	out := filepath.Join(t.TempDir(), "mapping.txt")
	stager := blustash.NewStager(db, blustash.NewNopLogger(), testutil.FixedClock())
	res, err := stager.CreateManifest(blustash.StageParams{BasePath: root, OutputFile: out})
	if err != nil {
		t.Fatalf("staging failed: %v", err)
	}

	if res.Staged != 1 {
		t.Errorf("Staged = %d, want 1", res.Staged)
	}
	if res.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", res.Skipped)
	}

	lines := readManifest(t, out)
	// One file line plus the metadata sidecar line (in-memory index ships no db file).
	if len(lines) != 2 {
		t.Fatalf("manifest lines = %d, want 2:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	wantSrc := filepath.Join(root, "sub", "fresh.txt")
	if lines[0] != wantSrc+" /data/sub/fresh.txt" {
		t.Errorf("file line = %q, want %q", lines[0], wantSrc+" /data/sub/fresh.txt")
	}
	if !strings.HasSuffix(lines[1], " /Backup/meta.json") {
		t.Errorf("sidecar line = %q, want /Backup/meta.json destination", lines[1])
	}
	for _, line := range lines {
		if strings.Contains(line, "already.txt") {
			t.Errorf("safed file leaked into manifest: %q", line)
		}
	}

	// The staged row is flagged safed right away.
	remaining, err := db.ListUnsafedFiles()
	if err != nil {
		t.Fatalf("listing unsafed files: %v", err)
	}
	for _, f := range remaining {
		if f.ID == unsafed.ID {
			t.Error("staged file still unsafed after manifest written")
		}
	}
}

func TestCreateManifestSidecar(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	root := t.TempDir()
	rootDir, _ := seedIndex(t, db, root)
	insertFile(t, db, rootDir, "a.txt", false)

	out := filepath.Join(t.TempDir(), "mapping.txt")
	stager := blustash.NewStager(db, blustash.NewNopLogger(), testutil.FixedClock())
	res, err := stager.CreateManifest(blustash.StageParams{BasePath: root, OutputFile: out})
	if err != nil {
		t.Fatalf("staging failed: %v", err)
	}

	wantMeta := filepath.Join(filepath.Dir(out), "mapping.meta.json")
	if res.MetaPath != wantMeta {
		t.Errorf("MetaPath = %q, want %q", res.MetaPath, wantMeta)
	}

	data, err := os.ReadFile(res.MetaPath)
	if err != nil {
		t.Fatalf("reading sidecar: %v", err)
	}
	var meta struct {
		Timestamp string `json:"timestamp"`
		FileCount int    `json:"file_count"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("decoding sidecar: %v", err)
	}
	if meta.Timestamp != "2025-02-20T18:45:00Z" {
		t.Errorf("timestamp = %q, want 2025-02-20T18:45:00Z", meta.Timestamp)
	}
	if meta.FileCount != 1 {
		t.Errorf("file_count = %d, want 1", meta.FileCount)
	}
}

func TestCreateManifestBaseMismatch(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	root := t.TempDir()
	rootDir, _ := seedIndex(t, db, root)
	outside := insertFile(t, db, rootDir, "a.txt", false)

	// Stage against an unrelated base; the file cannot be expressed under it.
	otherBase := t.TempDir()
	out := filepath.Join(t.TempDir(), "mapping.txt")
	stager := blustash.NewStager(db, blustash.NewNopLogger(), testutil.FixedClock())
	res, err := stager.CreateManifest(blustash.StageParams{BasePath: otherBase, OutputFile: out})
	if err != nil {
		t.Fatalf("staging failed: %v", err)
	}

	if res.Staged != 0 {
		t.Errorf("Staged = %d, want 0", res.Staged)
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}

	// A skipped row stays unsafed so the next pass reconsiders it.
	remaining, err := db.ListUnsafedFiles()
	if err != nil {
		t.Fatalf("listing unsafed files: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != outside.ID {
		t.Errorf("unsafed rows = %+v, want the skipped file", remaining)
	}
}

func TestCreateManifestShipsIndexFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fs_index.db")
	db, err := database.NewSQLiteIndex(dbPath)
	if err != nil {
		t.Fatalf("opening index: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	root := t.TempDir()
	rootDir, _ := seedIndex(t, db, root)
	insertFile(t, db, rootDir, "a.txt", false)

	out := filepath.Join(t.TempDir(), "mapping.txt")
	stager := blustash.NewStager(db, blustash.NewNopLogger(), testutil.FixedClock())
	if _, err := stager.CreateManifest(blustash.StageParams{BasePath: root, OutputFile: out}); err != nil {
		t.Fatalf("staging failed: %v", err)
	}

	found := false
	for _, line := range readManifest(t, out) {
		if strings.HasSuffix(line, " /Backup/fs_index.db") {
			found = true
		}
	}
	if !found {
		t.Error("manifest is missing the index db line")
	}
}

func TestCreateManifestNestedPathReconstruction(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	root := t.TempDir()
	rootDir := &model.Dir{Name: root, FullPathHash: 1, IsValid: true}
	if err := db.InsertDir(rootDir); err != nil {
		t.Fatalf("inserting root dir: %v", err)
	}
	a := &model.Dir{Name: "a", FullPathHash: 2, ParentID: &rootDir.ID, IsValid: true}
	if err := db.InsertDir(a); err != nil {
		t.Fatalf("inserting dir a: %v", err)
	}
	b := &model.Dir{Name: "b", FullPathHash: 3, ParentID: &a.ID, IsValid: true}
	if err := db.InsertDir(b); err != nil {
		t.Fatalf("inserting dir b: %v", err)
	}
	insertFile(t, db, b, "deep.txt", false)

	out := filepath.Join(t.TempDir(), "mapping.txt")
	stager := blustash.NewStager(db, blustash.NewNopLogger(), testutil.FixedClock())
	if _, err := stager.CreateManifest(blustash.StageParams{BasePath: root, OutputFile: out}); err != nil {
		t.Fatalf("staging failed: %v", err)
	}

	lines := readManifest(t, out)
	wantSrc := filepath.Join(root, "a", "b", "deep.txt")
	if lines[0] != wantSrc+" /data/a/b/deep.txt" {
		t.Errorf("file line = %q, want %q", lines[0], wantSrc+" /data/a/b/deep.txt")
	}
}
