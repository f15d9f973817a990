package database_test

import (
	"testing"
	"time"

	"blustash/internal/model"
	"blustash/internal/testutil"
)

func TestFindDirByPathHash(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	d := &model.Dir{Name: "/srv/photos", FullPathHash: 42, IsValid: true}
	if err := db.InsertDir(d); err != nil {
		t.Fatalf("inserting dir: %v", err)
	}
	if d.ID == 0 {
		t.Fatal("InsertDir did not assign an id")
	}

	t.Run("found", func(t *testing.T) {
		got, err := db.FindDirByPathHash(42)
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if got == nil || got.ID != d.ID || got.Name != "/srv/photos" {
			t.Errorf("got %+v, want the inserted dir", got)
		}
	})

	t.Run("not found", func(t *testing.T) {
		got, err := db.FindDirByPathHash(7)
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if got != nil {
			t.Errorf("got %+v, want nil", got)
		}
	})
}

func TestRevalidateDir(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	root := &model.Dir{Name: "/srv", FullPathHash: 1, IsValid: true}
	if err := db.InsertDir(root); err != nil {
		t.Fatalf("inserting root: %v", err)
	}
	sub := &model.Dir{Name: "sub", FullPathHash: 2, ParentID: &root.ID, IsValid: true}
	if err := db.InsertDir(sub); err != nil {
		t.Fatalf("inserting sub: %v", err)
	}

	if err := db.InvalidateAll(); err != nil {
		t.Fatalf("invalidating: %v", err)
	}
	if err := db.RevalidateDir(sub.ID, &root.ID); err != nil {
		t.Fatalf("revalidating: %v", err)
	}

	got, err := db.FindDirByPathHash(2)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !got.IsValid {
		t.Error("revalidated dir still invalid")
	}
	if got.ParentID == nil || *got.ParentID != root.ID {
		t.Errorf("ParentID = %v, want %d", got.ParentID, root.ID)
	}
}

func TestSiblingDirNamesAreUnique(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	root := &model.Dir{Name: "/srv", FullPathHash: 1, IsValid: true}
	if err := db.InsertDir(root); err != nil {
		t.Fatalf("inserting root: %v", err)
	}
	a := &model.Dir{Name: "sub", FullPathHash: 2, ParentID: &root.ID, IsValid: true}
	if err := db.InsertDir(a); err != nil {
		t.Fatalf("inserting first sibling: %v", err)
	}

	dup := &model.Dir{Name: "sub", FullPathHash: 3, ParentID: &root.ID, IsValid: true}
	if err := db.InsertDir(dup); err == nil {
		t.Error("expected uniqueness violation for duplicate sibling name")
	}
}

func TestValidFileNamesAreUniquePerDir(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	dir := &model.Dir{Name: "/srv", FullPathHash: 1, IsValid: true}
	if err := db.InsertDir(dir); err != nil {
		t.Fatalf("inserting dir: %v", err)
	}

	old := &model.File{DirID: dir.ID, Name: "a.txt", Size: 5, ContentHash: []byte("x"), IsValid: false}
	if err := db.InsertFile(old); err != nil {
		t.Fatalf("inserting invalid row: %v", err)
	}
	// A valid row may coexist with the retired invalid one.
	cur := &model.File{DirID: dir.ID, Name: "a.txt", Size: 5, ContentHash: []byte("y"), IsValid: true, PredecessorID: &old.ID}
	if err := db.InsertFile(cur); err != nil {
		t.Fatalf("inserting valid row alongside invalid: %v", err)
	}

	dup := &model.File{DirID: dir.ID, Name: "a.txt", Size: 5, ContentHash: []byte("z"), IsValid: true}
	if err := db.InsertFile(dup); err == nil {
		t.Error("expected uniqueness violation for second valid row")
	}
}

func TestSweepCascadesToSubtree(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	root := &model.Dir{Name: "/srv", FullPathHash: 1, IsValid: true}
	if err := db.InsertDir(root); err != nil {
		t.Fatalf("inserting root: %v", err)
	}
	sub := &model.Dir{Name: "sub", FullPathHash: 2, ParentID: &root.ID, IsValid: false}
	if err := db.InsertDir(sub); err != nil {
		t.Fatalf("inserting sub: %v", err)
	}
	deep := &model.Dir{Name: "deep", FullPathHash: 3, ParentID: &sub.ID, IsValid: false}
	if err := db.InsertDir(deep); err != nil {
		t.Fatalf("inserting deep: %v", err)
	}
	f := &model.File{DirID: deep.ID, Name: "c.txt", Size: 1, ContentHash: []byte("x"), IsValid: true}
	if err := db.InsertFile(f); err != nil {
		t.Fatalf("inserting file: %v", err)
	}

	// Deleting the invalid parent cascades to the whole subtree, files included.
	n, err := db.DeleteInvalidDirs()
	if err != nil {
		t.Fatalf("sweeping dirs: %v", err)
	}
	if n == 0 {
		t.Error("sweep reported zero deleted dirs")
	}

	if got, err := db.FindDirByPathHash(3); err != nil || got != nil {
		t.Errorf("deep dir survived cascade: %+v, %v", got, err)
	}
	if got, err := db.LatestFileByDirAndName(deep.ID, "c.txt"); err != nil || got != nil {
		t.Errorf("file survived cascade: %+v, %v", got, err)
	}
}

func TestSweepNullsPredecessor(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	dir := &model.Dir{Name: "/srv", FullPathHash: 1, IsValid: true}
	if err := db.InsertDir(dir); err != nil {
		t.Fatalf("inserting dir: %v", err)
	}
	old := &model.File{DirID: dir.ID, Name: "a.txt", Size: 5, ContentHash: []byte("x"), IsValid: false}
	if err := db.InsertFile(old); err != nil {
		t.Fatalf("inserting old row: %v", err)
	}
	cur := &model.File{DirID: dir.ID, Name: "a.txt", Size: 5, ContentHash: []byte("y"), IsValid: true, PredecessorID: &old.ID}
	if err := db.InsertFile(cur); err != nil {
		t.Fatalf("inserting current row: %v", err)
	}

	n, err := db.DeleteInvalidFiles()
	if err != nil {
		t.Fatalf("sweeping files: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted files = %d, want 1", n)
	}

	got, err := db.LatestFileByDirAndName(dir.ID, "a.txt")
	if err != nil || got == nil {
		t.Fatalf("finding current row: %v", err)
	}
	if got.ID != cur.ID {
		t.Errorf("latest row id = %d, want %d", got.ID, cur.ID)
	}
	if got.PredecessorID != nil {
		t.Errorf("PredecessorID = %v, want nil after sweep", got.PredecessorID)
	}
}

func TestBatchTransactions(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	t.Run("rollback discards", func(t *testing.T) {
		if err := db.Begin(); err != nil {
			t.Fatalf("begin: %v", err)
		}
		d := &model.Dir{Name: "/tmp/a", FullPathHash: 10, IsValid: true}
		if err := db.InsertDir(d); err != nil {
			t.Fatalf("inserting in batch: %v", err)
		}
		if d.ID == 0 {
			t.Error("id not assigned inside open batch")
		}
		if err := db.Rollback(); err != nil {
			t.Fatalf("rollback: %v", err)
		}

		got, err := db.FindDirByPathHash(10)
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if got != nil {
			t.Errorf("rolled-back row visible: %+v", got)
		}
	})

	t.Run("commit persists", func(t *testing.T) {
		if err := db.Begin(); err != nil {
			t.Fatalf("begin: %v", err)
		}
		d := &model.Dir{Name: "/tmp/b", FullPathHash: 11, IsValid: true}
		if err := db.InsertDir(d); err != nil {
			t.Fatalf("inserting in batch: %v", err)
		}
		if err := db.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}

		got, err := db.FindDirByPathHash(11)
		if err != nil || got == nil {
			t.Fatalf("committed row missing: %v", err)
		}
	})

	t.Run("double begin rejected", func(t *testing.T) {
		if err := db.Begin(); err != nil {
			t.Fatalf("begin: %v", err)
		}
		defer db.Rollback()
		if err := db.Begin(); err == nil {
			t.Error("second Begin succeeded with a batch already open")
		}
	})

	t.Run("rollback without batch is a no-op", func(t *testing.T) {
		if err := db.Rollback(); err != nil {
			t.Errorf("rollback: %v", err)
		}
	})
}

func TestMarkFilesSafed(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	dir := &model.Dir{Name: "/srv", FullPathHash: 1, IsValid: true}
	if err := db.InsertDir(dir); err != nil {
		t.Fatalf("inserting dir: %v", err)
	}
	var ids []int64
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		f := &model.File{DirID: dir.ID, Name: name, Size: 1, ContentHash: []byte("x"), IsValid: true}
		if err := db.InsertFile(f); err != nil {
			t.Fatalf("inserting %s: %v", name, err)
		}
		ids = append(ids, f.ID)
	}

	if err := db.MarkFilesSafed(ids[:2]); err != nil {
		t.Fatalf("marking safed: %v", err)
	}

	remaining, err := db.ListUnsafedFiles()
	if err != nil {
		t.Fatalf("listing unsafed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Name != "c.txt" {
		t.Errorf("unsafed rows = %+v, want only c.txt", remaining)
	}

	if err := db.MarkFilesSafed(nil); err != nil {
		t.Errorf("empty MarkFilesSafed: %v", err)
	}
}

func TestScanSessions(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	t.Run("empty index has no session", func(t *testing.T) {
		got, err := db.LatestScanSession()
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if got != nil {
			t.Errorf("got %+v, want nil", got)
		}
	})

	first := &model.ScanSession{UUID: "s-1", StartedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	if err := db.InsertScanSession(first); err != nil {
		t.Fatalf("inserting first session: %v", err)
	}
	second := &model.ScanSession{UUID: "s-2", StartedAt: time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)}
	if err := db.InsertScanSession(second); err != nil {
		t.Fatalf("inserting second session: %v", err)
	}
	if err := db.SetScanSessionChangedFiles(second.ID, 7); err != nil {
		t.Fatalf("stamping session: %v", err)
	}

	got, err := db.LatestScanSession()
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.UUID != "s-2" {
		t.Errorf("latest UUID = %q, want s-2", got.UUID)
	}
	if got.ChangedFiles != 7 {
		t.Errorf("ChangedFiles = %d, want 7", got.ChangedFiles)
	}
	if !got.StartedAt.Equal(second.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, second.StartedAt)
	}
}
