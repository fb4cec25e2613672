package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureCreatesRequiredDirs(t *testing.T) {
	area, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new area: %v", err)
	}
	if err := area.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, rel := range RequiredDirs {
		info, err := os.Stat(area.Dir(rel))
		if err != nil {
			t.Fatalf("stat %s: %v", rel, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", rel)
		}
	}
	if err := area.Ensure(); err != nil {
		t.Fatalf("second ensure should be a no-op: %v", err)
	}
}

func TestClearRemovesEntriesAndToleratesMissingDirs(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "uploaded")
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"a.pdf", "nested/b.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	if err := Clear(dir, filepath.Join(root, "missing")); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, got %d entries", len(entries))
	}
}

func TestSessionReleaseRemovesTrackedFiles(t *testing.T) {
	area, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new area: %v", err)
	}
	if err := area.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	keep := area.UploadedPath("../../keep.pdf")
	if filepath.Dir(keep) != area.Dir(UploadedDir) {
		t.Fatalf("uploaded path escaped staging dir: %s", keep)
	}
	if err := os.WriteFile(keep, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write keep: %v", err)
	}

	sess := area.Begin()
	scratch := sess.ScratchPath("temp_book.epub")
	if err := os.WriteFile(scratch, []byte("epub"), 0o644); err != nil {
		t.Fatalf("write scratch: %v", err)
	}
	sess.Track(filepath.Join(area.Dir(ScratchDir), "never-written"))
	sess.Release(context.Background())
	sess.Release(context.Background())

	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Fatalf("scratch file should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("untracked file should survive: %v", err)
	}
}

func TestAreaCleanupClearsDirsAndFiles(t *testing.T) {
	area, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new area: %v", err)
	}
	if err := area.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	parsed := filepath.Join(area.Dir(ParsedDir), "out.json")
	upload := area.UploadedPath("book.pdf")
	other := area.UploadedPath("other.pdf")
	for _, p := range []string{parsed, upload, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	area.Cleanup(context.Background(), []string{ParsedDir, ScratchDir}, upload)

	if _, err := os.Stat(parsed); !os.IsNotExist(err) {
		t.Fatalf("parsed dir should be cleared")
	}
	if _, err := os.Stat(upload); !os.IsNotExist(err) {
		t.Fatalf("consumed upload should be removed")
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("unrelated upload should survive: %v", err)
	}
}
