package catalog

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/schaermu/dirbakd/internal/archive"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "beta")
	if err := os.MkdirAll(filepath.Join(root, "sub", "empty"), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.Symlink("a.txt", filepath.Join(root, "link")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	got, err := Collect(root, testLogger())
	if err != nil {
		t.Fatalf("Collect() returned error: %v", err)
	}

	want := make(Set)
	want.Add(Entry{Kind: KindFile, Path: "a.txt"})
	want.Add(Entry{Kind: KindSymlink, Path: "link"})
	want.Add(Entry{Kind: KindDir, Path: "sub/"})
	want.Add(Entry{Kind: KindFile, Path: "sub/b.txt"})
	want.Add(Entry{Kind: KindDir, Path: "sub/empty/"})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Collect() = %v, want %v", got.Paths(), want.Paths())
	}
}

func TestCollectEmptyRoot(t *testing.T) {
	got, err := Collect(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("Collect() returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty set, got %v", got.Paths())
	}
}

func TestCollectMissingRoot(t *testing.T) {
	_, err := Collect(filepath.Join(t.TempDir(), "nope"), testLogger())
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestCollectArchiveMatchesLiveWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "beta")
	if err := os.MkdirAll(filepath.Join(root, "sub", "empty"), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.Symlink("sub/b.txt", filepath.Join(root, "link")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	archivePath := filepath.Join(t.TempDir(), "data.tar.gz")
	if err := archive.Compress(root, archivePath, "data"); err != nil {
		t.Fatalf("Compress() returned error: %v", err)
	}
	a, err := archive.Open(archivePath)
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}

	live, err := Collect(root, testLogger())
	if err != nil {
		t.Fatalf("Collect() returned error: %v", err)
	}
	archived := CollectArchive(a, testLogger())

	if !reflect.DeepEqual(archived, live) {
		t.Errorf("archive catalog %v does not match live catalog %v", archived.Paths(), live.Paths())
	}
}

func TestSetSortedDirsBeforeContents(t *testing.T) {
	s := make(Set)
	s.Add(Entry{Kind: KindFile, Path: "sub/b.txt"})
	s.Add(Entry{Kind: KindDir, Path: "sub/"})
	s.Add(Entry{Kind: KindFile, Path: "a.txt"})
	s.Add(Entry{Kind: KindDir, Path: "sub/empty/"})

	got := s.Sorted()
	want := []string{"a.txt", "sub/", "sub/b.txt", "sub/empty/"}
	for i, e := range got {
		if e.Path != want[i] {
			t.Fatalf("Sorted()[%d] = %s, want %s", i, e.Path, want[i])
		}
	}
}

func TestSetKindsDoNotCollide(t *testing.T) {
	s := make(Set)
	s.Add(Entry{Kind: KindFile, Path: "a"})
	s.Add(Entry{Kind: KindDir, Path: "a/"})

	if len(s) != 2 {
		t.Fatalf("expected 2 distinct entries, got %d", len(s))
	}
	if !s.Has(Entry{Kind: KindFile, Path: "a"}) {
		t.Error("file entry missing")
	}
	if s.Has(Entry{Kind: KindSymlink, Path: "a"}) {
		t.Error("symlink entry should not exist")
	}
}
