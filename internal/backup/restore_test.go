package backup

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/schaermu/dirbakd/internal/config"
)

func TestRestoreFullSnapshot(t *testing.T) {
	e, source := newTestEngine(t, config.MethodFull, false, 0)

	writeFile(t, filepath.Join(source, "a.txt"), "v1")
	want1 := treeSnapshot(t, source)
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(source, "a.txt"), "v2")
	writeFile(t, filepath.Join(source, "c.txt"), "new")
	want2 := treeSnapshot(t, source)
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	keys := snapshotKeys(t, e)

	dest1 := t.TempDir()
	if err := e.Restore(keys[0], dest1); err != nil {
		t.Fatal(err)
	}
	if got := treeSnapshot(t, dest1); !reflect.DeepEqual(got, want1) {
		t.Errorf("restored tree = %v, want %v", got, want1)
	}

	// an empty key restores the newest snapshot
	dest2 := t.TempDir()
	if err := e.Restore("", dest2); err != nil {
		t.Fatal(err)
	}
	if got := treeSnapshot(t, dest2); !reflect.DeepEqual(got, want2) {
		t.Errorf("restored tree = %v, want %v", got, want2)
	}
}

func TestRestoreDeltaRoundTrip(t *testing.T) {
	e, source := newTestEngine(t, config.MethodDelta, false, 0)

	// state 1: two files and a symlink
	writeFile(t, filepath.Join(source, "a.txt"), "v1")
	writeFile(t, filepath.Join(source, "sub", "b.txt"), "b1")
	if err := os.Symlink("a.txt", filepath.Join(source, "link")); err != nil {
		t.Fatal(err)
	}
	want1 := treeSnapshot(t, source)
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	// state 2: change a file, drop a subtree, add a file
	writeFile(t, filepath.Join(source, "a.txt"), "v2")
	if err := os.RemoveAll(filepath.Join(source, "sub")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(source, "c.txt"), "c1")
	want2 := treeSnapshot(t, source)
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	// state 3: change the new file, add a subtree
	writeFile(t, filepath.Join(source, "c.txt"), "c2")
	writeFile(t, filepath.Join(source, "d", "e.txt"), "e1")
	want3 := treeSnapshot(t, source)
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	keys := snapshotKeys(t, e)
	if len(keys) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(keys))
	}

	for i, want := range []map[string]string{want1, want2, want3} {
		dest := t.TempDir()
		if err := e.Restore(keys[i], dest); err != nil {
			t.Fatalf("restore %s: %v", keys[i], err)
		}
		if got := treeSnapshot(t, dest); !reflect.DeepEqual(got, want) {
			t.Errorf("restore %s = %v, want %v", keys[i], got, want)
		}
	}
}

func TestRestoreCompressedDelta(t *testing.T) {
	e, source := newTestEngine(t, config.MethodDelta, true, 0)

	writeFile(t, filepath.Join(source, "a.txt"), "v1")
	writeFile(t, filepath.Join(source, "b.txt"), "bravo")
	want1 := treeSnapshot(t, source)
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(source, "a.txt"), "v2")
	if err := os.Remove(filepath.Join(source, "b.txt")); err != nil {
		t.Fatal(err)
	}
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	keys := snapshotKeys(t, e)
	dest := t.TempDir()
	if err := e.Restore(keys[0], dest); err != nil {
		t.Fatal(err)
	}
	if got := treeSnapshot(t, dest); !reflect.DeepEqual(got, want1) {
		t.Errorf("restored tree = %v, want %v", got, want1)
	}
}

func TestRestoreDestinationNotEmpty(t *testing.T) {
	e, source := newTestEngine(t, config.MethodFull, false, 0)
	writeFile(t, filepath.Join(source, "a.txt"), "alpha")
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	writeFile(t, filepath.Join(dest, "existing.txt"), "keep me")

	err := e.Restore("", dest)
	if err == nil {
		t.Fatal("expected an error for a non-empty destination")
	}
	if !strings.Contains(err.Error(), "not empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRestoreUnknownKey(t *testing.T) {
	e, source := newTestEngine(t, config.MethodFull, false, 0)
	writeFile(t, filepath.Join(source, "a.txt"), "alpha")
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	err := e.Restore("1999-01-01_00-00-00", t.TempDir())
	if err == nil {
		t.Fatal("expected an error for an unknown key")
	}
	if !strings.Contains(err.Error(), "no snapshot") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRestoreEmptyRepository(t *testing.T) {
	e, _ := newTestEngine(t, config.MethodFull, false, 0)

	if err := e.Restore("", t.TempDir()); err == nil {
		t.Fatal("expected an error for an empty repository")
	}
}

func TestList(t *testing.T) {
	e, source := newTestEngine(t, config.MethodFull, false, 0)

	writeFile(t, filepath.Join(source, "a.txt"), "v1")
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(source, "a.txt"), "v2")
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	recs, err := e.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Key >= recs[1].Key {
		t.Errorf("records out of order: %s before %s", recs[0].Key, recs[1].Key)
	}
	if _, err := recs[0].Time(); err != nil {
		t.Errorf("record timestamp does not parse: %v", err)
	}
	if !reflect.DeepEqual(recs[1].Changed, []string{"a.txt"}) {
		t.Errorf("changed = %v, want [a.txt]", recs[1].Changed)
	}
}

func TestVerifyCleanRepository(t *testing.T) {
	e, source := newTestEngine(t, config.MethodFull, false, 0)

	writeFile(t, filepath.Join(source, "a.txt"), "v1")
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(source, "a.txt"), "v2")
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	if err := e.Verify(false); err != nil {
		t.Errorf("structural verify failed: %v", err)
	}
	if err := e.Verify(true); err != nil {
		t.Errorf("deep verify failed: %v", err)
	}
}

func TestVerifyDeltaDeep(t *testing.T) {
	e, source := newTestEngine(t, config.MethodDelta, true, 0)

	writeFile(t, filepath.Join(source, "a.txt"), "v1")
	writeFile(t, filepath.Join(source, "b.txt"), "bravo")
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(source, "a.txt"), "v2")
	if err := os.Remove(filepath.Join(source, "b.txt")); err != nil {
		t.Fatal(err)
	}
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	// deep verification reconstructs the older snapshot before checking it
	if err := e.Verify(true); err != nil {
		t.Errorf("deep verify failed: %v", err)
	}
}

func TestVerifyReportsMissingRecord(t *testing.T) {
	e, source := newTestEngine(t, config.MethodFull, false, 0)

	writeFile(t, filepath.Join(source, "a.txt"), "v1")
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(source, "a.txt"), "v2")
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	keys := snapshotKeys(t, e)
	if err := os.Remove(e.infoPath(keys[0])); err != nil {
		t.Fatal(err)
	}

	err := e.Verify(false)
	if err == nil {
		t.Fatal("expected verification to report the missing record")
	}
	if !strings.Contains(err.Error(), "no record") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestVerifyDeepDetectsDrift(t *testing.T) {
	e, source := newTestEngine(t, config.MethodFull, false, 0)

	writeFile(t, filepath.Join(source, "a.txt"), "alpha")
	writeFile(t, filepath.Join(source, "b.txt"), "bravo")
	if err := e.Make(); err != nil {
		t.Fatal(err)
	}

	keys := snapshotKeys(t, e)
	if err := os.Remove(filepath.Join(e.dataPath(keys[0]), "b.txt")); err != nil {
		t.Fatal(err)
	}

	// the directory and record are intact, only the stored state drifted
	if err := e.Verify(false); err != nil {
		t.Errorf("structural verify should pass: %v", err)
	}
	err := e.Verify(true)
	if err == nil {
		t.Fatal("expected deep verification to report the drift")
	}
	if !strings.Contains(err.Error(), "does not match") {
		t.Errorf("unexpected error: %v", err)
	}
}
