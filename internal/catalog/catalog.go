package catalog

import (
	"archive/tar"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schaermu/dirbakd/internal/archive"
)

// Kind classifies a catalog entry by its own filesystem object type.
// A symlink is always a symlink, even when it points at a directory.
type Kind string

const (
	KindFile    Kind = "file"
	KindSymlink Kind = "symlink"
	KindDir     Kind = "dir"
)

// Entry identifies one filesystem object under a catalog root. Identity is
// the (Kind, Path) pair, so a path can exist both as a file and as a
// directory without colliding. Paths are slash-separated and relative to
// the root; directory paths always carry a trailing slash.
type Entry struct {
	Kind Kind
	Path string
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDir
}

// Set is a set of entries keyed by identity.
type Set map[Entry]struct{}

// Add inserts an entry into the set.
func (s Set) Add(e Entry) {
	s[e] = struct{}{}
}

// Has reports whether the set contains the entry.
func (s Set) Has(e Entry) bool {
	_, ok := s[e]
	return ok
}

// Sorted returns the entries ordered ascending by path. Because directory
// paths end in a slash, every directory sorts before the entries inside it.
func (s Set) Sorted() []Entry {
	entries := make([]Entry, 0, len(s))
	for e := range s {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// Paths returns the sorted paths of all entries in the set.
func (s Set) Paths() []string {
	paths := make([]string, 0, len(s))
	for e := range s {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	return paths
}

// Collect walks the live directory tree under root and returns an entry for
// every file, symlink and directory below it. Symlinks are recorded by their
// own type and never followed. Anything else (devices, sockets, fifos) is
// skipped with a warning.
func Collect(root string, logger *slog.Logger) (Set, error) {
	set := make(Set)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			set.Add(Entry{Kind: KindSymlink, Path: rel})
		case d.IsDir():
			set.Add(Entry{Kind: KindDir, Path: rel + "/"})
		case d.Type().IsRegular():
			set.Add(Entry{Kind: KindFile, Path: rel})
		default:
			logger.Warn("skipping unsupported file type", "path", path, "mode", d.Type().String())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	return set, nil
}

// CollectArchive reads the entry set out of an indexed archive without
// extracting any content. The archive's single top-level wrapping directory
// is stripped from every member name, and the top-level member itself is
// skipped.
func CollectArchive(a *archive.Archive, logger *slog.Logger) Set {
	set := make(Set)
	prefix := a.Root() + "/"

	for _, m := range a.Members() {
		name := strings.TrimSuffix(m.Name, "/")
		if name == a.Root() {
			continue
		}
		rel, ok := strings.CutPrefix(name, prefix)
		if !ok || rel == "" {
			continue
		}

		switch m.Type {
		case tar.TypeSymlink:
			set.Add(Entry{Kind: KindSymlink, Path: rel})
		case tar.TypeDir:
			set.Add(Entry{Kind: KindDir, Path: rel + "/"})
		case tar.TypeReg:
			set.Add(Entry{Kind: KindFile, Path: rel})
		default:
			logger.Warn("skipping unsupported archive member", "member", m.Name, "typeflag", m.Type)
		}
	}

	return set
}
