package diff

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schaermu/dirbakd/internal/archive"
)

// Source resolves catalog paths to content for comparison. Paths are
// slash-separated and relative, as recorded in the catalog.
type Source interface {
	// Open returns the content of a regular file.
	Open(rel string) (io.ReadCloser, error)
	// LinkTarget returns the target of a symlink.
	LinkTarget(rel string) (string, error)
}

// DirSource reads content out of a live directory tree.
type DirSource struct {
	root string
}

// NewDirSource returns a source rooted at the given directory.
func NewDirSource(root string) DirSource {
	return DirSource{root: root}
}

func (s DirSource) Open(rel string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.root, filepath.FromSlash(rel)))
}

func (s DirSource) LinkTarget(rel string) (string, error) {
	return os.Readlink(filepath.Join(s.root, filepath.FromSlash(rel)))
}

// ArchiveSource reads content out of an indexed archive without extracting
// it.
type ArchiveSource struct {
	a *archive.Archive
}

// NewArchiveSource returns a source backed by the archive's member index.
func NewArchiveSource(a *archive.Archive) ArchiveSource {
	return ArchiveSource{a: a}
}

func (s ArchiveSource) Open(rel string) (io.ReadCloser, error) {
	return s.a.Reader(s.a.Root() + "/" + rel)
}

func (s ArchiveSource) LinkTarget(rel string) (string, error) {
	name := s.a.Root() + "/" + rel
	m, ok := s.a.Member(name)
	if !ok {
		return "", fmt.Errorf("archive %s has no member %s", s.a.Path(), name)
	}
	if m.Type != tar.TypeSymlink {
		return "", fmt.Errorf("archive member %s is not a symlink", name)
	}
	return m.LinkTarget, nil
}
