package diff

import (
	"bytes"
	"fmt"
	"io"

	"github.com/schaermu/dirbakd/internal/catalog"
)

// Map partitions the union of two catalogs into the four change classes.
// Every entry of either catalog lands in exactly one set.
type Map struct {
	Added     catalog.Set
	Removed   catalog.Set
	Changed   catalog.Set
	Unchanged catalog.Set
}

// HasChanges reports whether anything was added, removed or changed.
func (m Map) HasChanges() bool {
	return len(m.Added) > 0 || len(m.Removed) > 0 || len(m.Changed) > 0
}

// Compute classifies the current catalog against the previous one. Entries
// present in both are compared through the sources: files byte by byte,
// symlinks by target. Directories present in both are always unchanged.
// A previous catalog of nil means there is no previous snapshot and every
// current entry is added.
func Compute(prev, cur catalog.Set, prevSrc, curSrc Source) (Map, error) {
	m := Map{
		Added:     make(catalog.Set),
		Removed:   make(catalog.Set),
		Changed:   make(catalog.Set),
		Unchanged: make(catalog.Set),
	}

	for e := range cur {
		if !prev.Has(e) {
			m.Added.Add(e)
			continue
		}
		same, err := compare(e, prevSrc, curSrc)
		if err != nil {
			return Map{}, fmt.Errorf("compare %s: %w", e.Path, err)
		}
		if same {
			m.Unchanged.Add(e)
		} else {
			m.Changed.Add(e)
		}
	}

	for e := range prev {
		if !cur.Has(e) {
			m.Removed.Add(e)
		}
	}

	return m, nil
}

func compare(e catalog.Entry, prevSrc, curSrc Source) (bool, error) {
	switch e.Kind {
	case catalog.KindDir:
		return true, nil

	case catalog.KindSymlink:
		prevTarget, err := prevSrc.LinkTarget(e.Path)
		if err != nil {
			return false, err
		}
		curTarget, err := curSrc.LinkTarget(e.Path)
		if err != nil {
			return false, err
		}
		return prevTarget == curTarget, nil

	default:
		prevRC, err := prevSrc.Open(e.Path)
		if err != nil {
			return false, err
		}
		defer func() {
			_ = prevRC.Close()
		}()
		curRC, err := curSrc.Open(e.Path)
		if err != nil {
			return false, err
		}
		defer func() {
			_ = curRC.Close()
		}()
		return equalContent(prevRC, curRC)
	}
}

const chunkSize = 64 * 1024

// equalContent compares two streams in fixed-size chunks without loading
// either into memory.
func equalContent(a, b io.Reader) (bool, error) {
	bufA := make([]byte, chunkSize)
	bufB := make([]byte, chunkSize)

	for {
		nA, err := io.ReadFull(a, bufA)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return false, err
		}
		nB, err := io.ReadFull(b, bufB)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return false, err
		}

		if nA != nB || !bytes.Equal(bufA[:nA], bufB[:nB]) {
			return false, nil
		}
		if nA < chunkSize {
			return true, nil
		}
	}
}
