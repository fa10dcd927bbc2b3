package backup

import (
	"fmt"
	"os"

	"github.com/schaermu/dirbakd/internal/archive"
	"github.com/schaermu/dirbakd/internal/catalog"
	"github.com/schaermu/dirbakd/internal/config"
	"github.com/schaermu/dirbakd/internal/diff"
)

// bindMethod selects the copy strategy and retention policy pair for the
// configured method. The pair is fixed for the lifetime of the repository.
func (e *Engine) bindMethod() error {
	switch e.method {
	case config.MethodFull:
		e.copyData, e.prune = e.plainCopy, e.keepLastN
	case config.MethodMirror:
		e.copyData, e.prune = e.plainCopy, e.keepOnlyNewest
	case config.MethodDelta:
		e.copyData, e.prune = e.deltaCopy, e.keepLastN
	default:
		return fmt.Errorf("unknown backup method: %s", e.method)
	}
	return nil
}

// plainCopy materializes a complete, independent copy of the current source
// state, written as a single archive when compression is on.
func (e *Engine) plainCopy(key, prevKey string, m diff.Map) error {
	dataPath := e.dataPath(key)
	if e.compress {
		return archive.Compress(e.source, dataPath+archive.Suffix, dataDirName)
	}
	return e.copyEntries(currentEntries(m), e.source, dataPath)
}

// deltaCopy maintains the reverse-delta chain. The new snapshot takes over
// the previous full state by rename, the previous snapshot is rebuilt as
// exactly the delta needed to step back to it, and the new state is then
// brought up to date from the source. The head of the chain always stays
// a loose tree, so the next run can compare against it directly.
//
// The rewrite is not journaled. A crash in the middle can leave the two
// newest snapshots inconsistent; Verify reports the damage afterwards.
func (e *Engine) deltaCopy(key, prevKey string, m diff.Map) error {
	dataPath := e.dataPath(key)
	if prevKey == "" {
		return e.copyEntries(currentEntries(m), e.source, dataPath)
	}

	prevData := e.dataPath(prevKey)
	if err := os.Rename(prevData, dataPath); err != nil {
		return fmt.Errorf("take over previous state: %w", err)
	}
	if err := os.Mkdir(prevData, 0755); err != nil {
		return err
	}

	// what stepping back needs, read from the state before it is updated
	if err := e.copyEntries(union(m.Changed, m.Removed), dataPath, prevData); err != nil {
		return err
	}

	// bring the head up to the current source state
	if err := e.copyEntries(union(m.Added, m.Changed), e.source, dataPath); err != nil {
		return err
	}
	if err := e.removeEntries(m.Removed, dataPath); err != nil {
		return err
	}

	if e.compress {
		if err := archive.Compress(prevData, prevData+archive.Suffix, dataDirName); err != nil {
			return err
		}
		if err := os.RemoveAll(prevData); err != nil {
			return err
		}
	}
	return nil
}

// currentEntries returns the entries of the current catalog as recorded in
// the diff.
func currentEntries(m diff.Map) catalog.Set {
	return union(m.Added, m.Changed, m.Unchanged)
}
