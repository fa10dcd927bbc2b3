package backup

import (
	"fmt"
	"os"
	"slices"

	"github.com/schaermu/dirbakd/internal/archive"
	"github.com/schaermu/dirbakd/internal/catalog"
	"github.com/schaermu/dirbakd/internal/config"
)

// Restore materializes the state of one snapshot into dest. An empty key
// selects the newest snapshot. The destination must be empty, so a restore
// can never silently mix snapshot content into existing data.
//
// Full and mirror snapshots restore directly from their own data. In a
// delta chain only the newest snapshot holds a complete state, so older
// keys are reached by starting from the head and stepping back one delta
// at a time.
func (e *Engine) Restore(key, dest string) error {
	keys, err := listValidKeys(e.repoDir)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	if len(keys) == 0 {
		return fmt.Errorf("repository %s has no snapshots", e.repoDir)
	}
	if key == "" {
		key = keys[len(keys)-1]
	}
	idx := slices.Index(keys, key)
	if idx < 0 {
		return fmt.Errorf("no snapshot %s in repository %s", key, e.repoDir)
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	ents, err := os.ReadDir(dest)
	if err != nil {
		return err
	}
	if len(ents) > 0 {
		return fmt.Errorf("restore destination %s is not empty", dest)
	}

	if e.method != config.MethodDelta {
		return e.applyData(e.dataPath(key), dest)
	}

	if err := e.applyData(e.dataPath(keys[len(keys)-1]), dest); err != nil {
		return err
	}
	for i := len(keys) - 1; i > idx; i-- {
		rec, err := readRecord(e.infoPath(keys[i]))
		if err != nil {
			return err
		}
		if err := e.removeEntries(entriesFromPaths(rec.Added), dest); err != nil {
			return fmt.Errorf("apply delta %s: %w", keys[i-1], err)
		}
		if err := e.applyData(e.dataPath(keys[i-1]), dest); err != nil {
			return fmt.Errorf("apply delta %s: %w", keys[i-1], err)
		}
	}
	return nil
}

// applyData copies one snapshot's stored data into dest, whichever shape it
// is stored in: a loose tree is copied entry by entry, an archive is
// extracted.
func (e *Engine) applyData(dataPath, dest string) error {
	if fi, err := os.Stat(dataPath); err == nil && fi.IsDir() {
		set, err := catalog.Collect(dataPath, e.logger)
		if err != nil {
			return err
		}
		return e.copyEntries(set, dataPath, dest)
	}
	if _, err := os.Stat(dataPath + archive.Suffix); err == nil {
		return archive.Extract(dataPath+archive.Suffix, dest)
	}
	return fmt.Errorf("snapshot data missing at %s", dataPath)
}
