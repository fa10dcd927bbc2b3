package backup

import (
	"fmt"
	"os"
	"path/filepath"
)

// keepLastN prunes the oldest snapshots beyond the configured limit. A
// limit of zero keeps everything. Incomplete snapshot directories count and
// age out like any other, so leftovers of failed runs disappear eventually.
func (e *Engine) keepLastN(key string) error {
	if e.limit == 0 {
		return nil
	}
	keys, err := listKeys(e.repoDir)
	if err != nil {
		return err
	}
	if len(keys) <= e.limit {
		return nil
	}
	for _, old := range keys[:len(keys)-e.limit] {
		e.logger.Info("pruning snapshot", "key", old)
		if err := os.RemoveAll(filepath.Join(e.repoDir, old)); err != nil {
			return fmt.Errorf("prune snapshot %s: %w", old, err)
		}
	}
	return nil
}

// keepOnlyNewest removes every snapshot but the one just created.
func (e *Engine) keepOnlyNewest(key string) error {
	keys, err := listKeys(e.repoDir)
	if err != nil {
		return err
	}
	for _, old := range keys {
		if old == key {
			continue
		}
		e.logger.Info("pruning snapshot", "key", old)
		if err := os.RemoveAll(filepath.Join(e.repoDir, old)); err != nil {
			return fmt.Errorf("prune snapshot %s: %w", old, err)
		}
	}
	return nil
}
