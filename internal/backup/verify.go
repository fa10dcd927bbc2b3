package backup

import (
	"errors"
	"fmt"
	"os"

	"github.com/schaermu/dirbakd/internal/archive"
	"github.com/schaermu/dirbakd/internal/catalog"
	"github.com/schaermu/dirbakd/internal/config"
)

// List returns the records of all complete snapshots, oldest first.
func (e *Engine) List() ([]Record, error) {
	keys, err := listValidKeys(e.repoDir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	recs := make([]Record, 0, len(keys))
	for _, key := range keys {
		rec, err := readRecord(e.infoPath(key))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Verify checks the repository for damage. The structural pass confirms
// that every snapshot directory carries a readable record matching its key
// and that its data exists. With deep enabled, each snapshot's stored state
// is cataloged (delta snapshots are reconstructed first) and its structure
// digest is compared against the record. All findings are reported
// together, one error per issue.
func (e *Engine) Verify(deep bool) error {
	keys, err := listKeys(e.repoDir)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}

	var issues []error
	report := func(err error) {
		e.logger.Warn("verification issue", "issue", err.Error())
		issues = append(issues, err)
	}

	ents, err := os.ReadDir(e.repoDir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, ent := range ents {
		if !ent.IsDir() {
			report(fmt.Errorf("unexpected file %s in repository", ent.Name()))
		}
	}

	valid := make([]string, 0, len(keys))
	recs := make(map[string]Record, len(keys))
	for _, key := range keys {
		rec, err := readRecord(e.infoPath(key))
		if os.IsNotExist(err) {
			report(fmt.Errorf("snapshot %s: no record (incomplete snapshot)", key))
			continue
		}
		if err != nil {
			report(fmt.Errorf("snapshot %s: %w", key, err))
			continue
		}
		if rec.Key != key {
			report(fmt.Errorf("snapshot %s: record carries key %s", key, rec.Key))
			continue
		}
		if err := e.checkData(key); err != nil {
			report(err)
			continue
		}
		valid = append(valid, key)
		recs[key] = rec
	}

	if deep {
		for _, key := range valid {
			if err := e.checkFileset(valid, key, recs[key]); err != nil {
				report(err)
			}
		}
	}

	return errors.Join(issues...)
}

// checkData confirms the snapshot's data exists in one of its two shapes.
func (e *Engine) checkData(key string) error {
	dataPath := e.dataPath(key)
	if fi, err := os.Stat(dataPath); err == nil && fi.IsDir() {
		return nil
	}
	if _, err := os.Stat(dataPath + archive.Suffix); err == nil {
		return nil
	}
	return fmt.Errorf("snapshot %s: data missing", key)
}

// checkFileset recomputes the structure digest of the snapshot's stored
// state and compares it to the record. Records written without a digest are
// skipped. Archived states can hold names the target filesystem tables
// exclude, so the recomputed catalog is filtered the same way a snapshot
// run filters the source.
func (e *Engine) checkFileset(valid []string, key string, rec Record) error {
	if rec.Fileset == "" {
		return nil
	}
	set, err := e.storedEntries(valid, key)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", key, err)
	}
	if got := filesetDigest(e.filterAllowed(set)); got != rec.Fileset {
		return fmt.Errorf("snapshot %s: stored state does not match its record", key)
	}
	return nil
}

// storedEntries catalogs the full state a snapshot represents. A delta
// snapshot behind the head stores only its step-back delta, so its state is
// reconstructed into a scratch directory first.
func (e *Engine) storedEntries(valid []string, key string) (catalog.Set, error) {
	if e.method == config.MethodDelta && key != valid[len(valid)-1] {
		tmp, err := os.MkdirTemp("", "dirbakd-verify-*")
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = os.RemoveAll(tmp)
		}()
		if err := e.Restore(key, tmp); err != nil {
			return nil, err
		}
		return catalog.Collect(tmp, e.logger)
	}

	dataPath := e.dataPath(key)
	if fi, err := os.Stat(dataPath); err == nil && fi.IsDir() {
		return catalog.Collect(dataPath, e.logger)
	}
	a, err := archive.Open(dataPath + archive.Suffix)
	if err != nil {
		return nil, err
	}
	return catalog.CollectArchive(a, e.logger), nil
}
