package backup

import (
	"os"
	"path/filepath"
)

const (
	dataDirName  = "data"
	infoFileName = "info"
)

// listKeys returns every snapshot directory name under repoDir in ascending
// key order, including incomplete snapshots that never got their record
// written. A missing repository is an empty list.
func listKeys(repoDir string) ([]string, error) {
	ents, err := os.ReadDir(repoDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(ents))
	for _, ent := range ents {
		if ent.IsDir() {
			keys = append(keys, ent.Name())
		}
	}
	return keys, nil
}

// listValidKeys returns the keys of snapshots whose record exists, in
// ascending key order.
func listValidKeys(repoDir string) ([]string, error) {
	keys, err := listKeys(repoDir)
	if err != nil {
		return nil, err
	}
	valid := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, err := os.Stat(filepath.Join(repoDir, key, infoFileName)); err == nil {
			valid = append(valid, key)
		}
	}
	return valid, nil
}

// lastValidKey returns the newest complete snapshot key, or "" when the
// repository has none.
func lastValidKey(repoDir string) (string, error) {
	keys, err := listValidKeys(repoDir)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", nil
	}
	return keys[len(keys)-1], nil
}
