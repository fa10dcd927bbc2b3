package backup

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/dirbakd/internal/catalog"
	"github.com/schaermu/dirbakd/internal/diff"
)

// timeLayout is the timestamp format stored in snapshot records.
const timeLayout = "2006-01-02 15:04:05.000000"

// Record is the metadata stored next to every snapshot's data. The added,
// removed and changed lists hold the entry paths recorded at creation time;
// unchanged entries are never persisted.
type Record struct {
	DT      string   `yaml:"dt"`
	Key     string   `yaml:"key"`
	Added   []string `yaml:"added"`
	Removed []string `yaml:"removed"`
	Changed []string `yaml:"changed"`
	Fileset string   `yaml:"fileset,omitempty"`
}

// Time parses the record's creation timestamp.
func (r Record) Time() (time.Time, error) {
	return time.Parse(timeLayout, r.DT)
}

func newRecord(t time.Time, key string, m diff.Map, current catalog.Set) Record {
	return Record{
		DT:      t.Format(timeLayout),
		Key:     key,
		Added:   m.Added.Paths(),
		Removed: m.Removed.Paths(),
		Changed: m.Changed.Paths(),
		Fileset: filesetDigest(current),
	}
}

func writeRecord(path string, rec Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse snapshot record %s: %w", path, err)
	}
	return rec, nil
}

// filesetDigest fingerprints the structure of a catalog: the sorted entry
// kinds and paths, hashed with xxh3-128.
func filesetDigest(set catalog.Set) string {
	h := xxh3.New()
	for _, e := range set.Sorted() {
		_, _ = h.WriteString(string(e.Kind))
		_, _ = h.WriteString(" ")
		_, _ = h.WriteString(e.Path)
		_, _ = h.WriteString("\n")
	}
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:])
}
