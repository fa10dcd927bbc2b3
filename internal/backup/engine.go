package backup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schaermu/dirbakd/internal/archive"
	"github.com/schaermu/dirbakd/internal/catalog"
	"github.com/schaermu/dirbakd/internal/config"
	"github.com/schaermu/dirbakd/internal/diff"
	"github.com/schaermu/dirbakd/internal/targetfs"
)

// Engine creates and maintains the snapshots of one source directory. An
// engine owns its repository exclusively; two engines must never operate on
// the same repository at once.
type Engine struct {
	name      string
	source    string
	repoDir   string
	method    config.Method
	compress  bool
	limit     int
	keyFormat string
	fs        targetfs.FS
	logger    *slog.Logger

	copyData func(key, prevKey string, m diff.Map) error
	prune    func(key string) error
	now      func() time.Time
}

// New creates the engine for one configured source. The key format and the
// backup method are checked here, so a broken configuration never reaches a
// snapshot run.
func New(src config.SourceConfig, keyFormat string, fs targetfs.FS, logger *slog.Logger) (*Engine, error) {
	if err := ValidateKeyFormat(keyFormat); err != nil {
		return nil, err
	}

	e := &Engine{
		name:      src.Name(),
		source:    src.Source,
		repoDir:   src.RepoDir(),
		method:    src.Method,
		compress:  src.Compress,
		limit:     src.Limit,
		keyFormat: keyFormat,
		fs:        fs,
		logger:    logger,
		now:       time.Now,
	}
	if err := e.bindMethod(); err != nil {
		return nil, err
	}
	return e, nil
}

// Name returns the repository name derived from the source path.
func (e *Engine) Name() string {
	return e.name
}

func (e *Engine) snapDir(key string) string {
	return filepath.Join(e.repoDir, key)
}

func (e *Engine) dataPath(key string) string {
	return filepath.Join(e.repoDir, key, dataDirName)
}

func (e *Engine) infoPath(key string) string {
	return filepath.Join(e.repoDir, key, infoFileName)
}

// Make runs one snapshot attempt: catalog the source, classify the changes
// against the newest snapshot, and persist a new snapshot when anything
// differs. An all-unchanged source leaves the repository untouched.
func (e *Engine) Make() error {
	start := e.now()
	key := BuildKey(e.keyFormat, start)

	e.logger.Info("starting snapshot", "source", e.source, "key", key)

	cur, err := catalog.Collect(e.source, e.logger)
	if err != nil {
		return fmt.Errorf("catalog source: %w", err)
	}
	cur = e.filterAllowed(cur)

	prevKey, m, err := e.classify(cur)
	if err != nil {
		return err
	}

	e.logger.Info("classified changes",
		"added", len(m.Added),
		"removed", len(m.Removed),
		"changed", len(m.Changed),
		"unchanged", len(m.Unchanged))

	if !m.HasChanges() {
		e.logger.Info("source unchanged, no snapshot needed")
		return nil
	}

	snapDir := e.snapDir(key)
	if _, err := os.Lstat(snapDir); err == nil {
		return fmt.Errorf("snapshot %s already exists", key)
	}
	if err := os.MkdirAll(snapDir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	if err := e.copyData(key, prevKey, m); err != nil {
		return fmt.Errorf("write snapshot data: %w", err)
	}

	// the record is written last, so an interrupted run leaves a snapshot
	// that is recognizably incomplete
	rec := newRecord(start, key, m, cur)
	if err := writeRecord(e.infoPath(key), rec); err != nil {
		return fmt.Errorf("write snapshot record: %w", err)
	}

	if err := e.prune(key); err != nil {
		return fmt.Errorf("apply retention: %w", err)
	}

	e.logger.Info("snapshot created", "key", key)
	return nil
}

// classify computes the change classes of the current catalog against the
// newest complete snapshot. The previous state is read from its loose data
// tree, or through the archive index when the repository stores archives.
func (e *Engine) classify(cur catalog.Set) (string, diff.Map, error) {
	prevKey, err := lastValidKey(e.repoDir)
	if err != nil {
		return "", diff.Map{}, fmt.Errorf("list snapshots: %w", err)
	}

	if prevKey == "" {
		return "", diff.Map{
			Added:     cur,
			Removed:   make(catalog.Set),
			Changed:   make(catalog.Set),
			Unchanged: make(catalog.Set),
		}, nil
	}

	curSrc := diff.NewDirSource(e.source)
	prevData := e.dataPath(prevKey)

	// delta repositories keep the newest state loose even when compressed
	if e.compress && e.method != config.MethodDelta {
		a, err := archive.Open(prevData + archive.Suffix)
		if err != nil {
			return "", diff.Map{}, fmt.Errorf("open previous snapshot: %w", err)
		}
		prev := e.filterAllowed(catalog.CollectArchive(a, e.logger))
		m, err := diff.Compute(prev, cur, diff.NewArchiveSource(a), curSrc)
		if err != nil {
			return "", diff.Map{}, fmt.Errorf("diff against %s: %w", prevKey, err)
		}
		return prevKey, m, nil
	}

	prev, err := catalog.Collect(prevData, e.logger)
	if err != nil {
		return "", diff.Map{}, fmt.Errorf("catalog previous snapshot: %w", err)
	}
	m, err := diff.Compute(e.filterAllowed(prev), cur, diff.NewDirSource(prevData), curSrc)
	if err != nil {
		return "", diff.Map{}, fmt.Errorf("diff against %s: %w", prevKey, err)
	}
	return prevKey, m, nil
}

// filterAllowed drops entries whose names the target filesystem cannot
// store. They are invisible to diffing and never snapshotted.
func (e *Engine) filterAllowed(set catalog.Set) catalog.Set {
	out := make(catalog.Set, len(set))
	for ent := range set {
		if e.fs.IsPathAllowed(ent.Path) {
			out.Add(ent)
		} else {
			e.logger.Warn("skipping name the target filesystem cannot store",
				"path", ent.Path,
				"fs", e.fs.Name())
		}
	}
	return out
}
