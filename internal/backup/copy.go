package backup

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/schaermu/dirbakd/internal/catalog"
)

// entryPath resolves a catalog entry path below root.
func entryPath(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(rel, "/")))
}

// copyEntries materializes the given entries below dstRoot, reading file
// contents and link targets from srcRoot. Directories and symlinks are
// created in ascending path order, so parents exist before their contents;
// file contents are then copied in parallel.
func (e *Engine) copyEntries(entries catalog.Set, srcRoot, dstRoot string) error {
	var files []catalog.Entry

	for _, ent := range entries.Sorted() {
		dst := entryPath(dstRoot, ent.Path)

		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}

		switch ent.Kind {
		case catalog.KindDir:
			if err := clearForKind(dst, true); err != nil {
				return err
			}
			if err := os.MkdirAll(dst, 0755); err != nil {
				return err
			}

		case catalog.KindSymlink:
			target, err := os.Readlink(entryPath(srcRoot, ent.Path))
			if err != nil {
				return fmt.Errorf("copy %s: %w", ent.Path, err)
			}
			if err := clearForKind(dst, false); err != nil {
				return err
			}
			if err := os.Symlink(target, dst); err != nil {
				return fmt.Errorf("copy %s: %w", ent.Path, err)
			}

		default:
			files = append(files, ent)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for _, ent := range files {
		g.Go(func() error {
			if err := copyFile(entryPath(srcRoot, ent.Path), entryPath(dstRoot, ent.Path)); err != nil {
				return fmt.Errorf("copy %s: %w", ent.Path, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// clearForKind removes whatever sits at dst when it would get in the way of
// materializing an entry there: a symlink is never written through, and a
// directory blocking a file (or the other way round) is replaced.
func clearForKind(dst string, wantDir bool) error {
	fi, err := os.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fi.IsDir() {
		if wantDir {
			return nil
		}
		return os.RemoveAll(dst)
	}
	if wantDir || fi.Mode()&fs.ModeSymlink != 0 {
		return os.Remove(dst)
	}
	return nil
}

// copyFile copies a regular file preserving its mode and modification time.
func copyFile(src, dst string) error {
	if err := clearForKind(dst, false); err != nil {
		return err
	}

	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// removeEntries deletes entries below root in descending path order, so
// children are gone before their directory is attempted. A directory that
// still has contents is left in place; a path that is already gone is only
// worth a warning.
func (e *Engine) removeEntries(entries catalog.Set, root string) error {
	sorted := entries.Sorted()
	for i := len(sorted) - 1; i >= 0; i-- {
		path := entryPath(root, sorted[i].Path)
		fi, err := os.Lstat(path)
		if err != nil {
			if os.IsNotExist(err) {
				e.logger.Warn("path to remove does not exist", "path", path)
				continue
			}
			return err
		}

		if fi.IsDir() {
			ents, err := os.ReadDir(path)
			if err != nil {
				return err
			}
			if len(ents) > 0 {
				continue
			}
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// union merges entry sets into a fresh one.
func union(sets ...catalog.Set) catalog.Set {
	out := make(catalog.Set)
	for _, s := range sets {
		for ent := range s {
			out.Add(ent)
		}
	}
	return out
}

// entriesFromPaths rebuilds entries from recorded path lists. The trailing
// separator marks directories; everything else comes back as a file, which
// is close enough for removal since that inspects the real object type.
func entriesFromPaths(paths []string) catalog.Set {
	set := make(catalog.Set)
	for _, p := range paths {
		if strings.HasSuffix(p, "/") {
			set.Add(catalog.Entry{Kind: catalog.KindDir, Path: p})
		} else {
			set.Add(catalog.Entry{Kind: catalog.KindFile, Path: p})
		}
	}
	return set
}
