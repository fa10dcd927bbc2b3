package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Suffix is the file name suffix of every archive the codec produces.
const Suffix = ".tar.gz"

// Compress writes a gzip-compressed tar archive of srcDir to destPath. Every
// member is placed under the single top-level directory rootLabel, so the
// archive always has exactly one wrapping root component. Symlinks are stored
// as symlink members and never followed; irregular files (devices, sockets,
// fifos) are not archived.
func Compress(srcDir, destPath, rootLabel string) error {
	if !strings.HasSuffix(destPath, Suffix) {
		return fmt.Errorf("invalid archive path %s: must end in %s", destPath, Suffix)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		_ = out.Close()
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	rootInfo, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("stat source dir: %w", err)
	}
	rootHdr, err := tar.FileInfoHeader(rootInfo, "")
	if err != nil {
		return err
	}
	rootHdr.Name = rootLabel + "/"
	if err := tw.WriteHeader(rootHdr); err != nil {
		return err
	}

	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == srcDir {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		name := rootLabel + "/" + filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(info, target)
			if err != nil {
				return err
			}
			hdr.Name = name
			return tw.WriteHeader(hdr)

		case d.IsDir():
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = name + "/"
			return tw.WriteHeader(hdr)

		case d.Type().IsRegular():
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = name
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			_, cpErr := io.Copy(tw, f)
			if clErr := f.Close(); cpErr == nil {
				cpErr = clErr
			}
			return cpErr

		default:
			// irregular files are never part of a snapshot
			return nil
		}
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", srcDir, err)
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return out.Close()
}

// Extract unpacks the archive at archivePath into destDir, stripping the
// single top-level wrapping directory from every member name. Only regular
// files, symlinks and directories are materialized.
func Extract(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("read archive %s: %w", archivePath, err)
	}
	defer func() {
		_ = gz.Close()
	}()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive %s: %w", archivePath, err)
		}

		rel, ok := stripRoot(hdr.Name)
		if !ok {
			continue
		}
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			return fmt.Errorf("archive %s: unsafe member path %q", archivePath, hdr.Name)
		}
		dest := filepath.Join(destDir, filepath.FromSlash(rel))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return err
			}
			if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
				return err
			}
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				return err
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return err
			}
			// never write file content through a symlink left at dest
			if fi, err := os.Lstat(dest); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
				if err := os.Remove(dest); err != nil {
					return err
				}
			}
			out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return err
			}
			_, cpErr := io.Copy(out, tr)
			if clErr := out.Close(); cpErr == nil {
				cpErr = clErr
			}
			if cpErr != nil {
				return cpErr
			}
		}
	}
}

// stripRoot removes the leading path component from a member name. It
// returns false for the top-level member itself.
func stripRoot(name string) (string, bool) {
	name = strings.TrimSuffix(name, "/")
	i := strings.IndexByte(name, '/')
	if i < 0 {
		return "", false
	}
	return name[i+1:], true
}
