package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Member describes one archive member as recorded in the index.
type Member struct {
	// Name is the member name as stored in the archive, without a trailing
	// slash even for directories.
	Name string
	// Type is the tar typeflag of the member.
	Type byte
	// Size is the content size in bytes; zero for anything but regular files.
	Size int64
	// LinkTarget is the symlink target for symlink members.
	LinkTarget string

	offset int64
}

// Archive is a read-only view of a tar.gz archive. Opening it scans the
// member headers exactly once and records the decompressed content offset and
// size of every member, so listing members and reading individual contents
// never rescans the archive structure.
type Archive struct {
	path    string
	root    string
	members []Member
	byName  map[string]int
}

// Open builds the member index of the archive at path.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", path, err)
	}
	defer func() {
		_ = gz.Close()
	}()

	cr := &countingReader{r: gz}
	tr := tar.NewReader(cr)

	a := &Archive{path: path, byName: make(map[string]int)}
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive %s: %w", path, err)
		}

		m := Member{
			Name:       strings.TrimSuffix(hdr.Name, "/"),
			Type:       hdr.Typeflag,
			LinkTarget: hdr.Linkname,
			offset:     cr.n,
		}
		if hdr.Typeflag == tar.TypeReg {
			m.Size = hdr.Size
		}
		a.byName[m.Name] = len(a.members)
		a.members = append(a.members, m)
	}

	if len(a.members) == 0 {
		return nil, fmt.Errorf("archive %s has no members", path)
	}
	a.root, _, _ = strings.Cut(a.members[0].Name, "/")

	return a, nil
}

// Path returns the file path the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// Root returns the single top-level directory name wrapping every member.
func (a *Archive) Root() string {
	return a.root
}

// Members returns the indexed members in archive order.
func (a *Archive) Members() []Member {
	return a.members
}

// Member looks up a member by its archive name, with or without the trailing
// slash directories carry.
func (a *Archive) Member(name string) (Member, bool) {
	i, ok := a.byName[strings.TrimSuffix(name, "/")]
	if !ok {
		return Member{}, false
	}
	return a.members[i], true
}

// Reader opens the content of the named regular file member. The archive is
// decompressed from the start up to the member's recorded offset, so reads
// are independent of each other and of the index.
func (a *Archive) Reader(name string) (io.ReadCloser, error) {
	m, ok := a.Member(name)
	if !ok {
		return nil, fmt.Errorf("archive %s has no member %s", a.path, name)
	}
	if m.Type != tar.TypeReg {
		return nil, fmt.Errorf("archive member %s is not a regular file", name)
	}

	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read archive %s: %w", a.path, err)
	}
	if _, err := io.CopyN(io.Discard, gz, m.offset); err != nil {
		_ = gz.Close()
		_ = f.Close()
		return nil, fmt.Errorf("seek archive member %s: %w", name, err)
	}

	return &memberReader{Reader: io.LimitReader(gz, m.Size), gz: gz, f: f}, nil
}

type memberReader struct {
	io.Reader
	gz *gzip.Reader
	f  *os.File
}

func (r *memberReader) Close() error {
	gzErr := r.gz.Close()
	if err := r.f.Close(); err != nil {
		return err
	}
	return gzErr
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
