package targetfs

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// FS describes the naming rules of a target filesystem. Snapshot writes
// consult it to skip entries whose names the target cannot store.
type FS struct {
	name      string
	forbidden string
}

// Forbidden name characters per filesystem family, taken from
// https://en.wikipedia.org/wiki/Filename
var (
	Posix = FS{name: "posix", forbidden: `/`}
	NTFS  = FS{name: "ntfs", forbidden: `"*/:<>?\|`}
	FAT32 = FS{name: "fat32", forbidden: `"*/:<>?\|+,;=[]`}
)

// Name returns the filesystem family name.
func (f FS) Name() string {
	return f.name
}

// IsNameAllowed reports whether a single path segment contains no
// forbidden characters.
func (f FS) IsNameAllowed(name string) bool {
	return !strings.ContainsAny(name, f.forbidden)
}

// IsPathAllowed reports whether every segment of a slash-separated
// relative path is allowed.
func (f FS) IsPathAllowed(path string) bool {
	for _, name := range strings.Split(path, "/") {
		if !f.IsNameAllowed(name) {
			return false
		}
	}
	return true
}

var families = map[string]FS{
	"ext2":  Posix,
	"ext3":  Posix,
	"ext4":  Posix,
	"xfs":   Posix,
	"btrfs": Posix,
	"zfs":   Posix,
	"f2fs":  Posix,
	"tmpfs": Posix,

	"ntfs":    NTFS,
	"ntfs3":   NTFS,
	"fuseblk": NTFS,
	"exfat":   NTFS,

	"vfat":  FAT32,
	"msdos": FAT32,
	"fat":   FAT32,
	"fat32": FAT32,
}

// Detect determines the filesystem family holding path by matching it
// against the mounted partitions, preferring the partition with the longest
// matching mountpoint. An unrecognized filesystem type falls back to posix
// naming rules with a warning.
func Detect(path string, logger *slog.Logger) (FS, error) {
	parts, err := disk.Partitions(true)
	if err != nil {
		return FS{}, fmt.Errorf("list partitions: %w", err)
	}

	var found *disk.PartitionStat
	for i := range parts {
		mp := parts[i].Mountpoint
		prefix := strings.TrimSuffix(mp, string(filepath.Separator)) + string(filepath.Separator)
		if path != mp && !strings.HasPrefix(path, prefix) {
			continue
		}
		if found == nil || len(mp) > len(found.Mountpoint) {
			found = &parts[i]
		}
	}
	if found == nil {
		return FS{}, fmt.Errorf("no mounted filesystem contains %s", path)
	}

	fs, ok := families[found.Fstype]
	if !ok {
		logger.Warn("unrecognized filesystem type, assuming posix naming rules",
			"fstype", found.Fstype,
			"mountpoint", found.Mountpoint)
		return Posix, nil
	}
	return fs, nil
}
