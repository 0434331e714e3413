package pgfs

import (
	"path"
	"sort"
	"time"

	"github.com/S1riyS/guestvfs/internal/models"
	"github.com/S1riyS/guestvfs/internal/vfs"
)

// entrySet maps a mount-relative path to its modification time.
type entrySet map[string]time.Time

// Postgres keeps microseconds; comparing at that precision stops every sync
// from rewriting entries whose times only differ below it.
const mtimePrecision = time.Microsecond

// reconcile lists what must be written to dst (parents first) and what must
// be removed from it (children first) to make it match src.
func reconcile(src, dst entrySet) (create, remove []string) {
	for p, mtime := range src {
		other, ok := dst[p]
		if !ok || !mtime.Truncate(mtimePrecision).Equal(other.Truncate(mtimePrecision)) {
			create = append(create, p)
		}
	}
	for p := range dst {
		if _, ok := src[p]; !ok {
			remove = append(remove, p)
		}
	}
	sort.Strings(create)
	sort.Sort(sort.Reverse(sort.StringSlice(remove)))
	return create, remove
}

// localSet walks the mounted tree, skipping its root and any device or
// foreign node.
func localSet(m *vfs.Mount) (entrySet, error) {
	fs := m.FS()
	set := make(entrySet)
	check := []string{"/"}
	for len(check) > 0 {
		rel := check[len(check)-1]
		check = check[:len(check)-1]

		names, err := fs.Readdir(path.Join(m.Mountpoint, rel))
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if name == "." || name == ".." {
				continue
			}
			child := path.Join(rel, name)
			attr, err := fs.Lstat(path.Join(m.Mountpoint, child))
			if err != nil {
				return nil, err
			}
			if !persistable(attr.Mode) {
				continue
			}
			set[child] = attr.Mtime
			if attr.Mode.IsDir() {
				check = append(check, child)
			}
		}
	}
	return set, nil
}

func persistable(mode vfs.Mode) bool {
	return mode.IsDir() || mode.IsFile() || mode.IsLink()
}

func loadLocalEntry(fs *vfs.FS, mountpoint, rel string) (*models.Entry, []byte, error) {
	abs := path.Join(mountpoint, rel)
	attr, err := fs.Lstat(abs)
	if err != nil {
		return nil, nil, err
	}
	entry := &models.Entry{
		Path:  rel,
		Mode:  uint32(attr.Mode),
		Mtime: attr.Mtime,
	}

	var contents []byte
	switch {
	case attr.Mode.IsFile():
		contents, err = fs.ReadFile(abs)
	case attr.Mode.IsLink():
		entry.Link, err = fs.Readlink(abs)
	}
	if err != nil {
		return nil, nil, err
	}
	return entry, contents, nil
}

func storeLocalEntry(fs *vfs.FS, mountpoint string, entry *models.Entry, contents []byte) error {
	abs := path.Join(mountpoint, entry.Path)
	mode := vfs.Mode(entry.Mode)

	if attr, err := fs.Lstat(abs); err == nil && attr.Mode.Type() != mode.Type() {
		if err := removeLocalEntry(fs, mountpoint, entry.Path); err != nil {
			return err
		}
	}

	switch {
	case mode.IsDir():
		if err := fs.MkdirTree(abs, mode.Perm()); err != nil {
			return err
		}
	case mode.IsFile():
		if err := fs.WriteFile(abs, contents, mode.Perm()); err != nil {
			return err
		}
	case mode.IsLink():
		if err := fs.Unlink(abs); err != nil && !vfs.IsErrno(err, vfs.ENOENT) {
			return err
		}
		if _, err := fs.Symlink(entry.Link, abs); err != nil {
			return err
		}
		// links carry no permissions and Utime would follow them
		res, err := fs.LookupPath(abs, vfs.LookupOpts{})
		if err != nil {
			return err
		}
		return res.Node.Ops.Setattr(res.Node, &vfs.SetAttr{Atime: &entry.Mtime, Mtime: &entry.Mtime})
	default:
		return nil
	}

	if err := fs.Chmod(abs, mode.Perm()); err != nil {
		return err
	}
	return fs.Utime(abs, entry.Mtime, entry.Mtime)
}

func removeLocalEntry(fs *vfs.FS, mountpoint, rel string) error {
	abs := path.Join(mountpoint, rel)
	attr, err := fs.Lstat(abs)
	if err != nil {
		if vfs.IsErrno(err, vfs.ENOENT) {
			return nil
		}
		return err
	}
	if attr.Mode.IsDir() {
		return fs.Rmdir(abs)
	}
	return fs.Unlink(abs)
}
