package vfs

import (
	"strings"
	"time"
)

// Mknod creates a node of any type at p. The parent must exist and the name
// must be free.
func (f *FS) Mknod(p string, mode Mode, dev uint32) (*Node, error) {
	res, err := f.LookupPath(p, LookupOpts{Parent: true})
	if err != nil {
		return nil, err
	}
	parent := res.Node
	name := baseName(p)
	if name == "" || name == "." || name == ".." {
		return nil, errnoError(EINVAL)
	}
	if err := f.mayCreate(parent, name); err != nil {
		return nil, err
	}
	return parent.Ops.Mknod(parent, name, mode, dev)
}

// Create makes a regular file. A zero mode means 0666.
func (f *FS) Create(p string, mode Mode) (*Node, error) {
	if mode == 0 {
		mode = defaultFileMode
	}
	return f.Mknod(p, mode&S_IALLUGO|S_IFREG, 0)
}

// Mkdir makes a directory. A zero mode means 0777.
func (f *FS) Mkdir(p string, mode Mode) (*Node, error) {
	if mode == 0 {
		mode = defaultDirMode
	}
	return f.Mknod(p, mode&(S_IRWXUGO|S_ISVTX)|S_IFDIR, 0)
}

// MkdirTree creates every missing directory along p.
func (f *FS) MkdirTree(p string, mode Mode) error {
	d := ""
	for _, part := range strings.Split(p, "/") {
		if part == "" {
			continue
		}
		d += "/" + part
		if _, err := f.Mkdir(d, mode); err != nil && !IsErrno(err, EEXIST) {
			return err
		}
	}
	return nil
}

// Mkdev makes a character device node bound to dev. A zero mode means 0666.
func (f *FS) Mkdev(p string, mode Mode, dev uint32) (*Node, error) {
	if mode == 0 {
		mode = defaultFileMode
	}
	return f.Mknod(p, mode|S_IFCHR, dev)
}

// Symlink creates a link at linkpath whose content is target.
func (f *FS) Symlink(target, linkpath string) (*Node, error) {
	if target == "" {
		return nil, errnoError(ENOENT)
	}
	res, err := f.LookupPath(linkpath, LookupOpts{Parent: true})
	if err != nil {
		return nil, err
	}
	parent := res.Node
	name := baseName(linkpath)
	if name == "" || name == "." || name == ".." {
		return nil, errnoError(EINVAL)
	}
	if err := f.mayCreate(parent, name); err != nil {
		return nil, err
	}
	return parent.Ops.Symlink(parent, name, target)
}

// Rename moves oldPath to newPath within one mount, replacing a compatible
// destination.
func (f *FS) Rename(oldPath, newPath string) error {
	oldDirName, newDirName := dirName(oldPath), dirName(newPath)
	oldName, newName := baseName(oldPath), baseName(newPath)

	res, err := f.LookupPath(oldPath, LookupOpts{Parent: true})
	if err != nil {
		return err
	}
	oldDir := res.Node
	res, err = f.LookupPath(newPath, LookupOpts{Parent: true})
	if err != nil {
		return err
	}
	newDir := res.Node

	if oldDir.mount != newDir.mount {
		return errnoError(EXDEV)
	}

	oldNode, err := f.lookupNode(oldDir, oldName)
	if err != nil {
		return err
	}

	// source must not be an ancestor of the destination, nor the reverse
	if rel := f.relative(oldPath, newDirName); !strings.HasPrefix(rel, ".") {
		return errnoError(EINVAL)
	}
	if rel := f.relative(newPath, oldDirName); !strings.HasPrefix(rel, ".") {
		return errnoError(ENOTEMPTY)
	}

	newNode, _ := f.lookupNode(newDir, newName)
	if oldNode == newNode {
		return nil
	}

	isDir := oldNode.Mode.IsDir()
	if err := f.mayDelete(oldDir, oldName, isDir); err != nil {
		return err
	}
	if newNode != nil {
		err = f.mayDelete(newDir, newName, isDir)
	} else {
		err = f.mayCreate(newDir, newName)
	}
	if err != nil {
		return err
	}

	if oldNode.IsMountpoint() || (newNode != nil && newNode.IsMountpoint()) {
		return errnoError(EBUSY)
	}
	if newDir != oldDir {
		if err := f.nodePermissions(oldDir, "w"); err != nil {
			return err
		}
	}

	f.table.remove(oldNode)
	err = oldDir.Ops.Rename(oldNode, newDir, newName)
	if err == nil {
		if newNode != nil {
			f.destroyNode(newNode)
		}
		oldNode.parent = newDir
		oldNode.Name = newName
	}
	f.table.add(oldNode)
	return err
}

// Rmdir removes the empty directory at p.
func (f *FS) Rmdir(p string) error {
	res, err := f.LookupPath(p, LookupOpts{Parent: true})
	if err != nil {
		return err
	}
	parent := res.Node
	name := baseName(p)
	node, err := f.lookupNode(parent, name)
	if err != nil {
		return err
	}
	if err := f.mayDelete(parent, name, true); err != nil {
		return err
	}
	if node.IsMountpoint() {
		return errnoError(EBUSY)
	}
	if err := parent.Ops.Rmdir(parent, name); err != nil {
		return err
	}
	f.destroyNode(node)
	return nil
}

// Unlink removes the non-directory at p.
func (f *FS) Unlink(p string) error {
	res, err := f.LookupPath(p, LookupOpts{Parent: true})
	if err != nil {
		return err
	}
	parent := res.Node
	name := baseName(p)
	node, err := f.lookupNode(parent, name)
	if err != nil {
		return err
	}
	if err := f.mayDelete(parent, name, false); err != nil {
		return err
	}
	if node.IsMountpoint() {
		return errnoError(EBUSY)
	}
	if err := parent.Ops.Unlink(parent, name); err != nil {
		return err
	}
	f.destroyNode(node)
	return nil
}

// Readdir lists the directory at p, including "." and "..".
func (f *FS) Readdir(p string) ([]string, error) {
	res, err := f.LookupPath(p, LookupOpts{Follow: true})
	if err != nil {
		return nil, err
	}
	return res.Node.Ops.Readdir(res.Node)
}

// Readlink returns the stored target of the symlink at p.
func (f *FS) Readlink(p string) (string, error) {
	res, err := f.LookupPath(p, LookupOpts{})
	if err != nil {
		return "", err
	}
	return res.Node.Ops.Readlink(res.Node)
}

// Stat describes the node at p, following a final symlink.
func (f *FS) Stat(p string) (*Attr, error) {
	return f.stat(p, false)
}

// Lstat describes the node at p without following a final symlink.
func (f *FS) Lstat(p string) (*Attr, error) {
	return f.stat(p, true)
}

func (f *FS) stat(p string, dontFollow bool) (*Attr, error) {
	res, err := f.LookupPath(p, LookupOpts{Follow: !dontFollow})
	if err != nil {
		return nil, err
	}
	return res.Node.Ops.Getattr(res.Node)
}

// Fstat describes the node behind fd.
func (f *FS) Fstat(fd int) (*Attr, error) {
	s, err := f.GetStreamChecked(fd)
	if err != nil {
		return nil, err
	}
	return s.Node.Ops.Getattr(s.Node)
}

// Chmod replaces the permission bits of the node at p.
func (f *FS) Chmod(p string, mode Mode) error {
	n, err := f.nodeAt(p, true)
	if err != nil {
		return err
	}
	return f.chmodNode(n, mode)
}

// Lchmod is Chmod without following a final symlink.
func (f *FS) Lchmod(p string, mode Mode) error {
	n, err := f.nodeAt(p, false)
	if err != nil {
		return err
	}
	return f.chmodNode(n, mode)
}

func (f *FS) Fchmod(fd int, mode Mode) error {
	s, err := f.GetStreamChecked(fd)
	if err != nil {
		return err
	}
	return f.chmodNode(s.Node, mode)
}

func (f *FS) chmodNode(n *Node, mode Mode) error {
	newMode := mode&S_IALLUGO | n.Mode&^S_IALLUGO
	now := time.Now()
	return n.Ops.Setattr(n, &SetAttr{Mode: &newMode, Ctime: &now})
}

// Chown records uid and gid on the node at p.
func (f *FS) Chown(p string, uid, gid uint32) error {
	n, err := f.nodeAt(p, true)
	if err != nil {
		return err
	}
	return f.chownNode(n, uid, gid)
}

func (f *FS) Lchown(p string, uid, gid uint32) error {
	n, err := f.nodeAt(p, false)
	if err != nil {
		return err
	}
	return f.chownNode(n, uid, gid)
}

func (f *FS) Fchown(fd int, uid, gid uint32) error {
	s, err := f.GetStreamChecked(fd)
	if err != nil {
		return err
	}
	return f.chownNode(s.Node, uid, gid)
}

func (f *FS) chownNode(n *Node, uid, gid uint32) error {
	now := time.Now()
	return n.Ops.Setattr(n, &SetAttr{UID: &uid, GID: &gid, Ctime: &now})
}

// Truncate sets the size of the regular file at p.
func (f *FS) Truncate(p string, length int64) error {
	if length < 0 {
		return errnoError(EINVAL)
	}
	n, err := f.nodeAt(p, true)
	if err != nil {
		return err
	}
	return f.truncateNode(n, length)
}

// Ftruncate sets the size of the file behind fd, which must be writable.
func (f *FS) Ftruncate(fd int, length int64) error {
	s, err := f.GetStreamChecked(fd)
	if err != nil {
		return err
	}
	if s.Flags&accessMask == O_RDONLY {
		return errnoError(EINVAL)
	}
	if length < 0 {
		return errnoError(EINVAL)
	}
	return f.truncateNode(s.Node, length)
}

func (f *FS) truncateNode(n *Node, length int64) error {
	if n.Mode.IsDir() {
		return errnoError(EISDIR)
	}
	if !n.Mode.IsFile() {
		return errnoError(EINVAL)
	}
	if err := f.nodePermissions(n, "w"); err != nil {
		return err
	}
	now := time.Now()
	return n.Ops.Setattr(n, &SetAttr{Size: &length, Mtime: &now, Ctime: &now})
}

// Utime sets the access and modification times of the node at p.
func (f *FS) Utime(p string, atime, mtime time.Time) error {
	n, err := f.nodeAt(p, true)
	if err != nil {
		return err
	}
	return n.Ops.Setattr(n, &SetAttr{Atime: &atime, Mtime: &mtime})
}

func (f *FS) nodeAt(p string, follow bool) (*Node, error) {
	res, err := f.LookupPath(p, LookupOpts{Follow: follow})
	if err != nil {
		return nil, err
	}
	return res.Node, nil
}
