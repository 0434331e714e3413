package vfs

import "strings"

// SetIgnorePermissions toggles permission enforcement. Checks are skipped by
// default; existence and type checks in mayCreate, mayDelete and mayOpen run
// either way.
func (f *FS) SetIgnorePermissions(ignore bool) {
	f.ignorePermissions = ignore
}

func (f *FS) IgnorePermissions() bool {
	return f.ignorePermissions
}

// nodePermissions checks the requested r/w/x letters against any of the
// user, group or other bits of n.
func (f *FS) nodePermissions(n *Node, perms string) error {
	if f.ignorePermissions {
		return nil
	}
	switch {
	case strings.Contains(perms, "r") && !n.Mode.Readable():
		return errnoError(EACCES)
	case strings.Contains(perms, "w") && !n.Mode.Writable():
		return errnoError(EACCES)
	case strings.Contains(perms, "x") && !n.Mode.Executable():
		return errnoError(EACCES)
	}
	return nil
}

func (f *FS) mayLookup(dir *Node) error {
	if !dir.Mode.IsDir() {
		return errnoError(ENOTDIR)
	}
	return f.nodePermissions(dir, "x")
}

func (f *FS) mayCreate(dir *Node, name string) error {
	if !dir.Mode.IsDir() {
		return errnoError(ENOTDIR)
	}
	if _, err := f.lookupNode(dir, name); err == nil {
		return errnoError(EEXIST)
	}
	return f.nodePermissions(dir, "wx")
}

func (f *FS) mayDelete(dir *Node, name string, isDir bool) error {
	n, err := f.lookupNode(dir, name)
	if err != nil {
		return err
	}
	if err := f.nodePermissions(dir, "wx"); err != nil {
		return err
	}
	if isDir {
		if !n.Mode.IsDir() {
			return errnoError(ENOTDIR)
		}
		if n.IsRoot() || f.GetPath(n) == f.cwd {
			return errnoError(EBUSY)
		}
	} else if n.Mode.IsDir() {
		return errnoError(EISDIR)
	}
	return nil
}

func (f *FS) mayOpen(n *Node, flags int) error {
	if n == nil {
		return errnoError(ENOENT)
	}
	perms := flagsToPermissionString(flags)
	if n.Mode.IsLink() {
		return errnoError(ELOOP)
	}
	if n.Mode.IsDir() && (perms != "r" || flags&O_TRUNC != 0) {
		return errnoError(EISDIR)
	}
	return f.nodePermissions(n, perms)
}
