package vfs

// LookupOpts tunes LookupPath.
type LookupOpts struct {
	// Follow dereferences a symlink in the final segment.
	Follow bool
	// NoFollowMount keeps a mount point in the final segment instead of
	// replacing it with the mounted root.
	NoFollowMount bool
	// Parent stops one segment early and returns the containing directory.
	Parent bool
	// RecurseCount is the nesting depth of symlink resolution so far.
	RecurseCount int
}

// LookupResult is a resolved node and its canonical path.
type LookupResult struct {
	Path string
	Node *Node
}

// LookupPath walks p from the root and returns the node it names.
func (f *FS) LookupPath(p string, opts LookupOpts) (LookupResult, error) {
	if opts.RecurseCount > maxRecurseCount {
		return LookupResult{}, errnoError(ELOOP)
	}
	if p == "" {
		return LookupResult{}, errnoError(ENOENT)
	}
	p = f.resolve(p)

	parts := splitPath(p)
	current := f.root
	currentPath := "/"

	for i, part := range parts {
		isLast := i == len(parts)-1
		if isLast && opts.Parent {
			break
		}

		next, err := f.lookupNode(current, part)
		if err != nil {
			return LookupResult{}, err
		}
		current = next
		currentPath = joinPath(currentPath, part)

		if current.IsMountpoint() && (!isLast || !opts.NoFollowMount) {
			current = current.mounted.root
		}

		if !isLast || opts.Follow {
			follows := 0
			for current.Mode.IsLink() {
				target, err := current.Ops.Readlink(current)
				if err != nil {
					return LookupResult{}, err
				}
				currentPath = f.resolve(dirName(currentPath), target)

				res, err := f.LookupPath(currentPath, LookupOpts{RecurseCount: opts.RecurseCount + 1})
				if err != nil {
					return LookupResult{}, err
				}
				current = res.Node

				follows++
				if follows > maxSymlinkFollows {
					return LookupResult{}, errnoError(ELOOP)
				}
			}
		}
	}

	return LookupResult{Path: currentPath, Node: current}, nil
}

// LookupNode resolves one name inside parent, consulting the name table
// before asking the driver.
func (f *FS) LookupNode(parent *Node, name string) (*Node, error) {
	return f.lookupNode(parent, name)
}

func (f *FS) lookupNode(parent *Node, name string) (*Node, error) {
	if err := f.mayLookup(parent); err != nil {
		return nil, err
	}
	if n := f.table.find(parent, name); n != nil {
		return n, nil
	}
	n, err := parent.Ops.Lookup(parent, name)
	if err != nil {
		return nil, err
	}
	// synthetic nodes are their own parent and stay out of the table
	if n.parent == parent && !f.table.contains(n) {
		f.table.add(n)
	}
	return n, nil
}

// GetPath rebuilds the absolute path of n from its parents and the mountpoint
// of its mount.
func (f *FS) GetPath(n *Node) string {
	var p string
	for {
		if n.IsRoot() {
			mountpoint := n.mount.Mountpoint
			if p == "" {
				return mountpoint
			}
			return joinPath(mountpoint, p)
		}
		if p == "" {
			p = n.Name
		} else {
			p = n.Name + "/" + p
		}
		n = n.parent
	}
}

// Cwd returns the current working directory.
func (f *FS) Cwd() string {
	return f.cwd
}

// Chdir changes the current working directory to the directory at p.
func (f *FS) Chdir(p string) error {
	res, err := f.LookupPath(p, LookupOpts{Follow: true})
	if err != nil {
		return err
	}
	if !res.Node.Mode.IsDir() {
		return errnoError(ENOTDIR)
	}
	if err := f.nodePermissions(res.Node, "x"); err != nil {
		return err
	}
	f.cwd = res.Path
	return nil
}
