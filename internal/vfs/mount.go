package vfs

import (
	"log/slog"
	"sync"
)

// Driver is a storage backend that can be mounted.
type Driver interface {
	// Mount returns the root node of a new instance. The root is created with
	// FS.CreateRoot so that it is its own parent.
	Mount(m *Mount) (*Node, error)
}

// Syncer is implemented by drivers that persist state outside the process.
// SyncFS may complete on another goroutine and must call done exactly once.
type Syncer interface {
	SyncFS(m *Mount, populate bool, done func(error))
}

// MountOptions are driver specific key/value options.
type MountOptions map[string]string

// Mount attaches one driver instance to the tree.
type Mount struct {
	fs *FS

	Driver     Driver
	Opts       MountOptions
	Mountpoint string

	mounts []*Mount
	root   *Node
}

func (m *Mount) FS() *FS { return m.fs }

func (m *Mount) Root() *Node { return m.root }

// Mounts returns the mounts attached directly below m.
func (m *Mount) Mounts() []*Mount { return m.mounts }

// CreateNode allocates a node under parent and indexes it in the name table.
// The node starts with no capabilities; drivers assign Ops and StreamOps.
func (f *FS) CreateNode(parent *Node, name string, mode Mode, rdev uint32) *Node {
	f.nextInode++
	n := &Node{
		ID:        f.nextInode,
		parent:    parent,
		mount:     parent.mount,
		Name:      name,
		Mode:      mode,
		Rdev:      rdev,
		Ops:       NotImplementedNodeOps{},
		StreamOps: NotImplementedStreamOps{},
	}
	f.table.add(n)
	return n
}

// CreateRoot allocates the root node of m. A root is its own parent.
func (f *FS) CreateRoot(m *Mount, mode Mode) *Node {
	f.nextInode++
	n := &Node{
		ID:        f.nextInode,
		mount:     m,
		Name:      "/",
		Mode:      mode,
		Ops:       NotImplementedNodeOps{},
		StreamOps: NotImplementedStreamOps{},
	}
	n.parent = n
	f.table.add(n)
	return n
}

// destroyNode drops n from the name table. Open streams keep using it.
func (f *FS) destroyNode(n *Node) {
	f.table.remove(n)
}

// Root returns the root node of the tree.
func (f *FS) Root() *Node {
	return f.root
}

// Mount attaches driver at mountpoint. "/" installs the tree root; an empty
// mountpoint creates a detached pseudo mount whose root is only reachable
// through the returned node.
func (f *FS) Mount(driver Driver, opts MountOptions, mountpoint string) (*Node, error) {
	isRoot := mountpoint == "/"
	pseudo := mountpoint == ""

	var node *Node
	switch {
	case isRoot && f.root != nil:
		return nil, errnoError(EBUSY)
	case !isRoot && !pseudo:
		res, err := f.LookupPath(mountpoint, LookupOpts{NoFollowMount: true})
		if err != nil {
			return nil, err
		}
		mountpoint = res.Path
		node = res.Node
		if node.IsMountpoint() {
			return nil, errnoError(EBUSY)
		}
		if !node.Mode.IsDir() {
			return nil, errnoError(ENOTDIR)
		}
	}

	if opts == nil {
		opts = MountOptions{}
	}
	m := &Mount{
		fs:         f,
		Driver:     driver,
		Opts:       opts,
		Mountpoint: mountpoint,
	}
	root, err := driver.Mount(m)
	if err != nil {
		return nil, err
	}
	root.mount = m
	m.root = root

	switch {
	case isRoot:
		f.root = root
	case node != nil:
		node.mounted = m
		node.mount.mounts = append(node.mount.mounts, m)
	}

	f.log.Debug("mounted", slog.String("mountpoint", mountpoint), slog.Uint64("root", uint64(root.ID)))
	return root, nil
}

// Unmount detaches the mount at mountpoint together with every mount below
// it and forgets all of their nodes.
func (f *FS) Unmount(mountpoint string) error {
	res, err := f.LookupPath(mountpoint, LookupOpts{NoFollowMount: true})
	if err != nil {
		return err
	}
	node := res.Node
	if !node.IsMountpoint() {
		return errnoError(EINVAL)
	}

	m := node.mounted
	set := make(map[*Mount]bool)
	for _, sub := range GetMounts(m) {
		set[sub] = true
	}
	f.table.purge(set)

	node.mounted = nil
	parent := node.mount
	for i, sub := range parent.mounts {
		if sub == m {
			parent.mounts = append(parent.mounts[:i], parent.mounts[i+1:]...)
			break
		}
	}

	f.log.Debug("unmounted", slog.String("mountpoint", res.Path))
	return nil
}

// GetMounts returns m and every mount transitively attached below it.
func GetMounts(m *Mount) []*Mount {
	var mounts []*Mount
	check := []*Mount{m}
	for len(check) > 0 {
		cur := check[len(check)-1]
		check = check[:len(check)-1]
		mounts = append(mounts, cur)
		check = append(check, cur.mounts...)
	}
	return mounts
}

// SyncFS asks every mounted driver that implements Syncer to persist
// (populate false) or reload (populate true) its state. done runs once: with
// the first error reported, or with nil after every mount has finished. Use
// WaitSyncFS to wait for the drivers an early error left running.
func (f *FS) SyncFS(populate bool, done func(error)) {
	if inFlight := f.syncRequests.Add(1); inFlight > 1 {
		f.log.Warn("overlapping syncfs operations in flight, probably doing extra work",
			slog.Int64("in_flight", int64(inFlight)))
	}

	mounts := GetMounts(f.root.mount)

	var (
		mu        sync.Mutex
		completed int
		finished  bool
	)
	finish := func(err error) {
		mu.Lock()
		if finished {
			mu.Unlock()
			return
		}
		if err == nil {
			completed++
			if completed < len(mounts) {
				mu.Unlock()
				return
			}
		}
		finished = true
		mu.Unlock()

		f.syncRequests.Add(-1)
		done(err)
	}

	for _, m := range mounts {
		syncer, ok := m.Driver.(Syncer)
		if !ok {
			finish(nil)
			continue
		}
		f.syncing.Add(1)
		var once sync.Once
		syncer.SyncFS(m, populate, func(err error) {
			once.Do(func() {
				defer f.syncing.Done()
				finish(err)
			})
		})
	}
}

// WaitSyncFS blocks until every driver asked by SyncFS has reported back,
// including those still running after done already fired with an error.
func (f *FS) WaitSyncFS() {
	f.syncing.Wait()
}
