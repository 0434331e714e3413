package vfs

import (
	"strconv"
	"time"
)

// procFDDriver serves /proc/self/fd: one symlink per open descriptor, each
// pointing at the path the stream was opened with.
type procFDDriver struct {
	fs *FS
}

func (d procFDDriver) Mount(m *Mount) (*Node, error) {
	root := d.fs.CreateRoot(m, S_IFDIR|0o777)
	root.Ops = procFDDirOps{fs: d.fs}
	return root, nil
}

type procFDDirOps struct {
	NotImplementedNodeOps
	fs *FS
}

// Lookup builds a detached link node on every call; it never enters the name
// table so it always reflects the current descriptor.
func (o procFDDirOps) Lookup(parent *Node, name string) (*Node, error) {
	fd, err := strconv.Atoi(name)
	if err != nil {
		return nil, errnoError(ENOENT)
	}
	s, err := o.fs.GetStreamChecked(fd)
	if err != nil {
		return nil, err
	}

	o.fs.nextInode++
	n := &Node{
		ID:        o.fs.nextInode,
		mount:     &Mount{fs: o.fs, Mountpoint: "fake"},
		Name:      name,
		Mode:      S_IFLNK | 0o777,
		Ops:       procFDLinkOps{target: s.Path},
		StreamOps: NotImplementedStreamOps{},
	}
	n.parent = n
	return n, nil
}

func (o procFDDirOps) Readdir(*Node) ([]string, error) {
	entries := []string{".", ".."}
	for _, s := range o.fs.Streams() {
		entries = append(entries, strconv.Itoa(s.FD()))
	}
	return entries, nil
}

func (o procFDDirOps) Getattr(n *Node) (*Attr, error) {
	return syntheticAttr(n, 0), nil
}

type procFDLinkOps struct {
	NotImplementedNodeOps
	target string
}

func (o procFDLinkOps) Readlink(*Node) (string, error) {
	return o.target, nil
}

func (o procFDLinkOps) Getattr(n *Node) (*Attr, error) {
	return syntheticAttr(n, int64(len(o.target))), nil
}

func syntheticAttr(n *Node, size int64) *Attr {
	now := time.Now()
	return &Attr{
		Dev:     1,
		Ino:     uint64(n.ID),
		Mode:    n.Mode,
		Nlink:   1,
		Size:    size,
		Blksize: 4096,
		Atime:   now,
		Mtime:   now,
		Ctime:   now,
	}
}
