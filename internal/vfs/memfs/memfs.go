// Package memfs is the pure in-memory driver mounted at the root by default.
package memfs

import (
	"sort"
	"time"

	"github.com/S1riyS/guestvfs/internal/vfs"
)

const blockSize = 4096

// Driver mounts an empty in-memory tree.
type Driver struct{}

var _ vfs.Driver = Driver{}

func (Driver) Mount(m *vfs.Mount) (*vfs.Node, error) {
	root := m.FS().CreateRoot(m, vfs.S_IFDIR|0o777)
	setup(root)
	return root, nil
}

// nodeData is the per-node state kept in vfs.Node.Data.
type nodeData struct {
	contents map[string]*vfs.Node
	data     []byte
	link     string

	uid, gid uint32

	atime, mtime, ctime time.Time
}

func dataOf(n *vfs.Node) *nodeData {
	return n.Data.(*nodeData)
}

func setup(n *vfs.Node) {
	now := time.Now()
	nd := &nodeData{atime: now, mtime: now, ctime: now}
	switch {
	case n.Mode.IsDir():
		nd.contents = make(map[string]*vfs.Node)
		n.Ops = dirOps{}
		n.StreamOps = dirStreamOps{}
	case n.Mode.IsFile():
		n.Ops = attrOps{}
		n.StreamOps = fileStreamOps{}
	case n.Mode.IsLink():
		n.Ops = linkOps{}
	case n.Mode.IsChrdev():
		n.Ops = attrOps{}
		n.StreamOps = n.Mount().FS().ChrdevStreamOps()
	}
	n.Data = nd
}

func createNode(parent *vfs.Node, name string, mode vfs.Mode, dev uint32) (*vfs.Node, error) {
	if mode.IsBlkdev() || mode.IsFIFO() {
		return nil, vfs.NewError(vfs.EPERM)
	}
	n := parent.Mount().FS().CreateNode(parent, name, mode, dev)
	setup(n)

	pd := dataOf(parent)
	pd.contents[name] = n
	touch(pd)
	return n, nil
}

func touch(nd *nodeData) {
	now := time.Now()
	nd.mtime = now
	nd.ctime = now
}

// attrOps is the capability set shared by every node type.
type attrOps struct {
	vfs.NotImplementedNodeOps
}

func (attrOps) Getattr(n *vfs.Node) (*vfs.Attr, error) {
	nd := dataOf(n)
	attr := &vfs.Attr{
		Dev:     1,
		Ino:     uint64(n.ID),
		Mode:    n.Mode,
		Nlink:   1,
		UID:     nd.uid,
		GID:     nd.gid,
		Rdev:    n.Rdev,
		Blksize: blockSize,
		Atime:   nd.atime,
		Mtime:   nd.mtime,
		Ctime:   nd.ctime,
	}
	if n.Mode.IsChrdev() {
		attr.Dev = uint64(n.ID)
	}
	switch {
	case n.Mode.IsDir():
		attr.Size = blockSize
	case n.Mode.IsFile():
		attr.Size = int64(len(nd.data))
	case n.Mode.IsLink():
		attr.Size = int64(len(nd.link))
	}
	attr.Blocks = (attr.Size + blockSize - 1) / blockSize
	return attr, nil
}

func (attrOps) Setattr(n *vfs.Node, attr *vfs.SetAttr) error {
	nd := dataOf(n)
	if attr.Mode != nil {
		n.Mode = *attr.Mode
	}
	if attr.UID != nil {
		nd.uid = *attr.UID
	}
	if attr.GID != nil {
		nd.gid = *attr.GID
	}
	if attr.Atime != nil {
		nd.atime = *attr.Atime
	}
	if attr.Mtime != nil {
		nd.mtime = *attr.Mtime
	}
	if attr.Ctime != nil {
		nd.ctime = *attr.Ctime
	}
	if attr.Size != nil {
		resize(nd, int(*attr.Size))
	}
	return nil
}

type dirOps struct {
	attrOps
}

func (dirOps) Lookup(parent *vfs.Node, name string) (*vfs.Node, error) {
	if n, ok := dataOf(parent).contents[name]; ok {
		return n, nil
	}
	return nil, vfs.NewError(vfs.ENOENT)
}

func (dirOps) Mknod(parent *vfs.Node, name string, mode vfs.Mode, dev uint32) (*vfs.Node, error) {
	return createNode(parent, name, mode, dev)
}

func (dirOps) Rename(old, newDir *vfs.Node, newName string) error {
	nd := dataOf(newDir)
	if existing, ok := nd.contents[newName]; ok && old.Mode.IsDir() {
		if len(dataOf(existing).contents) > 0 {
			return vfs.NewError(vfs.ENOTEMPTY)
		}
	}

	od := dataOf(old.Parent())
	delete(od.contents, old.Name)
	touch(od)
	nd.contents[newName] = old
	touch(nd)
	dataOf(old).ctime = time.Now()
	return nil
}

func (dirOps) Unlink(parent *vfs.Node, name string) error {
	pd := dataOf(parent)
	delete(pd.contents, name)
	touch(pd)
	return nil
}

func (dirOps) Rmdir(parent *vfs.Node, name string) error {
	pd := dataOf(parent)
	if n, ok := pd.contents[name]; ok && len(dataOf(n).contents) > 0 {
		return vfs.NewError(vfs.ENOTEMPTY)
	}
	delete(pd.contents, name)
	touch(pd)
	return nil
}

func (dirOps) Readdir(n *vfs.Node) ([]string, error) {
	names := make([]string, 0, len(dataOf(n).contents))
	for name := range dataOf(n).contents {
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{".", ".."}, names...), nil
}

func (dirOps) Symlink(parent *vfs.Node, name, target string) (*vfs.Node, error) {
	n, err := createNode(parent, name, vfs.S_IFLNK|0o777, 0)
	if err != nil {
		return nil, err
	}
	dataOf(n).link = target
	return n, nil
}

type linkOps struct {
	attrOps
}

func (linkOps) Readlink(n *vfs.Node) (string, error) {
	if !n.Mode.IsLink() {
		return "", vfs.NewError(vfs.EINVAL)
	}
	return dataOf(n).link, nil
}

// dirStreamOps lets an open directory seek; reads are refused by the core.
type dirStreamOps struct {
	vfs.NotImplementedStreamOps
}

func (dirStreamOps) Llseek(s *vfs.Stream, offset int64, whence int) (int64, error) {
	return seek(s, offset, whence)
}

func seek(s *vfs.Stream, offset int64, whence int) (int64, error) {
	pos := offset
	switch whence {
	case vfs.SEEK_CUR:
		pos += s.Position()
	case vfs.SEEK_END:
		if s.Node.Mode.IsFile() {
			pos += int64(len(dataOf(s.Node).data))
		}
	}
	if pos < 0 {
		return 0, vfs.NewError(vfs.EINVAL)
	}
	return pos, nil
}
