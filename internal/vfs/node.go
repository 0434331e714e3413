package vfs

import "time"

// NodeID identifies a node for the lifetime of an FS. Ids are never reused.
type NodeID uint64

// Node is the in-memory inode analogue. Drivers create nodes through
// FS.CreateNode and keep their own per-node state in Data.
type Node struct {
	ID NodeID

	// parent is the node itself for a mount root
	parent  *Node
	mount   *Mount
	mounted *Mount

	Name string
	Mode Mode
	Rdev uint32

	Ops       NodeOps
	StreamOps StreamOps

	// Data belongs to the driver that created the node.
	Data any

	// chain link inside a name table bucket
	nameNext *Node
}

func (n *Node) Parent() *Node { return n.parent }

func (n *Node) Mount() *Mount { return n.mount }

func (n *Node) Mounted() *Mount { return n.mounted }

// IsRoot reports whether n is the root of its mount.
func (n *Node) IsRoot() bool { return n.parent == n }

// IsMountpoint reports whether another mount is attached at n.
func (n *Node) IsMountpoint() bool { return n.mounted != nil }

// Attr is the result of Getattr.
type Attr struct {
	Dev     uint64
	Ino     uint64
	Mode    Mode
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint32
	Size    int64
	Blksize int64
	Blocks  int64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

// SetAttr carries the fields to change in Setattr; nil fields stay untouched.
type SetAttr struct {
	Mode  *Mode
	UID   *uint32
	GID   *uint32
	Size  *int64
	Atime *time.Time
	Mtime *time.Time
	Ctime *time.Time
}

// NodeOps is the node capability set a driver implements. Drivers embed
// NotImplementedNodeOps and override what they support.
type NodeOps interface {
	Lookup(parent *Node, name string) (*Node, error)
	Mknod(parent *Node, name string, mode Mode, dev uint32) (*Node, error)
	Rename(node, newDir *Node, newName string) error
	Unlink(parent *Node, name string) error
	Rmdir(parent *Node, name string) error
	Readdir(node *Node) ([]string, error)
	Symlink(parent *Node, name, target string) (*Node, error)
	Readlink(node *Node) (string, error)
	Getattr(node *Node) (*Attr, error)
	Setattr(node *Node, attr *SetAttr) error
}

// StreamOps is the stream capability set. Read and Write transfer between the
// slice and the node at pos and report the byte count.
type StreamOps interface {
	Open(s *Stream) error
	Close(s *Stream) error
	Read(s *Stream, buf []byte, pos int64) (int, error)
	Write(s *Stream, buf []byte, pos int64) (int, error)
	Llseek(s *Stream, offset int64, whence int) (int64, error)
	Allocate(s *Stream, offset, length int64) error
	Mmap(s *Stream, length int, pos int64, prot, flags int) (*Mapping, error)
	Msync(s *Stream, buf []byte, offset int64, flags int) error
	Ioctl(s *Stream, cmd uint32, arg any) (int, error)
	Dup(s *Stream) error
	Fsync(s *Stream) error
}

// Mapping is the result of Mmap. Allocated is true when Data is a private
// copy that the caller owns; otherwise Data aliases the node's storage.
type Mapping struct {
	Data      []byte
	Allocated bool
}

// NotImplementedNodeOps answers every node operation with the errno the core
// reports for a missing capability.
type NotImplementedNodeOps struct{}

var _ NodeOps = NotImplementedNodeOps{}

func (NotImplementedNodeOps) Lookup(*Node, string) (*Node, error) {
	return nil, errnoError(EACCES)
}

func (NotImplementedNodeOps) Mknod(*Node, string, Mode, uint32) (*Node, error) {
	return nil, errnoError(EPERM)
}

func (NotImplementedNodeOps) Rename(*Node, *Node, string) error {
	return errnoError(EPERM)
}

func (NotImplementedNodeOps) Unlink(*Node, string) error {
	return errnoError(EPERM)
}

func (NotImplementedNodeOps) Rmdir(*Node, string) error {
	return errnoError(EPERM)
}

func (NotImplementedNodeOps) Readdir(*Node) ([]string, error) {
	return nil, errnoError(ENOTDIR)
}

func (NotImplementedNodeOps) Symlink(*Node, string, string) (*Node, error) {
	return nil, errnoError(EPERM)
}

func (NotImplementedNodeOps) Readlink(*Node) (string, error) {
	return "", errnoError(EINVAL)
}

func (NotImplementedNodeOps) Getattr(*Node) (*Attr, error) {
	return nil, errnoError(EPERM)
}

func (NotImplementedNodeOps) Setattr(*Node, *SetAttr) error {
	return errnoError(EPERM)
}

// NotImplementedStreamOps is the stream counterpart. Open, Close, Dup, Msync
// and Fsync are optional hooks and succeed as no-ops.
type NotImplementedStreamOps struct{}

var _ StreamOps = NotImplementedStreamOps{}

func (NotImplementedStreamOps) Open(*Stream) error  { return nil }
func (NotImplementedStreamOps) Close(*Stream) error { return nil }
func (NotImplementedStreamOps) Dup(*Stream) error   { return nil }
func (NotImplementedStreamOps) Fsync(*Stream) error { return nil }

func (NotImplementedStreamOps) Msync(*Stream, []byte, int64, int) error { return nil }

func (NotImplementedStreamOps) Read(*Stream, []byte, int64) (int, error) {
	return 0, errnoError(EINVAL)
}

func (NotImplementedStreamOps) Write(*Stream, []byte, int64) (int, error) {
	return 0, errnoError(EINVAL)
}

func (NotImplementedStreamOps) Llseek(*Stream, int64, int) (int64, error) {
	return 0, errnoError(ESPIPE)
}

func (NotImplementedStreamOps) Allocate(*Stream, int64, int64) error {
	return errnoError(EOPNOTSUPP)
}

func (NotImplementedStreamOps) Mmap(*Stream, int, int64, int, int) (*Mapping, error) {
	return nil, errnoError(ENODEV)
}

func (NotImplementedStreamOps) Ioctl(*Stream, uint32, any) (int, error) {
	return 0, errnoError(ENOTTY)
}
