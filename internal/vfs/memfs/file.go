package memfs

import (
	"time"

	"github.com/S1riyS/guestvfs/internal/vfs"
)

// growth factor switches from doubling to 1/8 increments past this size
const growthThreshold = 1024 * 1024

type fileStreamOps struct {
	vfs.NotImplementedStreamOps
}

func (fileStreamOps) Read(s *vfs.Stream, buf []byte, pos int64) (int, error) {
	data := dataOf(s.Node).data
	if pos >= int64(len(data)) {
		return 0, nil
	}
	return copy(buf, data[pos:]), nil
}

func (fileStreamOps) Write(s *vfs.Stream, buf []byte, pos int64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	nd := dataOf(s.Node)
	touch(nd)
	writeAt(nd, buf, pos)
	return len(buf), nil
}

func (fileStreamOps) Llseek(s *vfs.Stream, offset int64, whence int) (int64, error) {
	return seek(s, offset, whence)
}

func (fileStreamOps) Allocate(s *vfs.Stream, offset, length int64) error {
	nd := dataOf(s.Node)
	if end := int(offset + length); end > len(nd.data) {
		resize(nd, end)
	}
	return nil
}

// Mmap aliases the file storage for a shared mapping that fits inside the
// file; anything else gets a private zero-padded copy.
func (fileStreamOps) Mmap(s *vfs.Stream, length int, pos int64, _, flags int) (*vfs.Mapping, error) {
	if !s.Node.Mode.IsFile() {
		return nil, vfs.NewError(vfs.ENODEV)
	}
	data := dataOf(s.Node).data
	end := int(pos) + length
	if flags&vfs.MAP_PRIVATE == 0 && end <= len(data) {
		return &vfs.Mapping{Data: data[pos:end:end]}, nil
	}

	mapped := make([]byte, length)
	if pos < int64(len(data)) {
		copy(mapped, data[pos:])
	}
	return &vfs.Mapping{Data: mapped, Allocated: true}, nil
}

func (fileStreamOps) Msync(s *vfs.Stream, buf []byte, offset int64, _ int) error {
	nd := dataOf(s.Node)
	writeAt(nd, buf, offset)
	nd.mtime = time.Now()
	return nil
}

func writeAt(nd *nodeData, buf []byte, pos int64) {
	if end := int(pos) + len(buf); end > len(nd.data) {
		resize(nd, end)
	}
	copy(nd.data[pos:], buf)
}

// resize sets the file length to size. Bytes past the old length read as
// zero.
func resize(nd *nodeData, size int) {
	cur := len(nd.data)
	switch {
	case size == cur:
		return
	case size < cur:
		clear(nd.data[size:])
		nd.data = nd.data[:size]
		return
	case size <= cap(nd.data):
		nd.data = nd.data[:size]
		return
	}

	newCap := cap(nd.data)
	if newCap < growthThreshold {
		newCap *= 2
	} else {
		newCap += newCap >> 3
	}
	newCap = max(newCap, size, 256)
	grown := make([]byte, size, newCap)
	copy(grown, nd.data)
	nd.data = grown
}
