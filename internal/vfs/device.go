package vfs

import (
	"errors"
	"io"
	"log/slog"
)

// ErrWouldBlock is returned by a device InputFunc that has no byte ready yet.
// A read that has produced nothing fails with EAGAIN; otherwise it returns
// what it has.
var ErrWouldBlock = errors.New("vfs: device input would block")

// InputFunc produces the next byte of a device. io.EOF ends the input.
type InputFunc func() (byte, error)

// OutputFunc consumes one byte written to a device.
type OutputFunc func(b byte) error

// first major handed out by CreateDevice
const firstDynamicMajor = 64

// Built-in device numbers.
var (
	devNull = MakeDev(1, 3)
	devTTY  = MakeDev(5, 0)
	devTTY1 = MakeDev(6, 0)
)

func MakeDev(major, minor uint32) uint32 { return major<<8 | minor }

func Major(dev uint32) uint32 { return dev >> 8 }

func Minor(dev uint32) uint32 { return dev & 0xff }

// RegisterDevice binds dev to ops. Opening a character node with that device
// number swaps the stream onto ops.
func (f *FS) RegisterDevice(dev uint32, ops StreamOps) {
	f.devices[dev] = ops
	f.log.Debug("device registered", slog.Uint64("major", uint64(Major(dev))), slog.Uint64("minor", uint64(Minor(dev))))
}

func (f *FS) GetDevice(dev uint32) (StreamOps, bool) {
	ops, ok := f.devices[dev]
	return ops, ok
}

// ChrdevStreamOps are the stream ops a driver assigns to character device
// nodes it creates.
func (f *FS) ChrdevStreamOps() StreamOps {
	return chrdevStreamOps{fs: f}
}

type chrdevStreamOps struct {
	NotImplementedStreamOps
	fs *FS
}

func (c chrdevStreamOps) Open(s *Stream) error {
	ops, ok := c.fs.GetDevice(s.Node.Rdev)
	if !ok {
		return errnoError(ENODEV)
	}
	s.Ops = ops
	return ops.Open(s)
}

func (chrdevStreamOps) Llseek(*Stream, int64, int) (int64, error) {
	return 0, errnoError(ESPIPE)
}

// nullDevice discards writes and reads as empty.
type nullDevice struct {
	NotImplementedStreamOps
}

func (nullDevice) Read(*Stream, []byte, int64) (int, error) { return 0, nil }

func (nullDevice) Write(_ *Stream, buf []byte, _ int64) (int, error) { return len(buf), nil }

// byteDevice adapts an input/output callback pair to a stream.
type byteDevice struct {
	NotImplementedStreamOps
	input  InputFunc
	output OutputFunc
}

func (d *byteDevice) Open(s *Stream) error {
	s.Seekable = false
	return nil
}

func (d *byteDevice) Read(_ *Stream, buf []byte, _ int64) (int, error) {
	if d.input == nil {
		return 0, errnoError(EIO)
	}
	read := 0
	for read < len(buf) {
		b, err := d.input()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, ErrWouldBlock) {
				if read == 0 {
					return 0, errnoError(EAGAIN)
				}
				break
			}
			return 0, errnoError(EIO)
		}
		buf[read] = b
		read++
	}
	return read, nil
}

func (d *byteDevice) Write(_ *Stream, buf []byte, _ int64) (int, error) {
	if d.output == nil {
		return 0, errnoError(EIO)
	}
	for i, b := range buf {
		if err := d.output(b); err != nil {
			if i > 0 {
				return i, nil
			}
			return 0, errnoError(EIO)
		}
	}
	return len(buf), nil
}

// CreateDevice makes a character device named name under parent backed by
// the given callbacks and a freshly allocated major number. Either callback
// may be nil; the node's permissions reflect which directions exist.
func (f *FS) CreateDevice(parent, name string, input InputFunc, output OutputFunc) (*Node, error) {
	p := joinPath(parent, name)
	dev := MakeDev(f.nextMajor, 0)
	f.nextMajor++

	f.RegisterDevice(dev, &byteDevice{input: input, output: output})
	return f.Mkdev(p, deviceMode(input != nil, output != nil), dev)
}

// randomSource serves random bytes from a refilled buffer.
type randomSource struct {
	r   io.Reader
	buf []byte
	pos int
}

const randomBufferSize = 1024

func newRandomSource(r io.Reader) *randomSource {
	return &randomSource{r: r}
}

func (rs *randomSource) next() (byte, error) {
	if rs.pos >= len(rs.buf) {
		if rs.buf == nil {
			rs.buf = make([]byte, randomBufferSize)
		}
		if _, err := io.ReadFull(rs.r, rs.buf); err != nil {
			rs.pos = len(rs.buf)
			return 0, err
		}
		rs.pos = 0
	}
	b := rs.buf[rs.pos]
	rs.pos++
	return b, nil
}
