package vfs

// Stream is the live state behind one file descriptor.
type Stream struct {
	fd int

	Node     *Node
	Path     string
	Flags    int
	Seekable bool
	Ops      StreamOps

	// shared by every stream duplicated from the same open
	offset *streamOffset

	// Data belongs to whichever StreamOps are bound (the tty binding, for
	// instance).
	Data any
}

type streamOffset struct {
	pos int64
}

// Position is the offset the next Read or Write starts at.
func (s *Stream) Position() int64 { return s.offset.pos }

func (s *Stream) setPosition(pos int64) { s.offset.pos = pos }

// FD returns the descriptor, or -1 once the stream is closed.
func (s *Stream) FD() int { return s.fd }

func (s *Stream) IsClosed() bool { return s.fd < 0 }

// IsRead reports whether the access mode allows reading.
func (s *Stream) IsRead() bool {
	return s.Flags&O_PATH == 0 && s.Flags&O_ACCMODE != O_WRONLY
}

// IsWrite reports whether the access mode allows writing.
func (s *Stream) IsWrite() bool {
	return s.Flags&O_PATH == 0 && s.Flags&O_ACCMODE != O_RDONLY
}

func (s *Stream) IsAppend() bool { return s.Flags&O_APPEND != 0 }

// NextFD returns the lowest free descriptor.
func (f *FS) NextFD() (int, error) {
	for fd := range f.streams {
		if f.streams[fd] == nil {
			return fd, nil
		}
	}
	return -1, errnoError(EMFILE)
}

// GetStream returns the stream on fd or nil.
func (f *FS) GetStream(fd int) *Stream {
	if fd < 0 || fd >= len(f.streams) {
		return nil
	}
	return f.streams[fd]
}

// GetStreamChecked is GetStream failing with EBADF for a free descriptor.
func (f *FS) GetStreamChecked(fd int) (*Stream, error) {
	s := f.GetStream(fd)
	if s == nil {
		return nil, errnoError(EBADF)
	}
	return s, nil
}

// Streams returns the open streams ordered by descriptor.
func (f *FS) Streams() []*Stream {
	var open []*Stream
	for _, s := range f.streams {
		if s != nil {
			open = append(open, s)
		}
	}
	return open
}

// installStream places s on fd, or on the lowest free descriptor when fd is
// negative.
func (f *FS) installStream(s *Stream, fd int) error {
	if fd < 0 {
		next, err := f.NextFD()
		if err != nil {
			return err
		}
		fd = next
	} else if fd >= len(f.streams) {
		return errnoError(EBADF)
	}
	s.fd = fd
	f.streams[fd] = s
	return nil
}

func (f *FS) releaseStream(s *Stream) {
	if s.fd >= 0 && s.fd < len(f.streams) && f.streams[s.fd] == s {
		f.streams[s.fd] = nil
	}
	s.fd = -1
}

// Open opens p with the given flags. With O_CREAT a missing file is created
// with mode (0666 when zero).
func (f *FS) Open(p string, flags int, mode Mode) (*Stream, error) {
	if p == "" {
		return nil, errnoError(ENOENT)
	}
	if flags&O_CREAT != 0 {
		if mode == 0 {
			mode = defaultFileMode
		}
		mode = mode&S_IALLUGO | S_IFREG
	} else {
		mode = 0
	}

	var node *Node
	// a failed lookup is not fatal: O_CREAT may still make the file
	if res, err := f.LookupPath(p, LookupOpts{Follow: flags&O_NOFOLLOW == 0}); err == nil {
		node = res.Node
	}

	created := false
	if flags&O_CREAT != 0 {
		if node != nil {
			if flags&O_EXCL != 0 {
				return nil, errnoError(EEXIST)
			}
		} else {
			n, err := f.Mknod(p, mode, 0)
			if err != nil {
				return nil, err
			}
			node = n
			created = true
		}
	}
	return f.openNode(node, flags, created)
}

// OpenMode opens p with an fopen-style mode string ("r", "w+", "a", ...).
func (f *FS) OpenMode(p, modeString string, mode Mode) (*Stream, error) {
	flags, err := ModeStringToFlags(modeString)
	if err != nil {
		return nil, err
	}
	return f.Open(p, flags, mode)
}

// OpenNode opens an already resolved node.
func (f *FS) OpenNode(n *Node, flags int) (*Stream, error) {
	if n != nil && flags&(O_CREAT|O_EXCL) == O_CREAT|O_EXCL {
		return nil, errnoError(EEXIST)
	}
	return f.openNode(n, flags, false)
}

func (f *FS) openNode(node *Node, flags int, created bool) (*Stream, error) {
	if node == nil {
		return nil, errnoError(ENOENT)
	}
	if node.Mode.IsChrdev() {
		flags &^= O_TRUNC
	}
	if flags&O_DIRECTORY != 0 && !node.Mode.IsDir() {
		return nil, errnoError(ENOTDIR)
	}
	if !created {
		if err := f.mayOpen(node, flags); err != nil {
			return nil, err
		}
		if flags&O_TRUNC != 0 {
			if err := f.truncateNode(node, 0); err != nil {
				return nil, err
			}
		}
	}
	flags &^= O_EXCL | O_TRUNC | O_NOFOLLOW

	s := &Stream{
		Node:     node,
		Path:     f.GetPath(node),
		Flags:    flags,
		Seekable: true,
		Ops:      node.StreamOps,
		offset:   &streamOffset{},
	}
	if err := f.installStream(s, -1); err != nil {
		return nil, err
	}
	if err := s.Ops.Open(s); err != nil {
		f.releaseStream(s)
		return nil, err
	}
	return s, nil
}

// Close releases the descriptor. The slot is freed even when the driver's
// close hook fails.
func (f *FS) Close(s *Stream) error {
	if s.IsClosed() {
		return errnoError(EBADF)
	}
	defer f.releaseStream(s)
	return s.Ops.Close(s)
}

// Llseek moves the stream position and returns the new offset.
func (f *FS) Llseek(s *Stream, offset int64, whence int) (int64, error) {
	if s.IsClosed() {
		return 0, errnoError(EBADF)
	}
	if !s.Seekable {
		return 0, errnoError(ESPIPE)
	}
	if whence != SEEK_SET && whence != SEEK_CUR && whence != SEEK_END {
		return 0, errnoError(EINVAL)
	}
	pos, err := s.Ops.Llseek(s, offset, whence)
	if err != nil {
		return 0, err
	}
	s.setPosition(pos)
	return pos, nil
}

// Read reads up to length bytes into buf[offset:] at the stream position and
// advances it.
func (f *FS) Read(s *Stream, buf []byte, offset, length int) (int, error) {
	return f.read(s, buf, offset, length, 0, false)
}

// Pread reads at pos and leaves the stream position alone.
func (f *FS) Pread(s *Stream, buf []byte, offset, length int, pos int64) (int, error) {
	return f.read(s, buf, offset, length, pos, true)
}

func (f *FS) read(s *Stream, buf []byte, offset, length int, pos int64, seeking bool) (int, error) {
	if length < 0 || pos < 0 || offset < 0 || offset+length > len(buf) {
		return 0, errnoError(EINVAL)
	}
	if s.IsClosed() {
		return 0, errnoError(EBADF)
	}
	if !s.IsRead() {
		return 0, errnoError(EBADF)
	}
	if s.Node.Mode.IsDir() {
		return 0, errnoError(EISDIR)
	}
	if !seeking {
		pos = s.Position()
	} else if !s.Seekable {
		return 0, errnoError(ESPIPE)
	}

	n, err := s.Ops.Read(s, buf[offset:offset+length], pos)
	if err != nil {
		return 0, err
	}
	if !seeking {
		s.setPosition(s.Position() + int64(n))
	}
	return n, nil
}

// Write writes buf[offset:offset+length] at the stream position (the end for
// O_APPEND) and advances it.
func (f *FS) Write(s *Stream, buf []byte, offset, length int) (int, error) {
	return f.write(s, buf, offset, length, 0, false)
}

// Pwrite writes at pos and leaves the stream position alone.
func (f *FS) Pwrite(s *Stream, buf []byte, offset, length int, pos int64) (int, error) {
	return f.write(s, buf, offset, length, pos, true)
}

func (f *FS) write(s *Stream, buf []byte, offset, length int, pos int64, seeking bool) (int, error) {
	if length < 0 || pos < 0 || offset < 0 || offset+length > len(buf) {
		return 0, errnoError(EINVAL)
	}
	if s.IsClosed() {
		return 0, errnoError(EBADF)
	}
	if !s.IsWrite() {
		return 0, errnoError(EBADF)
	}
	if s.Node.Mode.IsDir() {
		return 0, errnoError(EISDIR)
	}
	if s.Seekable && s.IsAppend() {
		if _, err := f.Llseek(s, 0, SEEK_END); err != nil {
			return 0, err
		}
	}
	if !seeking {
		pos = s.Position()
	} else if !s.Seekable {
		return 0, errnoError(ESPIPE)
	}

	n, err := s.Ops.Write(s, buf[offset:offset+length], pos)
	if err != nil {
		return 0, err
	}
	if !seeking {
		s.setPosition(s.Position() + int64(n))
	}
	return n, nil
}

// Allocate guarantees storage for [offset, offset+length).
func (f *FS) Allocate(s *Stream, offset, length int64) error {
	if s.IsClosed() {
		return errnoError(EBADF)
	}
	if offset < 0 || length <= 0 {
		return errnoError(EINVAL)
	}
	if !s.IsWrite() {
		return errnoError(EBADF)
	}
	if !s.Node.Mode.IsFile() && !s.Node.Mode.IsDir() {
		return errnoError(ENODEV)
	}
	return s.Ops.Allocate(s, offset, length)
}

// Mmap maps length bytes of the stream starting at pos.
func (f *FS) Mmap(s *Stream, length int, pos int64, prot, flags int) (*Mapping, error) {
	if s.IsClosed() {
		return nil, errnoError(EBADF)
	}
	// a writable shared mapping needs a read-write stream
	if prot&PROT_WRITE != 0 && flags&MAP_PRIVATE == 0 && s.Flags&accessMask != O_RDWR {
		return nil, errnoError(EACCES)
	}
	if s.Flags&accessMask == O_WRONLY {
		return nil, errnoError(EACCES)
	}
	if length <= 0 || pos < 0 {
		return nil, errnoError(EINVAL)
	}
	return s.Ops.Mmap(s, length, pos, prot, flags)
}

// Msync writes a mapping back to the stream at offset.
func (f *FS) Msync(s *Stream, buf []byte, offset int64, flags int) error {
	if s.IsClosed() {
		return errnoError(EBADF)
	}
	return s.Ops.Msync(s, buf, offset, flags)
}

// Ioctl forwards a device control request.
func (f *FS) Ioctl(s *Stream, cmd uint32, arg any) (int, error) {
	if s.IsClosed() {
		return 0, errnoError(EBADF)
	}
	return s.Ops.Ioctl(s, cmd, arg)
}

// Fsync flushes buffered output of the stream's driver.
func (f *FS) Fsync(s *Stream) error {
	if s.IsClosed() {
		return errnoError(EBADF)
	}
	return s.Ops.Fsync(s)
}

// DupStream clones orig onto fd (the lowest free one when negative) and runs
// the driver's dup hook. Both streams share one file offset, as dup(2) does.
func (f *FS) DupStream(orig *Stream, fd int) (*Stream, error) {
	if orig.IsClosed() {
		return nil, errnoError(EBADF)
	}
	dup := *orig
	if err := f.installStream(&dup, fd); err != nil {
		return nil, err
	}
	if err := dup.Ops.Dup(&dup); err != nil {
		f.releaseStream(&dup)
		return nil, err
	}
	return &dup, nil
}

// Dup2 duplicates oldfd onto newfd, closing whatever newfd referred to.
func (f *FS) Dup2(oldfd, newfd int) (*Stream, error) {
	s, err := f.GetStreamChecked(oldfd)
	if err != nil {
		return nil, err
	}
	if oldfd == newfd {
		return s, nil
	}
	if newfd < 0 || newfd >= len(f.streams) {
		return nil, errnoError(EBADF)
	}
	if existing := f.streams[newfd]; existing != nil {
		if err := f.Close(existing); err != nil {
			return nil, err
		}
	}
	return f.DupStream(s, newfd)
}
