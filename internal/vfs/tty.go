package vfs

import (
	"bufio"
	"errors"
	"io"
)

// Terminal ioctl requests.
const (
	TCGETS     = 0x5401
	TCSETS     = 0x5402
	TCSETSW    = 0x5403
	TCSETSF    = 0x5404
	TIOCGPGRP  = 0x540F
	TIOCSPGRP  = 0x5410
	TIOCGWINSZ = 0x5413
	TIOCSWINSZ = 0x5414
)

// Termios is the terminal attribute block exchanged by TCGETS and TCSETS.
type Termios struct {
	Iflag uint32
	Oflag uint32
	Cflag uint32
	Lflag uint32
	Cc    [32]byte
}

// Winsize is the terminal size reported by TIOCGWINSZ.
type Winsize struct {
	Rows uint16
	Cols uint16
}

func defaultTermios() Termios {
	return Termios{
		Iflag: 0x6500,
		Oflag: 0x5,
		Cflag: 0xbf,
		Lflag: 0x8a3b,
		Cc: [32]byte{
			0x03, 0x1c, 0x7f, 0x15, 0x04, 0x00, 0x01, 0x00,
			0x11, 0x13, 0x1a, 0x00, 0x12, 0x0f, 0x17, 0x16,
		},
	}
}

// TTYOps drive the output side of a terminal.
type TTYOps interface {
	PutChar(t *TTY, b byte) error
	Fsync(t *TTY) error
}

// TTYInput is implemented by TTYOps that can also be read from.
type TTYInput interface {
	GetChar(t *TTY) (byte, error)
}

// TTY is a registered terminal. Output is line buffered.
type TTY struct {
	ops     TTYOps
	input   []byte
	output  []byte
	termios Termios
	winsize Winsize
}

// RegisterTTY binds dev to a terminal driven by ops.
func (f *FS) RegisterTTY(dev uint32, ops TTYOps) {
	f.ttys[dev] = &TTY{
		ops:     ops,
		termios: defaultTermios(),
		winsize: Winsize{Rows: 24, Cols: 80},
	}
	f.RegisterDevice(dev, ttyStreamOps{fs: f})
}

type ttyStreamOps struct {
	NotImplementedStreamOps
	fs *FS
}

func (o ttyStreamOps) Open(s *Stream) error {
	t, ok := o.fs.ttys[s.Node.Rdev]
	if !ok {
		return errnoError(ENODEV)
	}
	s.Data = t
	s.Seekable = false
	return nil
}

func (ttyStreamOps) Close(s *Stream) error {
	t, _ := s.Data.(*TTY)
	if t == nil {
		return nil
	}
	return t.ops.Fsync(t)
}

func (ttyStreamOps) Fsync(s *Stream) error {
	t, _ := s.Data.(*TTY)
	if t == nil {
		return nil
	}
	return t.ops.Fsync(t)
}

// Read returns at most one line.
func (ttyStreamOps) Read(s *Stream, buf []byte, _ int64) (int, error) {
	t, _ := s.Data.(*TTY)
	if t == nil {
		return 0, errnoError(ENXIO)
	}
	in, ok := t.ops.(TTYInput)
	if !ok {
		return 0, errnoError(ENXIO)
	}
	read := 0
	for read < len(buf) {
		b, err := in.GetChar(t)
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
		if b == '\n' {
			break
		}
	}
	return read, nil
}

func (ttyStreamOps) Write(s *Stream, buf []byte, _ int64) (int, error) {
	t, _ := s.Data.(*TTY)
	if t == nil {
		return 0, errnoError(ENXIO)
	}
	for _, b := range buf {
		if err := t.ops.PutChar(t, b); err != nil {
			return 0, errnoError(EIO)
		}
	}
	return len(buf), nil
}

func (ttyStreamOps) Ioctl(s *Stream, cmd uint32, arg any) (int, error) {
	t, _ := s.Data.(*TTY)
	if t == nil {
		return 0, errnoError(ENOTTY)
	}
	switch cmd {
	case TCGETS:
		if out, ok := arg.(*Termios); ok {
			*out = t.termios
		}
		return 0, nil
	case TCSETS, TCSETSW, TCSETSF:
		if in, ok := arg.(*Termios); ok {
			t.termios = *in
		}
		return 0, nil
	case TIOCGPGRP:
		if out, ok := arg.(*int32); ok {
			*out = 0
		}
		return 0, nil
	case TIOCSPGRP:
		return 0, errnoError(EINVAL)
	case TIOCGWINSZ:
		if out, ok := arg.(*Winsize); ok {
			*out = t.winsize
		}
		return 0, nil
	case TIOCSWINSZ:
		if in, ok := arg.(*Winsize); ok {
			t.winsize = *in
		}
		return 0, nil
	}
	return 0, errnoError(EINVAL)
}

// consoleTTY writes completed lines to out.
type consoleTTY struct {
	out io.Writer
}

func (c consoleTTY) PutChar(t *TTY, b byte) error {
	switch b {
	case '\n':
		line := append(t.output, '\n')
		t.output = t.output[:0]
		_, err := c.out.Write(line)
		return err
	case 0:
		return nil
	}
	t.output = append(t.output, b)
	return nil
}

func (c consoleTTY) Fsync(t *TTY) error {
	if len(t.output) == 0 {
		return nil
	}
	pending := t.output
	t.output = nil
	_, err := c.out.Write(pending)
	return err
}

// interactiveTTY is a console that also reads lines from in.
type interactiveTTY struct {
	consoleTTY
	in *bufio.Reader
}

func (c interactiveTTY) GetChar(t *TTY) (byte, error) {
	if len(t.input) == 0 {
		line, err := c.in.ReadBytes('\n')
		if len(line) == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, err
		}
		t.input = line
	}
	b := t.input[0]
	t.input = t.input[1:]
	return b, nil
}
