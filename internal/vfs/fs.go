package vfs

import (
	"bufio"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/S1riyS/guestvfs/pkg/logging/slogdiscard"
)

// Options configure New. Zero values select the defaults.
type Options struct {
	Logger *slog.Logger

	MaxOpenFDs    int
	NameTableSize int

	// EnforcePermissions turns on mode bit checks, which are off by default.
	EnforcePermissions bool

	// Terminal backing for /dev/tty (Stdin, Stdout) and /dev/tty1 (Stderr).
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Random feeds /dev/random and /dev/urandom.
	Random io.Reader
}

// FS is one file system instance: node tree, descriptor table and devices.
// It is not safe for concurrent use; callers serialise access.
type FS struct {
	log *slog.Logger

	root      *Node
	table     *nameTable
	nextInode NodeID
	cwd       string

	streams []*Stream

	devices   map[uint32]StreamOps
	nextMajor uint32
	ttys      map[uint32]*TTY

	ignorePermissions bool
	initialized       bool
	syncRequests      atomic.Int32
	syncing           sync.WaitGroup

	stdin          io.Reader
	stdout, stderr io.Writer
	random         io.Reader
}

// New builds a file system with rootDriver mounted at "/" and the default
// layout in place: /tmp, /home/web_user, /dev with its devices, /dev/shm and
// /proc/self/fd.
func New(rootDriver Driver, opts Options) (*FS, error) {
	f := newFS(opts)
	if _, err := f.Mount(rootDriver, nil, "/"); err != nil {
		return nil, err
	}
	for _, setup := range []func() error{
		f.createDefaultDirectories,
		f.createDefaultDevices,
		f.createSpecialDirectories,
	} {
		if err := setup(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func newFS(opts Options) *FS {
	f := &FS{
		log:               opts.Logger,
		table:             newNameTable(opts.NameTableSize),
		cwd:               "/",
		devices:           make(map[uint32]StreamOps),
		nextMajor:         firstDynamicMajor,
		ttys:              make(map[uint32]*TTY),
		ignorePermissions: !opts.EnforcePermissions,
		stdin:             opts.Stdin,
		stdout:            opts.Stdout,
		stderr:            opts.Stderr,
		random:            opts.Random,
	}
	if f.log == nil {
		f.log = slogdiscard.NewDiscardLogger()
	}
	maxFDs := opts.MaxOpenFDs
	if maxFDs <= 0 {
		maxFDs = DefaultMaxOpenFDs
	}
	f.streams = make([]*Stream, maxFDs)
	if f.stdin == nil {
		f.stdin = os.Stdin
	}
	if f.stdout == nil {
		f.stdout = os.Stdout
	}
	if f.stderr == nil {
		f.stderr = os.Stderr
	}
	if f.random == nil {
		f.random = rand.Reader
	}
	return f
}

func (f *FS) createDefaultDirectories() error {
	for _, dir := range []string{"/tmp", "/home", "/home/web_user"} {
		if _, err := f.Mkdir(dir, 0); err != nil {
			return err
		}
	}
	return nil
}

func (f *FS) createDefaultDevices() error {
	if _, err := f.Mkdir("/dev", 0); err != nil {
		return err
	}

	f.RegisterDevice(devNull, nullDevice{})
	if _, err := f.Mkdev("/dev/null", 0, devNull); err != nil {
		return err
	}

	f.RegisterTTY(devTTY, interactiveTTY{consoleTTY: consoleTTY{out: f.stdout}, in: bufio.NewReader(f.stdin)})
	f.RegisterTTY(devTTY1, consoleTTY{out: f.stderr})
	if _, err := f.Mkdev("/dev/tty", 0, devTTY); err != nil {
		return err
	}
	if _, err := f.Mkdev("/dev/tty1", 0, devTTY1); err != nil {
		return err
	}

	src := newRandomSource(f.random)
	for _, name := range []string{"random", "urandom"} {
		if _, err := f.CreateDevice("/dev", name, src.next, nil); err != nil {
			return err
		}
	}

	for _, dir := range []string{"/dev/shm", "/dev/shm/tmp"} {
		if _, err := f.Mkdir(dir, 0); err != nil {
			return err
		}
	}
	return nil
}

func (f *FS) createSpecialDirectories() error {
	for _, dir := range []string{"/proc", "/proc/self", "/proc/self/fd"} {
		if _, err := f.Mkdir(dir, 0); err != nil {
			return err
		}
	}
	_, err := f.Mount(procFDDriver{fs: f}, nil, "/proc/self/fd")
	return err
}

// Init opens descriptors 0, 1 and 2. A nil callback falls back to the
// matching terminal: /dev/tty for stdin and stdout, /dev/tty1 for stderr.
func (f *FS) Init(stdin InputFunc, stdout, stderr OutputFunc) error {
	if f.initialized {
		return ErrAlreadyInitialized
	}
	f.initialized = true

	if err := f.createStandardStreams(stdin, stdout, stderr); err != nil {
		f.initialized = false
		return err
	}
	return nil
}

func (f *FS) createStandardStreams(stdin InputFunc, stdout, stderr OutputFunc) (err error) {
	for fd := 0; fd < 3; fd++ {
		if f.GetStream(fd) != nil {
			return errnoError(EBUSY)
		}
	}

	var opened []*Stream
	defer func() {
		if err != nil {
			for _, s := range opened {
				f.Close(s)
			}
		}
	}()

	for _, name := range []string{"stdin", "stdout", "stderr"} {
		if err := f.Unlink("/dev/" + name); err != nil && !IsErrno(err, ENOENT) {
			return err
		}
	}

	type standard struct {
		name     string
		fallback string
		input    InputFunc
		output   OutputFunc
		flags    int
	}
	for fd, s := range []standard{
		{name: "stdin", fallback: "/dev/tty", input: stdin, flags: O_RDONLY},
		{name: "stdout", fallback: "/dev/tty", output: stdout, flags: O_WRONLY},
		{name: "stderr", fallback: "/dev/tty1", output: stderr, flags: O_WRONLY},
	} {
		if s.input != nil || s.output != nil {
			_, err = f.CreateDevice("/dev", s.name, s.input, s.output)
		} else {
			_, err = f.Symlink(s.fallback, "/dev/"+s.name)
		}
		if err != nil {
			return err
		}
		var stream *Stream
		stream, err = f.Open("/dev/"+s.name, s.flags, 0)
		if err != nil {
			return err
		}
		opened = append(opened, stream)
		if stream.FD() != fd {
			return errnoError(EBUSY)
		}
	}
	return nil
}

// Quit flushes and closes every open stream. Close failures are collected and
// do not stop the remaining closes.
func (f *FS) Quit() error {
	f.initialized = false
	var errs []error
	for _, s := range f.Streams() {
		if err := f.Close(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Initialized reports whether Init has run since the last Quit.
func (f *FS) Initialized() bool {
	return f.initialized
}
