package vfs

import (
	"errors"
	"io/fs"

	"github.com/S1riyS/guestvfs/internal/pkg/kerrors"
)

// Errno codes used by the core, re-exported so drivers need only this package.
const (
	EACCES     = kerrors.EACCES
	EAGAIN     = kerrors.EAGAIN
	EBADF      = kerrors.EBADF
	EBUSY      = kerrors.EBUSY
	EEXIST     = kerrors.EEXIST
	EINVAL     = kerrors.EINVAL
	EIO        = kerrors.EIO
	EISDIR     = kerrors.EISDIR
	ELOOP      = kerrors.ELOOP
	EMFILE     = kerrors.EMFILE
	ENODEV     = kerrors.ENODEV
	ENOENT     = kerrors.ENOENT
	ENOSYS     = kerrors.ENOSYS
	ENOTDIR    = kerrors.ENOTDIR
	ENOTEMPTY  = kerrors.ENOTEMPTY
	ENOTTY     = kerrors.ENOTTY
	ENXIO      = kerrors.ENXIO
	EPERM      = kerrors.EPERM
	ESPIPE     = kerrors.ESPIPE
	EXDEV      = kerrors.EXDEV
	EOPNOTSUPP = kerrors.EOPNOTSUPP
)

// ErrAlreadyInitialized is returned by Init when it already ran without a
// Quit. It carries EBUSY, the code Init also fails with when descriptors 0-2
// are taken.
var ErrAlreadyInitialized error = &ErrnoError{Errno: EBUSY}

// ErrnoError is the only error the core raises for file system failures.
// Callers branch on Errno, never on the message.
type ErrnoError struct {
	Errno kerrors.Errno
}

func (e *ErrnoError) Error() string {
	return "vfs: " + e.Errno.String()
}

// Is lets callers test against the io/fs sentinels as well as against another
// *ErrnoError with the same code.
func (e *ErrnoError) Is(target error) bool {
	if t, ok := target.(*ErrnoError); ok {
		return t.Errno == e.Errno
	}
	switch target {
	case fs.ErrNotExist:
		return e.Errno == ENOENT
	case fs.ErrExist:
		return e.Errno == EEXIST
	case fs.ErrPermission:
		return e.Errno == EACCES || e.Errno == EPERM
	case fs.ErrInvalid:
		return e.Errno == EINVAL
	case fs.ErrClosed:
		return e.Errno == EBADF
	}
	return false
}

// cached instances for codes raised on hot paths (probing lookups)
var genericErrors = map[kerrors.Errno]*ErrnoError{}

func init() {
	for _, code := range []kerrors.Errno{ENOENT} {
		genericErrors[code] = &ErrnoError{Errno: code}
	}
}

func errnoError(code kerrors.Errno) *ErrnoError {
	if e, ok := genericErrors[code]; ok {
		return e
	}
	return &ErrnoError{Errno: code}
}

// NewError returns the error for code. Drivers use it to raise errnos.
func NewError(code kerrors.Errno) error {
	return errnoError(code)
}

// ErrnoOf extracts the errno from err, or EIO when err did not come from the
// file system.
func ErrnoOf(err error) kerrors.Errno {
	if err == nil {
		return kerrors.ESUCCESS
	}
	var e *ErrnoError
	if errors.As(err, &e) {
		return e.Errno
	}
	return EIO
}

// IsErrno reports whether err carries code.
func IsErrno(err error, code kerrors.Errno) bool {
	var e *ErrnoError
	return errors.As(err, &e) && e.Errno == code
}
