package kerrors

import "strconv"

// Errno is an error code as seen by the wasm32 guest libc (WASI numbering).
// Guest code compares these numbers directly, so they must not be renumbered.
type Errno int32

const (
	ESUCCESS     Errno = 0
	E2BIG        Errno = 1  // Argument list too long
	EACCES       Errno = 2  // Permission denied
	EAGAIN       Errno = 6  // Resource temporarily unavailable
	EBADF        Errno = 8  // Bad file descriptor
	EBUSY        Errno = 10 // Device or resource busy
	EEXIST       Errno = 20 // File exists
	EFAULT       Errno = 21 // Bad address
	EFBIG        Errno = 22 // File too large
	EINVAL       Errno = 28 // Invalid argument
	EIO          Errno = 29 // I/O error
	EISDIR       Errno = 31 // Is a directory
	ELOOP        Errno = 32 // Too many levels of symbolic links
	EMFILE       Errno = 33 // Too many open files
	ENAMETOOLONG Errno = 37 // File name too long
	ENODEV       Errno = 43 // No such device
	ENOENT       Errno = 44 // No such file or directory
	ENOMEM       Errno = 48 // Out of memory
	ENOSPC       Errno = 51 // No space left on device
	ENOSYS       Errno = 52 // Function not implemented
	ENOTDIR      Errno = 54 // Not a directory
	ENOTEMPTY    Errno = 55 // Directory not empty
	ENOTTY       Errno = 59 // Inappropriate ioctl for device
	ENXIO        Errno = 60 // No such device or address
	EPERM        Errno = 63 // Operation not permitted
	EROFS        Errno = 69 // Read-only file system
	ESPIPE       Errno = 70 // Illegal seek
	EXDEV        Errno = 75 // Cross-device link
	EOPNOTSUPP   Errno = 138
)

var messages = map[Errno]string{
	ESUCCESS:     "success",
	E2BIG:        "argument list too long",
	EACCES:       "permission denied",
	EAGAIN:       "resource temporarily unavailable",
	EBADF:        "bad file descriptor",
	EBUSY:        "device or resource busy",
	EEXIST:       "file exists",
	EFAULT:       "bad address",
	EFBIG:        "file too large",
	EINVAL:       "invalid argument",
	EIO:          "input/output error",
	EISDIR:       "is a directory",
	ELOOP:        "too many levels of symbolic links",
	EMFILE:       "too many open files",
	ENAMETOOLONG: "file name too long",
	ENODEV:       "no such device",
	ENOENT:       "no such file or directory",
	ENOMEM:       "out of memory",
	ENOSPC:       "no space left on device",
	ENOSYS:       "function not implemented",
	ENOTDIR:      "not a directory",
	ENOTEMPTY:    "directory not empty",
	ENOTTY:       "inappropriate ioctl for device",
	ENXIO:        "no such device or address",
	EPERM:        "operation not permitted",
	EROFS:        "read-only file system",
	ESPIPE:       "illegal seek",
	EXDEV:        "cross-device link",
	EOPNOTSUPP:   "operation not supported",
}

func (e Errno) String() string {
	if msg, ok := messages[e]; ok {
		return msg
	}
	return "errno " + strconv.Itoa(int(e))
}

// Neg returns the negated code, the form written into handler responses.
func (e Errno) Neg() int64 {
	return -int64(e)
}
