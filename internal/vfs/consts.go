package vfs

// File type and permission bits. Values follow the guest ABI.
const (
	S_IFMT   = 0o170000
	S_IFSOCK = 0o140000
	S_IFLNK  = 0o120000
	S_IFREG  = 0o100000
	S_IFBLK  = 0o060000
	S_IFDIR  = 0o040000
	S_IFCHR  = 0o020000
	S_IFIFO  = 0o010000

	S_ISUID = 0o4000
	S_ISGID = 0o2000
	S_ISVTX = 0o1000

	S_IRWXUGO = 0o777
	S_IALLUGO = 0o7777
	S_IRUGO   = 0o444
	S_IWUGO   = 0o222
	S_IXUGO   = 0o111
)

// Open flags.
const (
	O_RDONLY    = 0
	O_WRONLY    = 1
	O_RDWR      = 2
	O_ACCMODE   = 3
	O_CREAT     = 0o100
	O_EXCL      = 0o200
	O_NOCTTY    = 0o400
	O_TRUNC     = 0o1000
	O_APPEND    = 0o2000
	O_NONBLOCK  = 0o4000
	O_DSYNC     = 0o10000
	O_DIRECTORY = 0o200000
	O_NOFOLLOW  = 0o400000
	O_CLOEXEC   = 0o2000000
	O_PATH      = 0o10000000

	// access bits plus O_PATH; a stream opened with O_PATH can neither read nor write
	accessMask = O_ACCMODE | O_PATH
)

// Whence values for Llseek.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// mmap protection and mapping flags.
const (
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4

	MAP_SHARED    = 1
	MAP_PRIVATE   = 2
	MAP_ANONYMOUS = 0x20
)

// Defaults used by New when no option overrides them.
const (
	DefaultMaxOpenFDs    = 4096
	DefaultNameTableSize = 4096

	// nested LookupPath calls allowed while chasing symlinks
	maxRecurseCount = 8
	// symlink follows allowed inside a single LookupPath call
	maxSymlinkFollows = 40

	defaultFileMode = 0o666
	defaultDirMode  = 0o777
)

// Mode is a node's type and permission bits.
type Mode uint32

func (m Mode) Type() Mode { return m & S_IFMT }
func (m Mode) Perm() Mode { return m & S_IALLUGO }

func (m Mode) IsFile() bool { return m&S_IFMT == S_IFREG }
func (m Mode) IsDir() bool { return m&S_IFMT == S_IFDIR }
func (m Mode) IsLink() bool { return m&S_IFMT == S_IFLNK }
func (m Mode) IsChrdev() bool { return m&S_IFMT == S_IFCHR }
func (m Mode) IsBlkdev() bool { return m&S_IFMT == S_IFBLK }
func (m Mode) IsFIFO() bool { return m&S_IFMT == S_IFIFO }
func (m Mode) IsSocket() bool { return m&S_IFMT == S_IFSOCK }
func (m Mode) Readable() bool { return m&S_IRUGO != 0 }
func (m Mode) Writable() bool { return m&S_IWUGO != 0 }
func (m Mode) Executable() bool { return m&S_IXUGO != 0 }

// deviceMode builds the permission bits of a byte device from which
// directions it supports.
func deviceMode(canRead, canWrite bool) Mode {
	var mode Mode
	if canRead {
		mode |= S_IRUGO | S_IXUGO
	}
	if canWrite {
		mode |= S_IWUGO
	}
	return mode
}

var modeStrings = map[string]int{
	"r":  O_RDONLY,
	"r+": O_RDWR,
	"w":  O_TRUNC | O_CREAT | O_WRONLY,
	"w+": O_TRUNC | O_CREAT | O_RDWR,
	"a":  O_APPEND | O_CREAT | O_WRONLY,
	"a+": O_APPEND | O_CREAT | O_RDWR,
}

// ModeStringToFlags translates an fopen-style mode string to open flags.
func ModeStringToFlags(s string) (int, error) {
	flags, ok := modeStrings[s]
	if !ok {
		return 0, errnoError(EINVAL)
	}
	return flags, nil
}

// flagsToPermissionString maps open flags to the permission string checked by
// nodePermissions. Truncation needs write access even on a read-only open.
func flagsToPermissionString(flags int) string {
	var perms string
	switch flags & O_ACCMODE {
	case O_WRONLY:
		perms = "w"
	case O_RDWR:
		perms = "rw"
	default:
		perms = "r"
	}
	if flags&O_TRUNC != 0 {
		perms += "w"
	}
	return perms
}
