package models

import "time"

// Stat is the fixed-size attribute record returned by the stat syscalls.
type Stat struct {
	Dev     uint64 `json:"dev"`
	Ino     uint64 `json:"ino"`
	Mode    uint32 `json:"mode"`
	Nlink   uint32 `json:"nlink"`
	UID     uint32 `json:"uid"`
	GID     uint32 `json:"gid"`
	Rdev    uint32 `json:"rdev"`
	Size    int64  `json:"size"`
	Blksize int64  `json:"blksize"`
	Blocks  int64  `json:"blocks"`
	Atime   int64  `json:"atime"` // unix nanoseconds
	Mtime   int64  `json:"mtime"`
	Ctime   int64  `json:"ctime"`
}

type Dirent struct {
	Name string `json:"name"`
}

// Filesystem is a persisted snapshot registered under a token.
type Filesystem struct {
	Token     string
	CreatedAt time.Time
	SyncedAt  *time.Time
}

// Entry is one persisted path of a snapshot. Path is relative to the mount
// point and starts with "/".
type Entry struct {
	Token string
	Path  string
	Mode  uint32
	Mtime time.Time
	Link  string
}
