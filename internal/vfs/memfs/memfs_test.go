package memfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S1riyS/guestvfs/internal/vfs"
)

func newFS(t *testing.T) *vfs.FS {
	t.Helper()
	f, err := vfs.New(Driver{}, vfs.Options{})
	require.NoError(t, err)
	return f
}

func TestResize(t *testing.T) {
	nd := &nodeData{}

	resize(nd, 10)
	assert.Len(t, nd.data, 10)
	assert.Equal(t, 256, cap(nd.data))

	copy(nd.data, "0123456789")
	resize(nd, 4)
	assert.Equal(t, "0123", string(nd.data))

	// regrowing inside capacity must not resurrect old bytes
	resize(nd, 8)
	assert.Equal(t, []byte{'0', '1', '2', '3', 0, 0, 0, 0}, nd.data)

	resize(nd, 300)
	assert.Len(t, nd.data, 300)
	assert.Equal(t, 512, cap(nd.data))
	assert.Equal(t, "0123", string(nd.data[:4]))
}

func TestResizeGrowthPastThreshold(t *testing.T) {
	nd := &nodeData{data: make([]byte, growthThreshold)}

	resize(nd, growthThreshold+1)
	assert.Equal(t, growthThreshold+growthThreshold/8, cap(nd.data))
}

func TestGetattrSizes(t *testing.T) {
	f := newFS(t)
	require.NoError(t, f.WriteFile("/tmp/f", make([]byte, 5000), 0))
	_, err := f.Symlink("/tmp/f", "/tmp/l")
	require.NoError(t, err)

	attr, err := f.Stat("/tmp/f")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), attr.Size)
	assert.Equal(t, int64(2), attr.Blocks)
	assert.Equal(t, int64(blockSize), attr.Blksize)
	assert.Equal(t, uint32(1), attr.Nlink)

	attr, err = f.Stat("/tmp")
	require.NoError(t, err)
	assert.Equal(t, int64(blockSize), attr.Size)

	attr, err = f.Lstat("/tmp/l")
	require.NoError(t, err)
	assert.Equal(t, int64(len("/tmp/f")), attr.Size)

	attr, err = f.Stat("/dev/null")
	require.NoError(t, err)
	assert.Equal(t, vfs.MakeDev(1, 3), attr.Rdev)
	assert.NotEqual(t, uint64(1), attr.Dev)
}

func TestDirectoryTimesFollowChildren(t *testing.T) {
	f := newFS(t)
	_, err := f.Mkdir("/tmp/d", 0)
	require.NoError(t, err)

	past := time.Unix(1_000_000, 0)
	require.NoError(t, f.Utime("/tmp/d", past, past))

	require.NoError(t, f.WriteFile("/tmp/d/child", nil, 0))
	attr, err := f.Stat("/tmp/d")
	require.NoError(t, err)
	assert.True(t, attr.Mtime.After(past))

	require.NoError(t, f.Utime("/tmp/d", past, past))
	require.NoError(t, f.Unlink("/tmp/d/child"))
	attr, err = f.Stat("/tmp/d")
	require.NoError(t, err)
	assert.True(t, attr.Mtime.After(past))
}

func TestWriteUpdatesMtime(t *testing.T) {
	f := newFS(t)
	require.NoError(t, f.WriteFile("/tmp/f", []byte("a"), 0))
	past := time.Unix(1_000_000, 0)
	require.NoError(t, f.Utime("/tmp/f", past, past))

	s, err := f.Open("/tmp/f", vfs.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write(s, []byte("b"), 0, 1)
	require.NoError(t, err)

	attr, err := f.Stat("/tmp/f")
	require.NoError(t, err)
	assert.True(t, attr.Mtime.After(past))
	assert.True(t, attr.Atime.Equal(past))
}

func TestUnsupportedNodeTypes(t *testing.T) {
	f := newFS(t)

	_, err := f.Mknod("/tmp/fifo", vfs.S_IFIFO|0o644, 0)
	assert.Equal(t, vfs.EPERM, vfs.ErrnoOf(err))

	_, err = f.Mknod("/tmp/blk", vfs.S_IFBLK|0o644, vfs.MakeDev(8, 0))
	assert.Equal(t, vfs.EPERM, vfs.ErrnoOf(err))
}

func TestReaddirIsSorted(t *testing.T) {
	f := newFS(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := f.Mkdir("/tmp/"+name, 0)
		require.NoError(t, err)
	}

	names, err := f.Readdir("/tmp")
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "alpha", "mid", "zeta"}, names)
}

func TestRenameWithinDirectoryKeepsContents(t *testing.T) {
	f := newFS(t)
	require.NoError(t, f.MkdirTree("/tmp/a/inner", 0))
	require.NoError(t, f.WriteFile("/tmp/a/inner/f", []byte("deep"), 0))

	require.NoError(t, f.Rename("/tmp/a", "/tmp/b"))

	data, err := f.ReadFile("/tmp/b/inner/f")
	require.NoError(t, err)
	assert.Equal(t, "deep", string(data))

	// an empty destination directory is replaced
	_, err = f.Mkdir("/tmp/empty", 0)
	require.NoError(t, err)
	require.NoError(t, f.Rename("/tmp/b", "/tmp/empty"))
	data, err = f.ReadFile("/tmp/empty/inner/f")
	require.NoError(t, err)
	assert.Equal(t, "deep", string(data))
}
