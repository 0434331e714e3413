package vfs_test

import (
	"bytes"
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S1riyS/guestvfs/internal/pkg/kerrors"
	"github.com/S1riyS/guestvfs/internal/vfs"
	"github.com/S1riyS/guestvfs/internal/vfs/memfs"
)

type terminal struct {
	stdin  *strings.Reader
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestFS(t *testing.T) *vfs.FS {
	t.Helper()
	f, _ := newTestFSWithTerminal(t, "", vfs.Options{})
	return f
}

func newTestFSWithTerminal(t *testing.T, input string, opts vfs.Options) (*vfs.FS, *terminal) {
	t.Helper()
	term := &terminal{
		stdin:  strings.NewReader(input),
		stdout: new(bytes.Buffer),
		stderr: new(bytes.Buffer),
	}
	opts.Stdin = term.stdin
	opts.Stdout = term.stdout
	opts.Stderr = term.stderr

	f, err := vfs.New(memfs.Driver{}, opts)
	require.NoError(t, err)
	return f, term
}

func requireErrno(t *testing.T, err error, code kerrors.Errno) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, vfs.ErrnoOf(err), "got %v", err)
}

func TestNewCreatesDefaultLayout(t *testing.T) {
	f := newTestFS(t)

	for _, dir := range []string{"/tmp", "/home", "/home/web_user", "/dev", "/dev/shm", "/dev/shm/tmp", "/proc/self/fd"} {
		attr, err := f.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, attr.Mode.IsDir(), dir)
	}
	for _, dev := range []string{"/dev/null", "/dev/tty", "/dev/tty1", "/dev/random", "/dev/urandom"} {
		attr, err := f.Stat(dev)
		require.NoError(t, err, dev)
		assert.True(t, attr.Mode.IsChrdev(), dev)
	}

	attr, err := f.Stat("/dev/null")
	require.NoError(t, err)
	assert.Equal(t, vfs.MakeDev(1, 3), attr.Rdev)

	assert.Equal(t, "/", f.Cwd())
	assert.Empty(t, f.Streams())
}

func TestNodeIDsAreStable(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.WriteFile("/tmp/a", []byte("x"), 0))

	first, err := f.LookupPath("/tmp/a", vfs.LookupOpts{})
	require.NoError(t, err)
	second, err := f.LookupPath("/tmp/../tmp/./a", vfs.LookupOpts{})
	require.NoError(t, err)

	assert.Same(t, first.Node, second.Node)
	assert.Equal(t, first.Node.ID, second.Node.ID)
	assert.Equal(t, "/tmp/a", second.Path)
}

func TestSymlinkCycle(t *testing.T) {
	f := newTestFS(t)
	_, err := f.Symlink("/tmp/b", "/tmp/a")
	require.NoError(t, err)
	_, err = f.Symlink("/tmp/a", "/tmp/b")
	require.NoError(t, err)

	_, err = f.Stat("/tmp/a")
	requireErrno(t, err, vfs.ELOOP)

	_, err = f.Open("/tmp/a", vfs.O_RDONLY, 0)
	requireErrno(t, err, vfs.ENOENT)

	// the links themselves are still there
	attr, err := f.Lstat("/tmp/a")
	require.NoError(t, err)
	assert.True(t, attr.Mode.IsLink())
}

func TestUnlinkAndRmdirRemove(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.WriteFile("/tmp/file", []byte("data"), 0))
	_, err := f.Mkdir("/tmp/dir", 0)
	require.NoError(t, err)

	require.NoError(t, f.Unlink("/tmp/file"))
	require.NoError(t, f.Rmdir("/tmp/dir"))

	_, err = f.Stat("/tmp/file")
	requireErrno(t, err, vfs.ENOENT)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	_, err = f.Stat("/tmp/dir")
	requireErrno(t, err, vfs.ENOENT)
}

func TestUnlinkAndRmdirTypeChecks(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.WriteFile("/tmp/file", nil, 0))
	require.NoError(t, f.MkdirTree("/tmp/dir/sub", 0))

	requireErrno(t, f.Unlink("/tmp/dir"), vfs.EISDIR)
	requireErrno(t, f.Rmdir("/tmp/file"), vfs.ENOTDIR)
	requireErrno(t, f.Rmdir("/tmp/dir"), vfs.ENOTEMPTY)
	requireErrno(t, f.Unlink("/tmp/missing"), vfs.ENOENT)

	require.NoError(t, f.Chdir("/tmp/dir/sub"))
	requireErrno(t, f.Rmdir("/tmp/dir/sub"), vfs.EBUSY)
}

func TestRenameIntoItselfFails(t *testing.T) {
	f := newTestFS(t)
	_, err := f.Mkdir("/x", 0)
	require.NoError(t, err)
	require.NoError(t, f.WriteFile("/x/keep", []byte("1"), 0))
	x, err := f.LookupPath("/x", vfs.LookupOpts{})
	require.NoError(t, err)
	keep, err := f.LookupPath("/x/keep", vfs.LookupOpts{})
	require.NoError(t, err)
	entries := f.NameTableLen()

	requireErrno(t, f.Rename("/x", "/x/y"), vfs.EINVAL)

	assert.Equal(t, entries, f.NameTableLen())
	assert.True(t, f.NameTableContains(x.Node))
	assert.True(t, f.NameTableContains(keep.Node))
	again, err := f.LookupPath("/x", vfs.LookupOpts{})
	require.NoError(t, err)
	assert.Same(t, x.Node, again.Node)
	assert.Equal(t, "x", x.Node.Name)

	names, err := f.Readdir("/x")
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "keep"}, names)
	_, err = f.Stat("/x/y")
	requireErrno(t, err, vfs.ENOENT)
}

func TestRenameOntoAncestorFails(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.MkdirTree("/x/y", 0))

	requireErrno(t, f.Rename("/x/y", "/x"), vfs.ENOTEMPTY)
}

func TestRenameMovesNode(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.WriteFile("/tmp/a", []byte("payload"), 0))
	_, err := f.Mkdir("/home/web_user/docs", 0)
	require.NoError(t, err)

	before, err := f.LookupPath("/tmp/a", vfs.LookupOpts{})
	require.NoError(t, err)

	require.NoError(t, f.Rename("/tmp/a", "/home/web_user/docs/b"))

	_, err = f.Stat("/tmp/a")
	requireErrno(t, err, vfs.ENOENT)

	after, err := f.LookupPath("/home/web_user/docs/b", vfs.LookupOpts{})
	require.NoError(t, err)
	assert.Equal(t, before.Node.ID, after.Node.ID)
	assert.Equal(t, "/home/web_user/docs/b", f.GetPath(after.Node))

	data, err := f.ReadFile("/home/web_user/docs/b")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestRenameReplacesFile(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.WriteFile("/tmp/a", []byte("new"), 0))
	require.NoError(t, f.WriteFile("/tmp/b", []byte("old"), 0))

	require.NoError(t, f.Rename("/tmp/a", "/tmp/b"))

	data, err := f.ReadFile("/tmp/b")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	names, err := f.Readdir("/tmp")
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "b"}, names)
}

func TestRenameSameNodeIsNoop(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.WriteFile("/tmp/a", nil, 0))

	require.NoError(t, f.Rename("/tmp/a", "/tmp/a"))
	_, err := f.Stat("/tmp/a")
	require.NoError(t, err)
}

func TestRenameDirOntoNonEmptyDir(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.MkdirTree("/tmp/src", 0))
	require.NoError(t, f.MkdirTree("/tmp/dst/child", 0))

	requireErrno(t, f.Rename("/tmp/src", "/tmp/dst"), vfs.ENOTEMPTY)

	// the source is still reachable after the failed driver call
	_, err := f.Stat("/tmp/src")
	require.NoError(t, err)
}

func TestWriteFileReadFileRoundTrip(t *testing.T) {
	f := newTestFS(t)
	content := bytes.Repeat([]byte("0123456789"), 1000)

	require.NoError(t, f.WriteFile("/tmp/big", content, 0o640))

	got, err := f.ReadFile("/tmp/big")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	attr, err := f.Stat("/tmp/big")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), attr.Size)
	assert.Equal(t, vfs.Mode(0o640), attr.Mode.Perm())
	assert.True(t, attr.Mode.IsFile())

	// a second write truncates
	require.NoError(t, f.WriteFile("/tmp/big", []byte("short"), 0))
	got, err = f.ReadFile("/tmp/big")
	require.NoError(t, err)
	assert.Equal(t, "short", string(got))
}

func TestMkdirReaddir(t *testing.T) {
	f := newTestFS(t)
	_, err := f.Mkdir("/home/web_user/project", 0)
	require.NoError(t, err)
	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, f.WriteFile("/home/web_user/project/"+name, nil, 0))
	}

	names, err := f.Readdir("/home/web_user/project")
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "a", "b", "c"}, names)

	_, err = f.Mkdir("/home/web_user/project", 0)
	requireErrno(t, err, vfs.EEXIST)
	assert.True(t, errors.Is(err, fs.ErrExist))

	_, err = f.Mkdir("/nope/deeper", 0)
	requireErrno(t, err, vfs.ENOENT)

	_, err = f.Mkdir("/tmp/..", 0)
	requireErrno(t, err, vfs.EINVAL)
}

func TestMkdirTree(t *testing.T) {
	f := newTestFS(t)

	require.NoError(t, f.MkdirTree("/a/b/c", 0))
	require.NoError(t, f.MkdirTree("/a/b/c/d", 0))

	attr, err := f.Stat("/a/b/c/d")
	require.NoError(t, err)
	assert.True(t, attr.Mode.IsDir())

	require.NoError(t, f.WriteFile("/a/file", nil, 0))
	requireErrno(t, f.MkdirTree("/a/file/x", 0), vfs.ENOTDIR)
}

func TestSymlinkReadlinkStatLstat(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.WriteFile("/tmp/target", []byte("hello"), 0))

	_, err := f.Symlink("target", "/tmp/link")
	require.NoError(t, err)

	target, err := f.Readlink("/tmp/link")
	require.NoError(t, err)
	assert.Equal(t, "target", target)

	attr, err := f.Stat("/tmp/link")
	require.NoError(t, err)
	assert.True(t, attr.Mode.IsFile())
	assert.Equal(t, int64(5), attr.Size)

	lattr, err := f.Lstat("/tmp/link")
	require.NoError(t, err)
	assert.True(t, lattr.Mode.IsLink())
	assert.Equal(t, int64(len("target")), lattr.Size)
	assert.NotEqual(t, attr.Ino, lattr.Ino)

	data, err := f.ReadFile("/tmp/link")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = f.Readlink("/tmp/target")
	requireErrno(t, err, vfs.EINVAL)

	_, err = f.Symlink("", "/tmp/empty")
	requireErrno(t, err, vfs.ENOENT)
}

func TestSymlinkNestingDepth(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.MkdirTree("/tmp/real/d/d/d/d/d/d/d/d/d", 0))
	_, err := f.Symlink("/tmp/real", "/tmp/l0")
	require.NoError(t, err)
	// each link resolves through the previous one as an intermediate segment,
	// so resolving /tmp/lN nests N+1 lookups
	for k := 1; k <= 8; k++ {
		_, err := f.Symlink("/tmp/l"+strconv.Itoa(k-1)+"/d", "/tmp/l"+strconv.Itoa(k))
		require.NoError(t, err)
	}

	attr, err := f.Stat("/tmp/l7")
	require.NoError(t, err)
	want, err := f.Stat("/tmp/real/d/d/d/d/d/d/d")
	require.NoError(t, err)
	assert.Equal(t, want.Ino, attr.Ino)

	_, err = f.Stat("/tmp/l7/d")
	require.NoError(t, err)

	_, err = f.Stat("/tmp/l8")
	requireErrno(t, err, vfs.ELOOP)
	_, err = f.Stat("/tmp/l8/d")
	requireErrno(t, err, vfs.ELOOP)

	attr, err = f.Lstat("/tmp/l8")
	require.NoError(t, err)
	assert.True(t, attr.Mode.IsLink())
}

func TestSymlinkToDirectoryIsTraversed(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.MkdirTree("/data/inner", 0))
	require.NoError(t, f.WriteFile("/data/inner/file", []byte("z"), 0))
	_, err := f.Symlink("/data/inner", "/tmp/shortcut")
	require.NoError(t, err)

	res, err := f.LookupPath("/tmp/shortcut/file", vfs.LookupOpts{})
	require.NoError(t, err)
	assert.Equal(t, "/data/inner/file", res.Path)

	parent, err := f.LookupPath("/tmp/shortcut/file", vfs.LookupOpts{Parent: true})
	require.NoError(t, err)
	assert.True(t, parent.Node.Mode.IsDir())
	assert.Equal(t, "/data/inner", parent.Path)
}

func TestChdirAndRelativePaths(t *testing.T) {
	f := newTestFS(t)

	require.NoError(t, f.Chdir("/home/web_user"))
	assert.Equal(t, "/home/web_user", f.Cwd())

	require.NoError(t, f.WriteFile("notes.txt", []byte("n"), 0))
	_, err := f.Stat("/home/web_user/notes.txt")
	require.NoError(t, err)

	requireErrno(t, f.Chdir("notes.txt"), vfs.ENOTDIR)
	requireErrno(t, f.Chdir("/missing"), vfs.ENOENT)

	require.NoError(t, f.Chdir(".."))
	assert.Equal(t, "/home", f.Cwd())
}

func TestChmodChownUtime(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.WriteFile("/tmp/f", nil, 0))
	_, err := f.Symlink("/tmp/f", "/tmp/l")
	require.NoError(t, err)

	require.NoError(t, f.Chmod("/tmp/l", 0o600))
	attr, err := f.Stat("/tmp/f")
	require.NoError(t, err)
	assert.Equal(t, vfs.Mode(0o600), attr.Mode.Perm())
	assert.True(t, attr.Mode.IsFile())

	require.NoError(t, f.Chown("/tmp/f", 1000, 100))
	attr, err = f.Stat("/tmp/f")
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), attr.UID)
	assert.Equal(t, uint32(100), attr.GID)

	when := attr.Mtime.Add(-48 * time.Hour)
	require.NoError(t, f.Utime("/tmp/f", when, when))
	attr, err = f.Stat("/tmp/f")
	require.NoError(t, err)
	assert.True(t, when.Equal(attr.Mtime))
	assert.True(t, when.Equal(attr.Atime))
}

func TestLinkAndDescriptorVariants(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.WriteFile("/tmp/f", nil, 0o644))
	_, err := f.Symlink("/tmp/f", "/tmp/l")
	require.NoError(t, err)

	require.NoError(t, f.Lchmod("/tmp/l", 0o700))
	require.NoError(t, f.Lchown("/tmp/l", 7, 8))
	link, err := f.Lstat("/tmp/l")
	require.NoError(t, err)
	assert.Equal(t, vfs.Mode(0o700), link.Mode.Perm())
	assert.Equal(t, uint32(7), link.UID)
	target, err := f.Stat("/tmp/f")
	require.NoError(t, err)
	assert.Equal(t, vfs.Mode(0o644), target.Mode.Perm())
	assert.Zero(t, target.UID)

	s, err := f.Open("/tmp/f", vfs.O_RDONLY, 0)
	require.NoError(t, err)
	require.NoError(t, f.Fchmod(s.FD(), 0o400))
	require.NoError(t, f.Fchown(s.FD(), 1, 2))
	target, err = f.Fstat(s.FD())
	require.NoError(t, err)
	assert.Equal(t, vfs.Mode(0o400), target.Mode.Perm())
	assert.Equal(t, uint32(2), target.GID)

	require.NoError(t, f.Close(s))
	requireErrno(t, f.Fchmod(s.FD(), 0), vfs.EBADF)
	requireErrno(t, f.Fchown(99, 0, 0), vfs.EBADF)
}

func TestLookupNode(t *testing.T) {
	f := newTestFS(t)

	n, err := f.LookupNode(f.Root(), "tmp")
	require.NoError(t, err)
	assert.Equal(t, "tmp", n.Name)
	assert.True(t, n.Mode.IsDir())
	assert.Equal(t, "/tmp", f.GetPath(n))

	_, err = f.LookupNode(n, "missing")
	requireErrno(t, err, vfs.ENOENT)
}

func TestTruncate(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.WriteFile("/tmp/f", []byte("abcdef"), 0))

	require.NoError(t, f.Truncate("/tmp/f", 3))
	data, err := f.ReadFile("/tmp/f")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	require.NoError(t, f.Truncate("/tmp/f", 5))
	data, err = f.ReadFile("/tmp/f")
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b', 'c', 0, 0}, data)

	requireErrno(t, f.Truncate("/tmp/f", -1), vfs.EINVAL)
	requireErrno(t, f.Truncate("/tmp", 0), vfs.EISDIR)
	requireErrno(t, f.Truncate("/dev/null", 0), vfs.EINVAL)
}

func TestFtruncateNeedsWritableStream(t *testing.T) {
	f := newTestFS(t)
	require.NoError(t, f.WriteFile("/tmp/f", []byte("abcdef"), 0))

	s, err := f.Open("/tmp/f", vfs.O_RDONLY, 0)
	require.NoError(t, err)
	requireErrno(t, f.Ftruncate(s.FD(), 1), vfs.EINVAL)

	w, err := f.Open("/tmp/f", vfs.O_RDWR, 0)
	require.NoError(t, err)
	require.NoError(t, f.Ftruncate(w.FD(), 1))

	attr, err := f.Fstat(w.FD())
	require.NoError(t, err)
	assert.Equal(t, int64(1), attr.Size)
}

func TestPermissionsIgnoredByDefault(t *testing.T) {
	f := newTestFS(t)
	assert.True(t, f.IgnorePermissions())

	require.NoError(t, f.WriteFile("/tmp/f", []byte("x"), 0))
	require.NoError(t, f.Chmod("/tmp/f", 0))

	data, err := f.ReadFile("/tmp/f")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestPermissionsEnforced(t *testing.T) {
	f, _ := newTestFSWithTerminal(t, "", vfs.Options{EnforcePermissions: true})
	assert.False(t, f.IgnorePermissions())

	require.NoError(t, f.WriteFile("/tmp/f", []byte("x"), 0))
	require.NoError(t, f.Chmod("/tmp/f", 0o222))

	_, err := f.Open("/tmp/f", vfs.O_RDONLY, 0)
	requireErrno(t, err, vfs.EACCES)
	assert.True(t, errors.Is(err, fs.ErrPermission))

	s, err := f.Open("/tmp/f", vfs.O_WRONLY, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close(s))

	_, err = f.Mkdir("/tmp/locked", 0o555)
	require.NoError(t, err)
	_, err = f.Create("/tmp/locked/f", 0)
	requireErrno(t, err, vfs.EACCES)

	_, err = f.Mkdir("/tmp/nolookup", 0o666)
	require.NoError(t, err)
	_, err = f.Stat("/tmp/nolookup/anything")
	requireErrno(t, err, vfs.EACCES)

	f.SetIgnorePermissions(true)
	_, err = f.Create("/tmp/locked/f", 0)
	require.NoError(t, err)
}

func TestOpenDirectoryChecksRunRegardlessOfPermissions(t *testing.T) {
	f := newTestFS(t)

	_, err := f.Open("/tmp", vfs.O_WRONLY, 0)
	requireErrno(t, err, vfs.EISDIR)

	_, err = f.Open("/tmp", vfs.O_RDONLY|vfs.O_TRUNC, 0)
	requireErrno(t, err, vfs.EISDIR)

	_, err = f.Create("/tmp", 0)
	requireErrno(t, err, vfs.EEXIST)
}

func TestErrnoErrorMatchesSentinels(t *testing.T) {
	err := vfs.NewError(vfs.EBADF)

	assert.True(t, errors.Is(err, fs.ErrClosed))
	assert.True(t, errors.Is(err, vfs.NewError(vfs.EBADF)))
	assert.False(t, errors.Is(err, vfs.NewError(vfs.EINVAL)))
	assert.True(t, vfs.IsErrno(err, vfs.EBADF))

	assert.Equal(t, vfs.EIO, vfs.ErrnoOf(errors.New("boom")))
	assert.Equal(t, kerrors.ESUCCESS, vfs.ErrnoOf(nil))
	assert.Equal(t, "vfs: bad file descriptor", err.Error())
}
