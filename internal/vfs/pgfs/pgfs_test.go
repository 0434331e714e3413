package pgfs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S1riyS/guestvfs/internal/models"
	"github.com/S1riyS/guestvfs/internal/vfs"
	"github.com/S1riyS/guestvfs/internal/vfs/memfs"
)

const (
	testToken      = "token-1"
	testMountpoint = "/persist"
)

type storedEntry struct {
	entry    models.Entry
	contents []byte
}

// fakeStore keeps snapshots in memory. WithTransaction restores the previous
// state when fn fails.
type fakeStore struct {
	mu       sync.Mutex
	entries  map[string]map[string]storedEntry
	synced   map[string]int
	failPath string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: make(map[string]map[string]storedEntry),
		synced:  make(map[string]int),
	}
}

func (s *fakeStore) ListEntries(_ context.Context, token string) ([]models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Entry
	for _, e := range s.entries[token] {
		out = append(out, e.entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *fakeStore) LoadEntry(_ context.Context, token string, path string) (*models.Entry, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token][path]
	if !ok {
		return nil, nil, errors.New("entry not found")
	}
	entry := e.entry
	return &entry, append([]byte(nil), e.contents...), nil
}

func (s *fakeStore) SaveEntry(_ context.Context, entry *models.Entry, contents []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.Path == s.failPath {
		return errors.New("save failed")
	}
	if s.entries[entry.Token] == nil {
		s.entries[entry.Token] = make(map[string]storedEntry)
	}
	s.entries[entry.Token][entry.Path] = storedEntry{entry: *entry, contents: append([]byte(nil), contents...)}
	return nil
}

func (s *fakeStore) RemoveEntry(_ context.Context, token string, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries[token], path)
	return nil
}

func (s *fakeStore) MarkSynced(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced[token]++
	return nil
}

func (s *fakeStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	backup := make(map[string]map[string]storedEntry, len(s.entries))
	for token, entries := range s.entries {
		backup[token] = make(map[string]storedEntry, len(entries))
		for p, e := range entries {
			backup[token][p] = e
		}
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.entries = backup
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *fakeStore) put(path string, mode vfs.Mode, mtime time.Time, contents []byte, link string) {
	if s.entries[testToken] == nil {
		s.entries[testToken] = make(map[string]storedEntry)
	}
	s.entries[testToken][path] = storedEntry{
		entry:    models.Entry{Token: testToken, Path: path, Mode: uint32(mode), Mtime: mtime, Link: link},
		contents: contents,
	}
}

func (s *fakeStore) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for p := range s.entries[testToken] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func mountPersistent(t *testing.T, store Store) *vfs.FS {
	t.Helper()
	f, err := vfs.New(memfs.Driver{}, vfs.Options{})
	require.NoError(t, err)
	require.NoError(t, f.MkdirTree(testMountpoint, 0))
	_, err = f.Mount(New(store, nil, time.Second), vfs.MountOptions{TokenOption: testToken}, testMountpoint)
	require.NoError(t, err)
	return f
}

func syncAndWait(t *testing.T, f *vfs.FS, populate bool) error {
	t.Helper()
	result := make(chan error, 1)
	f.SyncFS(populate, func(err error) { result <- err })
	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("syncfs did not finish")
		return nil
	}
}

func TestMountRequiresToken(t *testing.T) {
	f, err := vfs.New(memfs.Driver{}, vfs.Options{})
	require.NoError(t, err)
	require.NoError(t, f.MkdirTree(testMountpoint, 0))

	_, err = f.Mount(New(newFakeStore(), nil, 0), nil, testMountpoint)
	assert.Equal(t, vfs.EINVAL, vfs.ErrnoOf(err))
}

func TestSaveWritesSnapshot(t *testing.T) {
	store := newFakeStore()
	f := mountPersistent(t, store)

	require.NoError(t, f.WriteFile("/persist/a.txt", []byte("alpha"), 0o600))
	require.NoError(t, f.MkdirTree("/persist/dir", 0o750))
	require.NoError(t, f.WriteFile("/persist/dir/b.txt", []byte("beta"), 0))
	_, err := f.Symlink("a.txt", "/persist/link")
	require.NoError(t, err)
	_, err = f.Mkdev("/persist/dev", 0, vfs.MakeDev(1, 3))
	require.NoError(t, err)
	// outside the mount
	require.NoError(t, f.WriteFile("/tmp/ignored", nil, 0))

	require.NoError(t, syncAndWait(t, f, false))

	assert.Equal(t, []string{"/a.txt", "/dir", "/dir/b.txt", "/link"}, store.paths())
	assert.Equal(t, 1, store.synced[testToken])

	entry, contents, err := store.LoadEntry(context.Background(), testToken, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(contents))
	assert.Equal(t, uint32(vfs.S_IFREG|0o600), entry.Mode)

	attr, err := f.Stat("/persist/a.txt")
	require.NoError(t, err)
	assert.True(t, attr.Mtime.Equal(entry.Mtime))

	entry, _, err = store.LoadEntry(context.Background(), testToken, "/dir")
	require.NoError(t, err)
	assert.Equal(t, uint32(vfs.S_IFDIR|0o750), entry.Mode)

	entry, _, err = store.LoadEntry(context.Background(), testToken, "/link")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", entry.Link)
	assert.True(t, vfs.Mode(entry.Mode).IsLink())
}

func TestSaveIsIncremental(t *testing.T) {
	store := newFakeStore()
	f := mountPersistent(t, store)

	require.NoError(t, f.WriteFile("/persist/keep", []byte("k"), 0))
	require.NoError(t, f.WriteFile("/persist/drop", []byte("d"), 0))
	require.NoError(t, syncAndWait(t, f, false))
	require.Equal(t, 1, store.synced[testToken])

	// nothing changed
	require.NoError(t, syncAndWait(t, f, false))
	assert.Equal(t, 1, store.synced[testToken])

	require.NoError(t, f.Unlink("/persist/drop"))
	require.NoError(t, syncAndWait(t, f, false))
	assert.Equal(t, []string{"/keep"}, store.paths())
	assert.Equal(t, 2, store.synced[testToken])
}

func TestSaveFailureRollsBack(t *testing.T) {
	store := newFakeStore()
	f := mountPersistent(t, store)

	require.NoError(t, f.WriteFile("/persist/a", []byte("a"), 0))
	require.NoError(t, f.WriteFile("/persist/b", []byte("b"), 0))
	store.failPath = "/b"

	err := syncAndWait(t, f, false)
	require.Error(t, err)
	assert.Empty(t, store.paths())
	assert.Zero(t, store.synced[testToken])
}

func TestPopulateRestoresSnapshot(t *testing.T) {
	store := newFakeStore()
	fileTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	dirTime := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	store.put("/docs", vfs.S_IFDIR|0o755, dirTime, nil, "")
	store.put("/docs/readme", vfs.S_IFREG|0o644, fileTime, []byte("read me"), "")
	store.put("/docs/latest", vfs.S_IFLNK|0o777, fileTime, nil, "readme")

	f := mountPersistent(t, store)
	require.NoError(t, f.WriteFile("/persist/stale", []byte("gone soon"), 0))

	require.NoError(t, syncAndWait(t, f, true))

	data, err := f.ReadFile("/persist/docs/readme")
	require.NoError(t, err)
	assert.Equal(t, "read me", string(data))

	attr, err := f.Stat("/persist/docs/readme")
	require.NoError(t, err)
	assert.Equal(t, vfs.Mode(0o644), attr.Mode.Perm())
	assert.True(t, fileTime.Equal(attr.Mtime))

	attr, err = f.Stat("/persist/docs")
	require.NoError(t, err)
	assert.True(t, dirTime.Equal(attr.Mtime), "directory time restored after its children")

	target, err := f.Readlink("/persist/docs/latest")
	require.NoError(t, err)
	assert.Equal(t, "readme", target)
	lattr, err := f.Lstat("/persist/docs/latest")
	require.NoError(t, err)
	assert.True(t, fileTime.Equal(lattr.Mtime))

	_, err = f.Stat("/persist/stale")
	assert.Equal(t, vfs.ENOENT, vfs.ErrnoOf(err))

	// populating does not write back
	assert.Zero(t, store.synced[testToken])
}

func TestPopulateReplacesChangedType(t *testing.T) {
	store := newFakeStore()
	store.put("/thing", vfs.S_IFDIR|0o755, time.Unix(100, 0), nil, "")

	f := mountPersistent(t, store)
	require.NoError(t, f.WriteFile("/persist/thing", []byte("file"), 0))

	require.NoError(t, syncAndWait(t, f, true))

	attr, err := f.Stat("/persist/thing")
	require.NoError(t, err)
	assert.True(t, attr.Mode.IsDir())
}

func TestSaveThenPopulateRoundTrip(t *testing.T) {
	store := newFakeStore()
	src := mountPersistent(t, store)
	require.NoError(t, src.MkdirTree("/persist/a/b", 0))
	require.NoError(t, src.WriteFile("/persist/a/b/data.bin", []byte{0, 1, 2, 3}, 0o640))
	require.NoError(t, syncAndWait(t, src, false))

	dst := mountPersistent(t, store)
	require.NoError(t, syncAndWait(t, dst, true))

	data, err := dst.ReadFile("/persist/a/b/data.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3}, data)

	for _, p := range []string{"/persist/a", "/persist/a/b", "/persist/a/b/data.bin"} {
		want, err := src.Stat(p)
		require.NoError(t, err)
		got, err := dst.Stat(p)
		require.NoError(t, err)
		assert.Equal(t, want.Mode, got.Mode, p)
		assert.True(t, want.Mtime.Equal(got.Mtime), p)
	}

	// the populated tree matches the snapshot, so there is nothing to save
	require.NoError(t, syncAndWait(t, dst, false))
	assert.Equal(t, 1, store.synced[testToken])
}

func TestReconcile(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := entrySet{
		"/a":     base,
		"/a/b":   base,
		"/c":     base.Add(time.Second),
		"/same":  base.Add(1500 * time.Nanosecond),
		"/fresh": base,
	}
	dst := entrySet{
		"/c":        base,
		"/same":     base.Add(1 * time.Microsecond),
		"/gone":     base,
		"/gone/sub": base,
	}

	create, remove := reconcile(src, dst)
	assert.Equal(t, []string{"/a", "/a/b", "/c", "/fresh"}, create)
	assert.Equal(t, []string{"/gone/sub", "/gone"}, remove)
}
