// Package pgfs is an in-memory driver whose tree is reconciled with a
// Postgres snapshot on every SyncFS.
package pgfs

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/S1riyS/guestvfs/internal/models"
	"github.com/S1riyS/guestvfs/internal/vfs"
	"github.com/S1riyS/guestvfs/internal/vfs/memfs"
	"github.com/S1riyS/guestvfs/pkg/logging"
	"github.com/S1riyS/guestvfs/pkg/logging/slogdiscard"
	"github.com/S1riyS/guestvfs/pkg/logging/slogext"
)

// TokenOption names the mount option selecting the snapshot.
const TokenOption = "token"

const defaultSyncTimeout = 30 * time.Second

// Store persists snapshots keyed by token.
type Store interface {
	ListEntries(ctx context.Context, token string) ([]models.Entry, error)
	LoadEntry(ctx context.Context, token string, path string) (*models.Entry, []byte, error)
	SaveEntry(ctx context.Context, entry *models.Entry, contents []byte) error
	RemoveEntry(ctx context.Context, token string, path string) error
	MarkSynced(ctx context.Context, token string) error
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Driver struct {
	store   Store
	log     *slog.Logger
	timeout time.Duration
}

var (
	_ vfs.Driver = (*Driver)(nil)
	_ vfs.Syncer = (*Driver)(nil)
)

// New returns a driver backed by store. A nil logger discards, a zero timeout
// bounds each sync at 30s.
func New(store Store, log *slog.Logger, timeout time.Duration) *Driver {
	if log == nil {
		log = slogdiscard.NewDiscardLogger()
	}
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}
	return &Driver{store: store, log: log, timeout: timeout}
}

func (d *Driver) Mount(m *vfs.Mount) (*vfs.Node, error) {
	if m.Opts[TokenOption] == "" {
		return nil, vfs.NewError(vfs.EINVAL)
	}
	return memfs.Driver{}.Mount(m)
}

// SyncFS reconciles the mount with its snapshot on a new goroutine: populate
// copies the snapshot into the tree, otherwise the tree is saved. The file
// system must not be used by anyone else until done runs.
func (d *Driver) SyncFS(m *vfs.Mount, populate bool, done func(error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		ctx = logging.MakeContextWithLogger(ctx, d.log)

		done(d.sync(ctx, m, populate))
	}()
}

func (d *Driver) sync(ctx context.Context, m *vfs.Mount, populate bool) error {
	const op = "pgfs.Driver.sync"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	token := m.Opts[TokenOption]
	logger = logger.With(slog.String("token", token), slog.Bool("populate", populate))

	local, err := localSet(m)
	if err != nil {
		logger.Error("Failed to walk local tree", slogext.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	remote, err := d.remoteSet(ctx, token)
	if err != nil {
		logger.Error("Failed to list snapshot", slogext.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	src, dst := local, remote
	if populate {
		src, dst = remote, local
	}
	create, remove := reconcile(src, dst)
	if len(create)+len(remove) == 0 {
		logger.Debug("Snapshot up to date")
		return nil
	}

	if populate {
		err = d.populate(ctx, m, token, create, remove)
	} else {
		err = d.save(ctx, m, token, create, remove)
	}
	if err != nil {
		logger.Error("Sync failed", slogext.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("Synced", slog.Int("written", len(create)), slog.Int("removed", len(remove)))
	return nil
}

func (d *Driver) remoteSet(ctx context.Context, token string) (entrySet, error) {
	entries, err := d.store.ListEntries(ctx, token)
	if err != nil {
		return nil, err
	}
	set := make(entrySet, len(entries))
	for _, e := range entries {
		set[e.Path] = e.Mtime
	}
	return set, nil
}

// save writes the local changes to the store in one transaction.
func (d *Driver) save(ctx context.Context, m *vfs.Mount, token string, create, remove []string) error {
	return d.store.WithTransaction(ctx, func(ctx context.Context) error {
		for _, rel := range create {
			entry, contents, err := loadLocalEntry(m.FS(), m.Mountpoint, rel)
			if err != nil {
				return err
			}
			entry.Token = token
			if err := d.store.SaveEntry(ctx, entry, contents); err != nil {
				return err
			}
		}
		for _, rel := range remove {
			if err := d.store.RemoveEntry(ctx, token, rel); err != nil {
				return err
			}
		}
		return d.store.MarkSynced(ctx, token)
	})
}

// populate applies the snapshot to the tree.
func (d *Driver) populate(ctx context.Context, m *vfs.Mount, token string, create, remove []string) error {
	fs := m.FS()
	var dirs []*models.Entry
	for _, rel := range create {
		entry, contents, err := d.store.LoadEntry(ctx, token, rel)
		if err != nil {
			return err
		}
		if err := storeLocalEntry(fs, m.Mountpoint, entry, contents); err != nil {
			return err
		}
		if vfs.Mode(entry.Mode).IsDir() {
			dirs = append(dirs, entry)
		}
	}
	for _, rel := range remove {
		if err := removeLocalEntry(fs, m.Mountpoint, rel); err != nil {
			return err
		}
	}

	// creating and removing children bumped directory times
	for i := len(dirs) - 1; i >= 0; i-- {
		abs := path.Join(m.Mountpoint, dirs[i].Path)
		if err := fs.Utime(abs, dirs[i].Mtime, dirs[i].Mtime); err != nil {
			return err
		}
	}
	return nil
}
