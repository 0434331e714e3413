package repository

import (
	"context"
	"fmt"

	"github.com/S1riyS/guestvfs/internal/models"
	"github.com/S1riyS/guestvfs/pkg/database/postgresql"
)

// SnapshotRepository stores whole mount snapshots: the filesystem row, one
// entry per path and the contents of regular files.
type SnapshotRepository interface {
	ListEntries(ctx context.Context, token string) ([]models.Entry, error)
	LoadEntry(ctx context.Context, token string, path string) (*models.Entry, []byte, error)
	SaveEntry(ctx context.Context, entry *models.Entry, contents []byte) error
	RemoveEntry(ctx context.Context, token string, path string) error
	MarkSynced(ctx context.Context, token string) error
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type snapshotRepository struct {
	db          postgresql.Client
	filesystems FilesystemRepository
	entries     EntryRepository
	contents    ContentRepository
}

func NewSnapshotRepository(db postgresql.Client) SnapshotRepository {
	return &snapshotRepository{
		db:          db,
		filesystems: NewFilesystemRepository(db),
		entries:     NewEntryRepository(db),
		contents:    NewContentRepository(db),
	}
}

func (r *snapshotRepository) ListEntries(ctx context.Context, token string) ([]models.Entry, error) {
	return r.entries.List(ctx, token)
}

func (r *snapshotRepository) LoadEntry(ctx context.Context, token string, path string) (*models.Entry, []byte, error) {
	const op = "repository.snapshotRepository.LoadEntry"

	entry, err := r.entries.Get(ctx, token, path)
	if err != nil {
		return nil, nil, err
	}
	if entry == nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEntryNotFound)
	}

	data, err := r.contents.Get(ctx, token, path)
	if err != nil {
		return nil, nil, err
	}

	return entry, data, nil
}

func (r *snapshotRepository) SaveEntry(ctx context.Context, entry *models.Entry, contents []byte) error {
	if _, err := r.filesystems.GetOrCreate(ctx, entry.Token); err != nil {
		return err
	}

	if err := r.entries.Upsert(ctx, entry); err != nil {
		return err
	}

	if contents == nil {
		return r.contents.Delete(ctx, entry.Token, entry.Path)
	}
	return r.contents.Set(ctx, entry.Token, entry.Path, contents)
}

func (r *snapshotRepository) RemoveEntry(ctx context.Context, token string, path string) error {
	if err := r.contents.Delete(ctx, token, path); err != nil {
		return err
	}
	return r.entries.Delete(ctx, token, path)
}

func (r *snapshotRepository) MarkSynced(ctx context.Context, token string) error {
	if _, err := r.filesystems.GetOrCreate(ctx, token); err != nil {
		return err
	}
	return r.filesystems.MarkSynced(ctx, token)
}

func (r *snapshotRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgresql.WithTransaction(ctx, r.db, fn)
}
