package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/S1riyS/guestvfs/internal/models"
	"github.com/S1riyS/guestvfs/pkg/database/postgresql"
	"github.com/S1riyS/guestvfs/pkg/logging"
	"github.com/S1riyS/guestvfs/pkg/logging/slogext"
	"github.com/jackc/pgx/v5"
)

type FilesystemRepository interface {
	Create(ctx context.Context, token string) error
	Get(ctx context.Context, token string) (*models.Filesystem, error)
	GetOrCreate(ctx context.Context, token string) (*models.Filesystem, error)
	MarkSynced(ctx context.Context, token string) error
}

type filesystemRepository struct {
	db postgresql.Client
}

func NewFilesystemRepository(db postgresql.Client) FilesystemRepository {
	return &filesystemRepository{db: db}
}

func (r *filesystemRepository) Create(ctx context.Context, token string) error {
	const op = "repository.filesystemRepository.Create"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	query := `
		INSERT INTO filesystems (token)
		VALUES ($1)
		ON CONFLICT (token) DO NOTHING
	`

	db := postgresql.GetDBClient(ctx, r.db)
	_, err := db.Exec(ctx, query, token)
	if err != nil {
		logger.Error("Failed to create filesystem", slogext.Err(err), "token", token)
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *filesystemRepository) Get(ctx context.Context, token string) (*models.Filesystem, error) {
	const op = "repository.filesystemRepository.Get"

	query := `
		SELECT token, created_at, synced_at
		FROM filesystems
		WHERE token = $1
	`

	var fs models.Filesystem
	db := postgresql.GetDBClient(ctx, r.db)
	err := db.QueryRow(ctx, query, token).Scan(
		&fs.Token,
		&fs.CreatedAt,
		&fs.SyncedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &fs, nil
}

func (r *filesystemRepository) GetOrCreate(ctx context.Context, token string) (*models.Filesystem, error) {
	fs, err := r.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	if fs != nil {
		return fs, nil
	}

	if err := r.Create(ctx, token); err != nil {
		return nil, err
	}

	return r.Get(ctx, token)
}

func (r *filesystemRepository) MarkSynced(ctx context.Context, token string) error {
	const op = "repository.filesystemRepository.MarkSynced"

	query := `
		UPDATE filesystems
		SET synced_at = NOW()
		WHERE token = $1
	`

	db := postgresql.GetDBClient(ctx, r.db)
	_, err := db.Exec(ctx, query, token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
