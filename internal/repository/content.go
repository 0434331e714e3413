package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/S1riyS/guestvfs/pkg/database/postgresql"
	"github.com/jackc/pgx/v5"
)

type ContentRepository interface {
	Get(ctx context.Context, token string, path string) ([]byte, error)
	Set(ctx context.Context, token string, path string, data []byte) error
	Delete(ctx context.Context, token string, path string) error
}

type contentRepository struct {
	db postgresql.Client
}

func NewContentRepository(db postgresql.Client) ContentRepository {
	return &contentRepository{db: db}
}

func (r *contentRepository) Get(ctx context.Context, token string, path string) ([]byte, error) {
	const op = "repository.contentRepository.Get"

	query := `
		SELECT data
		FROM file_contents
		WHERE token = $1 AND path = $2
	`

	var data []byte
	db := postgresql.GetDBClient(ctx, r.db)
	err := db.QueryRow(ctx, query, token, path).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []byte{}, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return data, nil
}

func (r *contentRepository) Set(ctx context.Context, token string, path string, data []byte) error {
	const op = "repository.contentRepository.Set"

	query := `
		INSERT INTO file_contents (token, path, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (token, path)
		DO UPDATE SET data = EXCLUDED.data
	`

	db := postgresql.GetDBClient(ctx, r.db)
	_, err := db.Exec(ctx, query, token, path, data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *contentRepository) Delete(ctx context.Context, token string, path string) error {
	const op = "repository.contentRepository.Delete"

	query := `
		DELETE FROM file_contents
		WHERE token = $1 AND path = $2
	`

	db := postgresql.GetDBClient(ctx, r.db)
	_, err := db.Exec(ctx, query, token, path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
