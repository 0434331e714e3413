package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/S1riyS/guestvfs/internal/models"
	"github.com/S1riyS/guestvfs/pkg/database/postgresql"
	"github.com/jackc/pgx/v5"
)

type EntryRepository interface {
	List(ctx context.Context, token string) ([]models.Entry, error)
	Get(ctx context.Context, token string, path string) (*models.Entry, error)
	Upsert(ctx context.Context, entry *models.Entry) error
	Delete(ctx context.Context, token string, path string) error
}

type entryRepository struct {
	db postgresql.Client
}

func NewEntryRepository(db postgresql.Client) EntryRepository {
	return &entryRepository{db: db}
}

func (r *entryRepository) List(ctx context.Context, token string) ([]models.Entry, error) {
	const op = "repository.entryRepository.List"

	query := `
		SELECT token, path, mode, mtime, link
		FROM entries
		WHERE token = $1
		ORDER BY path
	`

	db := postgresql.GetDBClient(ctx, r.db)
	rows, err := db.Query(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var entry models.Entry
		err := rows.Scan(&entry.Token, &entry.Path, &entry.Mode, &entry.Mtime, &entry.Link)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return entries, nil
}

func (r *entryRepository) Get(ctx context.Context, token string, path string) (*models.Entry, error) {
	const op = "repository.entryRepository.Get"

	query := `
		SELECT token, path, mode, mtime, link
		FROM entries
		WHERE token = $1 AND path = $2
	`

	var entry models.Entry
	db := postgresql.GetDBClient(ctx, r.db)
	err := db.QueryRow(ctx, query, token, path).Scan(
		&entry.Token,
		&entry.Path,
		&entry.Mode,
		&entry.Mtime,
		&entry.Link,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &entry, nil
}

func (r *entryRepository) Upsert(ctx context.Context, entry *models.Entry) error {
	const op = "repository.entryRepository.Upsert"

	query := `
		INSERT INTO entries (token, path, mode, mtime, link)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token, path)
		DO UPDATE SET mode = EXCLUDED.mode, mtime = EXCLUDED.mtime, link = EXCLUDED.link
	`

	db := postgresql.GetDBClient(ctx, r.db)
	_, err := db.Exec(ctx, query,
		entry.Token,
		entry.Path,
		entry.Mode,
		entry.Mtime,
		entry.Link,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *entryRepository) Delete(ctx context.Context, token string, path string) error {
	const op = "repository.entryRepository.Delete"

	query := `
		DELETE FROM entries
		WHERE token = $1 AND path = $2
	`

	db := postgresql.GetDBClient(ctx, r.db)
	_, err := db.Exec(ctx, query, token, path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
