// Package postgres provides the Postgres-backed primary bookmark store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perchlink/perch/internal/bookmarks"
)

// BookmarkStoreConfig controls the Postgres connection pool.
type BookmarkStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of pgxpool.Pool the store needs, so pgxmock can
// substitute the pool in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// BookmarkStore persists bookmark records in Postgres.
type BookmarkStore struct {
	pool querier
}

const selectColumns = `id, user_id, url, title, description, favicon, thumbnail, tags, created_at`

// NewBookmarkStore creates a Postgres-backed BookmarkStore using the provided config.
func NewBookmarkStore(ctx context.Context, cfg BookmarkStoreConfig) (*BookmarkStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &BookmarkStore{pool: pool}, nil
}

// NewBookmarkStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewBookmarkStoreWithPool(pool querier) (*BookmarkStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &BookmarkStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *BookmarkStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Insert writes one bookmark row.
func (s *BookmarkStore) Insert(ctx context.Context, rec bookmarks.BookmarkRecord) (bookmarks.BookmarkRecord, error) {
	if rec.ID == "" {
		return bookmarks.BookmarkRecord{}, fmt.Errorf("record id is required")
	}
	query := `
INSERT INTO bookmarks (
	id,
	user_id,
	url,
	title,
	description,
	favicon,
	thumbnail,
	tags,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`
	args := []any{
		rec.ID,
		rec.UserID,
		rec.URL,
		rec.Title,
		rec.Description,
		rec.Favicon,
		rec.Thumbnail,
		rec.Tags,
		rec.CreatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return bookmarks.BookmarkRecord{}, fmt.Errorf("insert bookmark: %w", err)
	}
	return rec, nil
}

// List returns the user's bookmarks, newest first.
func (s *BookmarkStore) List(ctx context.Context, userID string) ([]bookmarks.BookmarkRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM bookmarks WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	out := make([]bookmarks.BookmarkRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookmarks: %w", err)
	}
	return out, nil
}

// Delete removes one record scoped to its owner; deleting an absent id is not an error.
func (s *BookmarkStore) Delete(ctx context.Context, id, userID string) error {
	query := `DELETE FROM bookmarks WHERE id = $1 AND user_id = $2`
	if _, err := s.pool.Exec(ctx, query, id, userID); err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	return nil
}

// FindByURL returns the first record whose URL matches any of the variants,
// or bookmarks.ErrNotFound.
func (s *BookmarkStore) FindByURL(ctx context.Context, userID string, urls []string) (bookmarks.BookmarkRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM bookmarks WHERE user_id = $1 AND url = ANY($2) LIMIT 1`
	row := s.pool.QueryRow(ctx, query, userID, urls)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return bookmarks.BookmarkRecord{}, bookmarks.ErrNotFound
	}
	if err != nil {
		return bookmarks.BookmarkRecord{}, fmt.Errorf("find bookmark by url: %w", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (bookmarks.BookmarkRecord, error) {
	var rec bookmarks.BookmarkRecord
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.URL,
		&rec.Title,
		&rec.Description,
		&rec.Favicon,
		&rec.Thumbnail,
		&rec.Tags,
		&rec.CreatedAt,
	)
	if err != nil {
		return bookmarks.BookmarkRecord{}, err
	}
	return rec, nil
}
