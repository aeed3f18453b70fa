package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/matome/internal/models"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != MemoryPath {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == MemoryPath {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		link TEXT,
		summary TEXT,
		published_at TEXT NOT NULL DEFAULT '',
		source TEXT,
		image TEXT,
		fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_items_published_at ON items(published_at);
	CREATE INDEX IF NOT EXISTS idx_items_source ON items(source);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertItems inserts or replaces items in a single transaction.
func (s *SQLiteStorage) UpsertItems(ctx context.Context, items []*models.Item) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (id, title, link, summary, published_at, source, image, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   link = excluded.link,
		   summary = excluded.summary,
		   published_at = excluded.published_at,
		   source = excluded.source,
		   image = excluded.image,
		   fetched_at = excluded.fetched_at`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, it := range items {
		if it == nil || it.ID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			it.ID, it.Title, it.Link, it.Summary, it.PublishedAt, it.Source, it.Image, now,
		); err != nil {
			return fmt.Errorf("upsert item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

// GetItem returns an item by ID.
func (s *SQLiteStorage) GetItem(ctx context.Context, id string) (*models.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, link, summary, published_at, source, image
		 FROM items WHERE id = ?`, id,
	)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return it, nil
}

// ListItems returns items with offset and limit, newest first.
func (s *SQLiteStorage) ListItems(ctx context.Context, offset, limit int) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, link, summary, published_at, source, image
		 FROM items
		 ORDER BY published_at = '', published_at DESC, fetched_at DESC, id
		 LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*models.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CountItems returns the total number of stored items.
func (s *SQLiteStorage) CountItems(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	return count, err
}

// DeleteItemsBefore removes items published before t. Undated items are kept.
func (s *SQLiteStorage) DeleteItemsBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE published_at != '' AND published_at < ?`,
		t.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (*models.Item, error) {
	var it models.Item
	var link, summary, source, image sql.NullString
	if err := sc.Scan(&it.ID, &it.Title, &link, &summary, &it.PublishedAt, &source, &image); err != nil {
		return nil, err
	}
	it.Link = link.String
	it.Summary = summary.String
	it.Source = source.String
	it.Image = image.String
	return &it, nil
}
