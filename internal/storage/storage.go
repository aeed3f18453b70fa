// Package storage defines the persistence interface for fetched feed items.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/matome/internal/models"
)

// ErrNotFound is returned when an item does not exist.
var ErrNotFound = errors.New("item not found")

// Storage persists fetched items. Clusters are computed per request and never stored.
type Storage interface {
	// UpsertItems inserts items or replaces existing ones with the same ID.
	UpsertItems(ctx context.Context, items []*models.Item) error
	GetItem(ctx context.Context, id string) (*models.Item, error)
	// ListItems returns items newest first; undated items come last.
	ListItems(ctx context.Context, offset, limit int) ([]*models.Item, error)
	CountItems(ctx context.Context) (int64, error)
	// DeleteItemsBefore removes dated items published before t and returns how many were removed.
	DeleteItemsBefore(ctx context.Context, t time.Time) (int64, error)

	Close() error
}
