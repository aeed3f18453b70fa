// Package ingest fetches the configured feeds and stores their items.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/matome/internal/feed"
	"github.com/hyperjump/matome/internal/storage"
	"go.uber.org/zap"
)

// FeedFetcher fetches several feeds, reporting per-feed failures in the result.
type FeedFetcher interface {
	FetchAll(ctx context.Context, urls []string) *feed.Result
}

// Ingester fetches feeds and upserts their items into storage.
type Ingester struct {
	fetcher   FeedFetcher
	storage   storage.Storage // optional; nil skips persistence
	retention time.Duration
	logger    *zap.Logger // optional; when set, logs debug events

	mu   sync.RWMutex
	urls []string
	last time.Time
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithLogger sets a logger for debug output (run summary, failed feeds).
func WithLogger(l *zap.Logger) IngesterOption {
	return func(in *Ingester) { in.logger = l }
}

// WithStorage persists fetched items.
func WithStorage(s storage.Storage) IngesterOption {
	return func(in *Ingester) { in.storage = s }
}

// WithRetention deletes stored items published more than d ago after each run.
func WithRetention(d time.Duration) IngesterOption {
	return func(in *Ingester) { in.retention = d }
}

// NewIngester creates an ingester for the given feed URLs.
func NewIngester(fetcher FeedFetcher, urls []string, opts ...IngesterOption) *Ingester {
	in := &Ingester{fetcher: fetcher}
	in.SetURLs(urls)
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// SetURLs replaces the feed list used by subsequent runs.
func (in *Ingester) SetURLs(urls []string) {
	cp := append([]string(nil), urls...)
	in.mu.Lock()
	in.urls = cp
	in.mu.Unlock()
}

// URLs returns a copy of the current feed list.
func (in *Ingester) URLs() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return append([]string(nil), in.urls...)
}

// LastRun returns when Run last completed; zero if it never ran.
func (in *Ingester) LastRun() time.Time {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.last
}

// Run fetches all feeds and stores the items. Feed failures are reported in the result and
// do not fail the run; a storage failure does.
func (in *Ingester) Run(ctx context.Context) (*feed.Result, error) {
	urls := in.URLs()
	res := in.fetcher.FetchAll(ctx, urls)
	for _, it := range res.Items {
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
	}

	if in.storage != nil {
		if err := in.storage.UpsertItems(ctx, res.Items); err != nil {
			return nil, fmt.Errorf("failed to store items: %w", err)
		}
		if in.retention > 0 {
			n, err := in.storage.DeleteItemsBefore(ctx, time.Now().Add(-in.retention))
			if err != nil {
				return nil, fmt.Errorf("failed to apply retention: %w", err)
			}
			if n > 0 && in.logger != nil {
				in.logger.Debug("expired items removed", zap.Int64("count", n))
			}
		}
	}

	in.mu.Lock()
	in.last = time.Now()
	in.mu.Unlock()

	if in.logger != nil {
		in.logger.Debug("ingest complete",
			zap.Int("feeds", len(urls)),
			zap.Int("items", len(res.Items)),
			zap.Int("errors", len(res.Errors)))
	}
	return res, nil
}
