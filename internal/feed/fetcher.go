// Package feed fetches RSS and Atom feeds and normalizes their entries into items.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/matome/internal/cache"
	"github.com/hyperjump/matome/internal/models"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

const (
	defaultTTL       = 180 * time.Second
	defaultUserAgent = "matome/1.0"
	defaultTimeout   = 20 * time.Second
)

// Fetcher downloads feeds and caches the normalized items per feed URL.
type Fetcher struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	cache     *cache.TTLCache[[]*models.Item]
	logger    *zap.Logger // optional; when set, logs debug events
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithLogger sets a logger for debug output (cache hits, fetched feeds).
func WithLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithTTL sets how long fetched items are served from the cache. Zero disables caching.
func WithTTL(ttl time.Duration) FetcherOption {
	return func(f *Fetcher) { f.ttl = ttl }
}

// WithCache shares a cache between fetchers.
func WithCache(c *cache.TTLCache[[]*models.Item]) FetcherOption {
	return func(f *Fetcher) { f.cache = c }
}

// NewFetcher creates a fetcher with a 180s cache TTL unless overridden.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		ttl:       defaultTTL,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cache == nil {
		f.cache = cache.NewTTLCache[[]*models.Item]()
	}
	return f
}

// Fetch returns the items of one feed, from the cache when a fresh entry exists.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]*models.Item, error) {
	if items, ok := f.cache.Get(url); ok {
		if f.logger != nil {
			f.logger.Debug("feed cache hit", zap.String("url", url), zap.Int("items", len(items)))
		}
		return items, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch failed %d for %s", resp.StatusCode, url)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	items := Normalize(url, parsed)
	f.cache.Set(url, items, f.ttl)
	if f.logger != nil {
		f.logger.Debug("feed fetched", zap.String("url", url), zap.Int("items", len(items)))
	}
	return items, nil
}

// Result is the outcome of fetching several feeds.
type Result struct {
	Items []*models.Item `json:"items"`
	// Errors has one "<url>: <reason>" entry per feed that failed.
	Errors []string `json:"errors,omitempty"`
}

// FetchAll fetches all urls concurrently. A failing feed is reported in Result.Errors and
// does not fail the others. Items are sorted newest first; undated items go last and
// otherwise keep feed order.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) *Result {
	type outcome struct {
		items []*models.Item
		err   error
	}
	outcomes := make([]outcome, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		i, url := i, url
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := f.Fetch(ctx, url)
			outcomes[i] = outcome{items: items, err: err}
		}()
	}
	wg.Wait()

	res := &Result{Items: []*models.Item{}}
	for i, o := range outcomes {
		if o.err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", urls[i], o.err))
			if f.logger != nil {
				f.logger.Warn("feed fetch failed", zap.String("url", urls[i]), zap.Error(o.err))
			}
			continue
		}
		res.Items = append(res.Items, o.items...)
	}
	SortNewestFirst(res.Items)
	return res
}

// SortNewestFirst orders items by PublishedAt descending. Items without a date sort last.
func SortNewestFirst(items []*models.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt > items[j].PublishedAt
	})
}
