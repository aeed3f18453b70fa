package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/matome/internal/cache"
	"github.com/hyperjump/matome/internal/models"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
<channel>
  <title>Daily Wire</title>
  <link>https://example.com</link>
  <item>
    <title>Fed raises interest rates</title>
    <link>https://example.com/fed</link>
    <guid>fed-1</guid>
    <description>&lt;p&gt;The &lt;b&gt;central bank&lt;/b&gt; moved.&lt;/p&gt;</description>
    <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
    <enclosure url="https://example.com/fed.jpg" type="image/jpeg" length="10"/>
  </item>
  <item>
    <title>Cup final goes to extra time</title>
    <link>https://example.com/cup</link>
    <pubDate>Tue, 03 Jan 2006 10:00:00 GMT</pubDate>
    <media:content url="https://example.com/cup.jpg" medium="image"/>
  </item>
  <item>
    <title>Undated note</title>
  </item>
</channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Desk</title>
  <entry>
    <title>Markets rally</title>
    <id>urn:atom:1</id>
    <link href="https://atom.example.com/rally"/>
    <updated>2006-01-04T08:00:00Z</updated>
    <content type="html">&lt;div&gt;Stocks   rose&lt;/div&gt;</content>
  </entry>
</feed>`

func newFeedServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if r.Header.Get("User-Agent") != "matome-test" {
			http.Error(w, "missing user agent", http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/rss":
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = w.Write([]byte(rssFixture))
		case "/atom":
			w.Header().Set("Content-Type", "application/atom+xml")
			_, _ = w.Write([]byte(atomFixture))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNormalize_RSS(t *testing.T) {
	parsed, err := gofeed.NewParser().ParseString(rssFixture)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	items := Normalize("https://example.com/rss", parsed)
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}

	first := items[0]
	if first.ID != "fed-1" {
		t.Errorf("ID = %q, want guid", first.ID)
	}
	if first.Summary != "The central bank moved." {
		t.Errorf("Summary = %q", first.Summary)
	}
	if first.PublishedAt != "2006-01-02T15:04:05Z" {
		t.Errorf("PublishedAt = %q", first.PublishedAt)
	}
	if first.Image != "https://example.com/fed.jpg" {
		t.Errorf("Image = %q", first.Image)
	}
	if first.Source != "Daily Wire" {
		t.Errorf("Source = %q", first.Source)
	}

	second := items[1]
	if second.ID != "https://example.com/cup" {
		t.Errorf("ID = %q, want link fallback", second.ID)
	}
	if second.Image != "https://example.com/cup.jpg" {
		t.Errorf("Image = %q, want media:content", second.Image)
	}

	third := items[2]
	if third.ID != "Daily Wire-2" {
		t.Errorf("ID = %q, want source-index fallback", third.ID)
	}
	if third.PublishedAt != "" {
		t.Errorf("PublishedAt = %q, want empty", third.PublishedAt)
	}
}

func TestNormalize_Atom(t *testing.T) {
	parsed, err := gofeed.NewParser().ParseString(atomFixture)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	items := Normalize("https://atom.example.com/feed", parsed)
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	it := items[0]
	if it.Link != "https://atom.example.com/rally" {
		t.Errorf("Link = %q", it.Link)
	}
	if it.Summary != "Stocks rose" {
		t.Errorf("Summary = %q, want content fallback", it.Summary)
	}
	if it.PublishedAt != "2006-01-04T08:00:00Z" {
		t.Errorf("PublishedAt = %q, want updated fallback", it.PublishedAt)
	}
}

func TestNormalize_NilFeed(t *testing.T) {
	if items := Normalize("u", nil); items == nil || len(items) != 0 {
		t.Errorf("Normalize(nil) = %v, want empty slice", items)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain   text\n here", "plain text here"},
		{"<p>Hello <i>world</i></p>", "Hello world"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFetcher_FetchCachesPerURL(t *testing.T) {
	var hits int32
	srv := newFeedServer(t, &hits)
	f := NewFetcher(WithUserAgent("matome-test"), WithTTL(time.Minute), WithLogger(zap.NewNop()))

	for i := 0; i < 3; i++ {
		items, err := f.Fetch(context.Background(), srv.URL+"/rss")
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if len(items) != 3 {
			t.Fatalf("len(items) = %d, want 3", len(items))
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestFetcher_ZeroTTLDisablesCache(t *testing.T) {
	var hits int32
	srv := newFeedServer(t, &hits)
	f := NewFetcher(WithUserAgent("matome-test"), WithTTL(0))
	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), srv.URL+"/atom"); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestFetcher_SharedCache(t *testing.T) {
	var hits int32
	srv := newFeedServer(t, &hits)
	shared := cache.NewTTLCache[[]*models.Item]()
	a := NewFetcher(WithUserAgent("matome-test"), WithCache(shared))
	b := NewFetcher(WithUserAgent("matome-test"), WithCache(shared))
	if _, err := a.Fetch(context.Background(), srv.URL+"/rss"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Fetch(context.Background(), srv.URL+"/rss"); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestFetcher_Non2xx(t *testing.T) {
	srv := newFeedServer(t, nil)
	f := NewFetcher(WithUserAgent("matome-test"))
	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	if err == nil {
		t.Fatal("expected error")
	}
	want := "fetch failed 404 for " + srv.URL + "/missing"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestFetcher_FetchAllPartialFailure(t *testing.T) {
	srv := newFeedServer(t, nil)
	f := NewFetcher(WithUserAgent("matome-test"))
	urls := []string{srv.URL + "/rss", srv.URL + "/missing", srv.URL + "/atom"}

	res := f.FetchAll(context.Background(), urls)
	if len(res.Items) != 4 {
		t.Fatalf("len(items) = %d, want 4", len(res.Items))
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], srv.URL+"/missing: ") {
		t.Fatalf("Errors = %v", res.Errors)
	}

	var titles []string
	for _, it := range res.Items {
		titles = append(titles, it.Title)
	}
	want := []string{"Markets rally", "Cup final goes to extra time", "Fed raises interest rates", "Undated note"}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("order = %v, want %v", titles, want)
		}
	}
}

func TestSortNewestFirst_StableForUndated(t *testing.T) {
	items := []*models.Item{
		{ID: "a"},
		{ID: "b", PublishedAt: "2024-01-01T00:00:00Z"},
		{ID: "c"},
		{ID: "d", PublishedAt: "2024-02-01T00:00:00Z"},
	}
	SortNewestFirst(items)
	got := ""
	for _, it := range items {
		got += it.ID
	}
	if got != "dbac" {
		t.Errorf("order = %s, want dbac", got)
	}
}

func TestReadList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.txt")
	content := "# news\nhttps://a.example/rss\n\n  https://b.example/atom  \nhttps://a.example/rss\n# https://c.example\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	urls, err := ReadList(path)
	if err != nil {
		t.Fatalf("ReadList: %v", err)
	}
	if len(urls) != 2 || urls[0] != "https://a.example/rss" || urls[1] != "https://b.example/atom" {
		t.Errorf("urls = %v", urls)
	}

	if _, err := ReadList(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMergeURLs(t *testing.T) {
	got := MergeURLs([]string{"a", "b"}, []string{"b", "", "c"})
	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("MergeURLs = %v", got)
	}
}
