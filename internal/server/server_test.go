package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/matome/internal/cluster"
	"github.com/hyperjump/matome/internal/config"
	"github.com/hyperjump/matome/internal/embedding"
	"github.com/hyperjump/matome/internal/feed"
	"github.com/hyperjump/matome/internal/ingest"
	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/storage"
	"go.uber.org/zap"
)

const testRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Wire</title>
<item><title>Fed raises interest rates</title><guid>a</guid><pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate></item>
<item><title>Fed raises interest rates</title><guid>b</guid><pubDate>Mon, 02 Jan 2006 16:04:05 GMT</pubDate></item>
<item><title>Cup final goes to extra time</title><guid>c</guid><pubDate>Mon, 02 Jan 2006 17:04:05 GMT</pubDate></item>
</channel></rss>`

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider down")
}

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}

func (failingEmbedder) Dimensions() int { return 4 }

func (failingEmbedder) Close() error { return nil }

type testEnv struct {
	srv     *Server
	store   *storage.SQLiteStorage
	feedURL string
}

func newTestEnv(t *testing.T, embedder embedding.Embedder, withFeeds bool) *testEnv {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "items.db")
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	engine := cluster.NewEngine(embedder, cluster.WithLogger(zap.NewNop()))
	env := &testEnv{store: store}

	var in *ingest.Ingester
	if withFeeds {
		feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/rss" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(testRSS))
		}))
		t.Cleanup(feedSrv.Close)
		env.feedURL = feedSrv.URL
		in = ingest.NewIngester(feed.NewFetcher(), []string{feedSrv.URL + "/rss", feedSrv.URL + "/gone"},
			ingest.WithStorage(store))
	}
	env.srv = NewServer(engine, in, store, cfg, zap.NewNop())
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *models.ClusterResponse {
	t.Helper()
	var resp models.ClusterResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &resp
}

func TestHandleCluster(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(256), false)
	body := map[string]interface{}{
		"items": []map[string]string{
			{"id": "1", "title": "Fed raises interest rates"},
			{"id": "2", "title": "Cup final goes to extra time"},
			{"id": "3", "title": "Fed raises interest rates"},
		},
	}
	rec := env.do(t, http.MethodPost, "/api/v1/cluster", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.TotalItems != 3 || resp.TotalClusters != 2 {
		t.Fatalf("totals = %d items, %d clusters", resp.TotalItems, resp.TotalClusters)
	}
	if resp.Threshold != models.DefaultThreshold {
		t.Errorf("threshold = %v, want default", resp.Threshold)
	}
	if resp.RunID == "" {
		t.Error("run_id should be set")
	}
	first := resp.Clusters[0]
	if len(first.Items) != 2 || first.Items[0].ID != "1" || first.Items[1].ID != "3" {
		t.Errorf("first cluster items = %+v", first.Items)
	}
	if first.Title != "Fed raises interest rates" {
		t.Errorf("first title = %q", first.Title)
	}
}

func TestHandleCluster_ThresholdAboveOneGivesSingletons(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(64), false)
	body := `{"threshold": 1.5, "items": [{"id":"1","title":"same"},{"id":"2","title":"same"}]}`
	rec := env.do(t, http.MethodPost, "/api/v1/cluster", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.TotalClusters != 2 {
		t.Errorf("clusters = %d, want 2", resp.TotalClusters)
	}
}

func TestHandleCluster_NonStringTitles(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(64), false)
	body := `{"items": [{"id":"1","title":2024},{"id":"2","title":null},{"id":"3","title":"Budget 2024 passes"}]}`
	rec := env.do(t, http.MethodPost, "/api/v1/cluster", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.TotalItems != 3 {
		t.Fatalf("items = %d, want 3", resp.TotalItems)
	}
	if got := resp.Clusters[0].Items[0].Title; got != "2024" {
		t.Errorf("first title = %q, want \"2024\"", got)
	}
}

func TestHandleCluster_Empty(t *testing.T) {
	env := newTestEnv(t, failingEmbedder{}, false)
	rec := env.do(t, http.MethodPost, "/api/v1/cluster", `{"items": []}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"clusters":[]`) {
		t.Errorf("body = %s, want empty clusters array", rec.Body.String())
	}
}

func TestHandleCluster_Errors(t *testing.T) {
	tests := []struct {
		name     string
		embedder embedding.Embedder
		body     string
		want     int
	}{
		{"invalid json", embedding.NewMockEmbedder(8), `{`, http.StatusBadRequest},
		{"null item", embedding.NewMockEmbedder(8), `{"items":[null]}`, http.StatusBadRequest},
		{"embedder down", failingEmbedder{}, `{"items":[{"id":"1","title":"x"}]}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.embedder, false)
			rec := env.do(t, http.MethodPost, "/api/v1/cluster", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHandleLiveClusters(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(256), true)
	rec := env.do(t, http.MethodGet, "/api/v1/clusters?threshold=0.9", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.TotalItems != 3 || resp.TotalClusters != 2 {
		t.Errorf("totals = %d items, %d clusters", resp.TotalItems, resp.TotalClusters)
	}
	if resp.Threshold != 0.9 {
		t.Errorf("threshold = %v", resp.Threshold)
	}
	// newest first: the cup story leads
	if resp.Clusters[0].Items[0].ID != "c" {
		t.Errorf("first item = %s, want c", resp.Clusters[0].Items[0].ID)
	}
	if len(resp.Errors) != 1 || !strings.HasPrefix(resp.Errors[0], env.feedURL+"/gone: ") {
		t.Errorf("errors = %v", resp.Errors)
	}

	n, err := env.store.CountItems(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("stored items = %d, want 3", n)
	}
}

func TestHandleLiveClusters_BadThreshold(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(8), true)
	for _, raw := range []string{"abc", "NaN", "Inf"} {
		rec := env.do(t, http.MethodGet, "/api/v1/clusters?threshold="+raw, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("threshold=%s: status = %d, want 400", raw, rec.Code)
		}
	}
}

func TestHandleLiveClusters_NoFeeds(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(8), false)
	rec := env.do(t, http.MethodGet, "/api/v1/clusters", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestHandleTitle(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(8), false)
	rec := env.do(t, http.MethodPost, "/api/v1/title", map[string]interface{}{
		"titles":    []string{"Apple apple banana", "banana cherry"},
		"max_words": 2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&out)
	if out["title"] != "Apple banana" {
		t.Errorf("title = %q", out["title"])
	}

	rec = env.do(t, http.MethodPost, "/api/v1/title", `{"titles": ["a to by"]}`)
	_ = json.NewDecoder(rec.Body).Decode(&out)
	if out["title"] != cluster.MixedTopicsTitle {
		t.Errorf("title = %q, want %q", out["title"], cluster.MixedTopicsTitle)
	}
}

func TestHandleItems(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(8), false)
	ctx := context.Background()
	if err := env.store.UpsertItems(ctx, []*models.Item{
		{ID: "x", Title: "X", PublishedAt: "2024-01-01T00:00:00Z"},
		{ID: "y", Title: "Y", PublishedAt: "2024-02-01T00:00:00Z"},
	}); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/items?limit=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list struct {
		Items []*models.Item `json:"items"`
		Total int64          `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 2 || len(list.Items) != 1 || list.Items[0].ID != "y" {
		t.Errorf("list = %+v", list)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/items?limit=-1", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/items/x", nil); rec.Code != http.StatusOK {
		t.Errorf("get x: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/items/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get missing: status = %d", rec.Code)
	}
}

func TestHandleFeedsAndRefresh(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(8), true)
	rec := env.do(t, http.MethodPost, "/api/v1/feeds/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/feeds", nil)
	var out struct {
		Feeds   []string `json:"feeds"`
		LastRun string   `json:"last_run"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Feeds) != 2 || out.LastRun == "" {
		t.Errorf("feeds = %+v", out)
	}
}

func TestHandleHealthAndStatus(t *testing.T) {
	env := newTestEnv(t, embedding.NewMockEmbedder(8), true)
	if rec := env.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["items"] != float64(0) || out["feeds"] != float64(2) {
		t.Errorf("status = %v", out)
	}
	cfg, _ := out["config"].(map[string]interface{})
	if cfg["embedding_provider"] != "mock" || cfg["threshold"] != models.DefaultThreshold {
		t.Errorf("config = %v", cfg)
	}
}
