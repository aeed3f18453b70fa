package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/matome/internal/embedding"
	"github.com/hyperjump/matome/internal/models"
	"go.uber.org/zap"
)

// Engine embeds feed items and groups them with a single greedy pass.
type Engine struct {
	embedder      embedding.Embedder
	maxChars      int
	concurrency   int
	maxTitleWords int
	centroid      CentroidStrategy
	logger        *zap.Logger // optional; when set, logs debug events
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for per-run debug output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMaxChars bounds the text embedded per item.
func WithMaxChars(n int) EngineOption {
	return func(e *Engine) { e.maxChars = n }
}

// WithConcurrency sets how many embedding calls may run at once. Results are always
// reassembled in item order before clustering.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) { e.concurrency = n }
}

// WithMaxTitleWords sets the number of keywords in each cluster title.
func WithMaxTitleWords(n int) EngineOption {
	return func(e *Engine) { e.maxTitleWords = n }
}

// WithCentroidStrategy selects how centroids are maintained.
func WithCentroidStrategy(s CentroidStrategy) EngineOption {
	return func(e *Engine) { e.centroid = s }
}

// NewEngine creates an engine that embeds with embedder.
func NewEngine(embedder embedding.Embedder, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder:      embedder,
		maxChars:      embedding.DefaultMaxChars,
		concurrency:   1,
		maxTitleWords: DefaultMaxTitleWords,
		centroid:      CentroidMean,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cluster embeds items in order and groups them. Clusters come back in creation order and
// each cluster's items in arrival order; every input item appears in exactly one cluster.
// Empty input returns an empty result without calling the embedder. Any embedding failure
// aborts the call with ErrEmbeddingUnavailable.
func (e *Engine) Cluster(ctx context.Context, items []*models.Item, threshold float64) ([]*models.ClusterResult, error) {
	if len(items) == 0 {
		return []*models.ClusterResult{}, nil
	}
	texts := make([]string, len(items))
	for i, it := range items {
		if it == nil {
			return nil, fmt.Errorf("item %d is nil", i)
		}
		texts[i] = embedding.ItemText(it.Title, it.Summary, e.maxChars)
	}

	vectors, err := embedding.EmbedOrdered(ctx, e.embedder, texts, e.concurrency)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}

	groups, err := Assign(vectors, threshold, e.centroid)
	if err != nil {
		return nil, err
	}
	return e.results(items, groups), nil
}

func (e *Engine) results(items []*models.Item, groups []*Group) []*models.ClusterResult {
	out := make([]*models.ClusterResult, len(groups))
	for i, g := range groups {
		members := make([]*models.Item, len(g.Members))
		titles := make([]string, len(g.Members))
		for j, idx := range g.Members {
			members[j] = items[idx]
			titles[j] = items[idx].Title
		}
		out[i] = &models.ClusterResult{
			Title: TitleFor(titles, e.maxTitleWords),
			Items: members,
		}
	}
	return out
}

// Run clusters items and wraps the result with a run ID and timing.
func (e *Engine) Run(ctx context.Context, items []*models.Item, threshold float64) (*models.ClusterResponse, error) {
	start := time.Now()
	runID := uuid.New().String()
	clusters, err := e.Cluster(ctx, items, threshold)
	if err != nil {
		if e.logger != nil {
			e.logger.Debug("cluster run failed", zap.String("run_id", runID), zap.Int("items", len(items)), zap.Error(err))
		}
		return nil, err
	}
	resp := &models.ClusterResponse{
		RunID:         runID,
		Threshold:     threshold,
		Clusters:      clusters,
		TotalItems:    len(items),
		TotalClusters: len(clusters),
		ElapsedMS:     time.Since(start).Milliseconds(),
	}
	if e.logger != nil {
		e.logger.Debug("cluster run finished",
			zap.String("run_id", runID),
			zap.Int("items", resp.TotalItems),
			zap.Int("clusters", resp.TotalClusters),
			zap.Float64("threshold", threshold),
			zap.Int64("elapsed_ms", resp.ElapsedMS),
		)
	}
	return resp, nil
}

// MaxTitleWords returns the configured title length.
func (e *Engine) MaxTitleWords() int {
	return e.maxTitleWords
}
