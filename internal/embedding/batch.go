package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// EmbedOrdered embeds texts with at most concurrency calls in flight and returns the
// vectors in input order. concurrency <= 1 embeds one text at a time. The first failure
// cancels the remaining calls and is returned; no partial result is produced.
func EmbedOrdered(ctx context.Context, e Embedder, texts []string, concurrency int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if concurrency <= 1 {
		for i, text := range texts {
			v, err := e.Embed(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("embed item %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			v, err := e.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed item %d: %w", i, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
