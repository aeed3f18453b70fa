package cluster

import "errors"

var (
	// ErrEmbeddingUnavailable wraps an embedder failure. The whole clustering call is aborted.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrInconsistentEmbeddingSpace means vectors of different dimensions met in one pass,
	// which only happens when they come from different models.
	ErrInconsistentEmbeddingSpace = errors.New("inconsistent embedding space")
)
