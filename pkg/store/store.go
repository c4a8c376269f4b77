// Package store persists essay documents with their embeddings and answers
// nearest-neighbour queries over them.
package store

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/xhad/braggingrights/internal/types"
)

const (
	BackendPgvector = "pgvector"
	BackendMemory   = "memory"
)

// Open returns the vector store for backend.
func Open(ctx context.Context, backend string, config VectorStoreConfig, embedder embeddings.Embedder) (types.VectorStore, error) {
	switch backend {
	case BackendPgvector, "":
		vs, err := NewWithConfig(ctx, config, embedder)
		if err != nil {
			return nil, err
		}
		return vs, nil
	case BackendMemory:
		ms, err := NewMemory(embedder, config.SearchLimit)
		if err != nil {
			return nil, err
		}
		return ms, nil
	default:
		return nil, fmt.Errorf("unknown vector store backend: %s", backend)
	}
}
