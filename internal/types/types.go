package types

import (
	"context"

	"github.com/xhad/braggingrights/internal/models"
)

// Core interfaces
type Completer interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// ModelPuller makes a model available on the language-model runtime.
// Pulling a model that is already present must be a no-op.
type ModelPuller interface {
	Pull(ctx context.Context, model string) error
}

type VectorStore interface {
	Add(ctx context.Context, docs []models.Document) error
	SimilaritySearch(ctx context.Context, query string, limit int) ([]models.Match, error)
	Close()
}
