package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/xhad/braggingrights/internal/models"
)

// MemoryStore is an in-process vector store backed by chromem-go. Distances
// are cosine distances.
type MemoryStore struct {
	collection  *chromem.Collection
	embedder    embeddings.Embedder
	searchLimit int
}

func NewMemory(embedder embeddings.Embedder, searchLimit int) (*MemoryStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if searchLimit <= 0 {
		searchLimit = 4
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection("essays", nil, func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &MemoryStore{
		collection:  collection,
		embedder:    embedder,
		searchLimit: searchLimit,
	}, nil
}

func (ms *MemoryStore) Add(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}

	contents := make([]string, len(docs))
	for i, doc := range docs {
		contents[i] = doc.Content
	}
	vectors, err := ms.embedder.EmbedDocuments(ctx, contents)
	if err != nil {
		return fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		chromemDocs[i] = chromem.Document{
			ID:        id,
			Metadata:  doc.Metadata,
			Embedding: vectors[i],
			Content:   doc.Content,
		}
	}

	if err := ms.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("failed to insert documents: %w", err)
	}
	return nil
}

func (ms *MemoryStore) SimilaritySearch(ctx context.Context, query string, limit int) ([]models.Match, error) {
	if limit <= 0 {
		limit = ms.searchLimit
	}

	count := ms.collection.Count()
	if count == 0 {
		return []models.Match{}, nil
	}
	// chromem rejects result counts above the collection size
	limit = min(limit, count)

	results, err := ms.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	matches := make([]models.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, models.Match{
			Document: models.Document{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: r.Metadata,
			},
			Distance: 1 - float64(r.Similarity),
		})
	}
	return matches, nil
}

func (ms *MemoryStore) Count() int {
	return ms.collection.Count()
}

func (ms *MemoryStore) Close() {}
