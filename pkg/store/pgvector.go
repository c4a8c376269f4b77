package store

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/xhad/braggingrights/internal/models"
)

type VectorStoreConfig struct {
	ConnString   string
	TableName    string
	VectorDim    int
	IndexType    string
	DistanceType string
	BatchSize    int
	SearchLimit  int
	ResetTable   bool
}

// VectorStore keeps documents and their embeddings in PostgreSQL with the
// pgvector extension.
type VectorStore struct {
	config   VectorStoreConfig
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
	distance distance
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig, embedder embeddings.Embedder) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "vector_store"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}
	if config.IndexType == "" {
		config.IndexType = IndexHNSW
	}
	if config.DistanceType == "" {
		config.DistanceType = CosineDistance
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 4
	}

	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if err := validateTableName(config.TableName); err != nil {
		return nil, err
	}
	d, err := distanceFor(config.DistanceType)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config:   config,
		pool:     pool,
		embedder: embedder,
		distance: d,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	if vs.config.ResetTable {
		_, err = vs.pool.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{vs.config.TableName}.Sanitize())
		if err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}

	_, err = vs.pool.Exec(ctx, createTableStatement(vs.config.TableName, vs.config.VectorDim))
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex, err := indexStatement(vs.config.TableName, vs.config.IndexType, vs.distance)
	if err != nil {
		return err
	}
	if createIndex != "" {
		if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Add embeds every document and inserts the whole set in one transaction.
// Documents without an ID get a random one.
func (vs *VectorStore) Add(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}

	contents := make([]string, len(docs))
	for i, doc := range docs {
		contents[i] = sanitizeUTF8(doc.Content)
	}

	vectors, err := vs.embedder.EmbedDocuments(ctx, contents)
	if err != nil {
		return fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}
	for i, v := range vectors {
		if len(v) != vs.config.VectorDim {
			return fmt.Errorf("document %d: embedding has %d dimensions, table expects %d", i, len(v), vs.config.VectorDim)
		}
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`,
		pgx.Identifier{vs.config.TableName}.Sanitize())

	for start := 0; start < len(docs); start += vs.config.BatchSize {
		end := min(start+vs.config.BatchSize, len(docs))

		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			id := docs[i].ID
			if id == "" {
				id = uuid.NewString()
			}
			metadata := docs[i].Metadata
			if metadata == nil {
				metadata = map[string]string{}
			}
			batch.Queue(stmt, id, contents[i], metadata, pgvector.NewVector(vectors[i]))
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert documents: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SimilaritySearch returns up to limit documents closest to query, closest
// first. A limit of zero uses the configured search limit.
func (vs *VectorStore) SimilaritySearch(ctx context.Context, query string, limit int) ([]models.Match, error) {
	if limit <= 0 {
		limit = vs.config.SearchLimit
	}

	queryEmbedding, err := vs.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	stmt := fmt.Sprintf(`
		SELECT id, content, metadata, embedding %[1]s $1 AS distance
		FROM %[2]s
		ORDER BY embedding %[1]s $1
		LIMIT $2`,
		vs.distance.operator, pgx.Identifier{vs.config.TableName}.Sanitize())

	tx, err := vs.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if setting := searchSetting(vs.config.IndexType); setting != "" {
		if _, err := tx.Exec(ctx, setting); err != nil {
			return nil, fmt.Errorf("failed to configure search: %w", err)
		}
	}

	rows, err := tx.Query(ctx, stmt, pgvector.NewVector(queryEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	matches := []models.Match{}
	for rows.Next() {
		var m models.Match
		if err := rows.Scan(&m.ID, &m.Content, &m.Metadata, &m.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return matches, nil
}

// Count returns the number of stored documents.
func (vs *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := vs.pool.QueryRow(ctx, "SELECT count(*) FROM "+pgx.Identifier{vs.config.TableName}.Sanitize()).Scan(&n)
	return n, err
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// sanitizeUTF8 drops invalid bytes and NULs, which PostgreSQL text rejects.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		s = string(v)
	}
	return strings.ReplaceAll(s, "\x00", "")
}
