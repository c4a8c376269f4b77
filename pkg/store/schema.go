package store

import (
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
)

const (
	IndexHNSW    = "HNSW"
	IndexIVFFlat = "IVFFLAT"
	IndexNone    = "NONE"

	CosineDistance       = "COSINE_DISTANCE"
	EuclideanDistance    = "EUCLIDEAN_DISTANCE"
	NegativeInnerProduct = "NEGATIVE_INNER_PRODUCT"
)

// distance pairs a pgvector distance operator with the operator class its
// index must be built with.
type distance struct {
	operator string
	opclass  string
}

var distances = map[string]distance{
	CosineDistance:       {operator: "<=>", opclass: "vector_cosine_ops"},
	EuclideanDistance:    {operator: "<->", opclass: "vector_l2_ops"},
	NegativeInnerProduct: {operator: "<#>", opclass: "vector_ip_ops"},
}

// ivfflatLists is the list count of IVFFLAT indexes. Searches probe every
// list, since the index is built before any rows exist and its centers are
// random.
const ivfflatLists = 100

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func distanceFor(name string) (distance, error) {
	d, ok := distances[name]
	if !ok {
		return distance{}, fmt.Errorf("unsupported distance type: %s", name)
	}
	return d, nil
}

func validateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name: %q", name)
	}
	return nil
}

func createTableStatement(table string, dim int) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d) NOT NULL
		)`, pgx.Identifier{table}.Sanitize(), dim)
}

// indexStatement returns the DDL for the embedding index, or "" for NONE.
func indexStatement(table, indexType string, d distance) (string, error) {
	name := pgx.Identifier{table + "_embedding_idx"}.Sanitize()
	quoted := pgx.Identifier{table}.Sanitize()

	switch indexType {
	case IndexHNSW:
		return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding %s)`,
			name, quoted, d.opclass), nil
	case IndexIVFFlat:
		return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (embedding %s) WITH (lists = %d)`,
			name, quoted, d.opclass, ivfflatLists), nil
	case IndexNone:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported index type: %s", indexType)
	}
}

// searchSetting returns the SET LOCAL statement a search over indexType
// needs, or "".
func searchSetting(indexType string) string {
	if indexType == IndexIVFFlat {
		return fmt.Sprintf("SET LOCAL ivfflat.probes = %d", ivfflatLists)
	}
	return ""
}
