package config

import (
	"fmt"
	"net/url"
)

const (
	BackendPgvector = "pgvector"
	BackendMemory   = "memory"
)

var (
	indexTypes    = []string{"HNSW", "IVFFLAT", "NONE"}
	distanceTypes = []string{"COSINE_DISTANCE", "EUCLIDEAN_DISTANCE", "NEGATIVE_INNER_PRODUCT"}
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	} else if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.LLM.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Message: "generation model is required",
		})
	}

	if c.LLM.EmbeddingModel == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.embedding_model",
			Message: "embedding model is required",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if t := c.SamplingTemperature(); t < 0 || t > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.rate_limit",
			Message: "rate_limit must not be negative",
		})
	}

	// Validate Database config
	switch c.Database.Backend {
	case BackendPgvector:
		if c.Database.URL != "" {
			if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
				errors = append(errors, ValidationError{
					Field:   "database.url",
					Message: "invalid database URL",
				})
			}
		}
	case BackendMemory:
	default:
		errors = append(errors, ValidationError{
			Field:   "database.backend",
			Message: fmt.Sprintf("unknown backend: %s", c.Database.Backend),
		})
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if !oneOf(c.Database.IndexType, indexTypes) {
		errors = append(errors, ValidationError{
			Field:   "database.index_type",
			Message: fmt.Sprintf("unsupported index type: %s", c.Database.IndexType),
		})
	}

	if !oneOf(c.Database.DistanceType, distanceTypes) {
		errors = append(errors, ValidationError{
			Field:   "database.distance_type",
			Message: fmt.Sprintf("unsupported distance type: %s", c.Database.DistanceType),
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Database.SearchLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.search_limit",
			Message: "search_limit must be positive",
		})
	}

	// Validate Workflow config
	if c.Workflow.SayingAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "workflow.saying_attempts",
			Message: "saying_attempts must be positive",
		})
	}

	if c.Workflow.EssayWords < 1 {
		errors = append(errors, ValidationError{
			Field:   "workflow.essay_words",
			Message: "essay_words must be positive",
		})
	}

	return errors
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}
