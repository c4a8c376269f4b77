package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL        string   `yaml:"base_url"`
		Model          string   `yaml:"model"`
		EmbeddingModel string   `yaml:"embedding_model"`
		MaxTokens      int      `yaml:"max_tokens"`
		Temperature    *float64 `yaml:"temperature"`
		RateLimit      float64  `yaml:"rate_limit"`
	} `yaml:"llm"`

	Database struct {
		Backend      string `yaml:"backend"`
		URL          string `yaml:"url"`
		TableName    string `yaml:"table_name"`
		VectorDim    int    `yaml:"vector_dim"`
		IndexType    string `yaml:"index_type"`
		DistanceType string `yaml:"distance_type"`
		BatchSize    int    `yaml:"batch_size"`
		SearchLimit  int    `yaml:"search_limit"`
		ResetTable   bool   `yaml:"reset_table"`
	} `yaml:"database"`

	Workflow struct {
		SayingAttempts    int    `yaml:"saying_attempts"`
		EssayWords        int    `yaml:"essay_words"`
		IncludeCandidates *bool  `yaml:"include_candidates"`
		TemplateDir       string `yaml:"template_dir"`
	} `yaml:"workflow"`

	Containers struct {
		OllamaImage   string `yaml:"ollama_image"`
		PostgresImage string `yaml:"postgres_image"`
	} `yaml:"containers"`
}

const defaultTemperature = 0.8

// SamplingTemperature is the configured temperature. An explicit 0 is kept.
func (c *Config) SamplingTemperature() float64 {
	if c.LLM.Temperature == nil {
		return defaultTemperature
	}
	return *c.LLM.Temperature
}

// ShowCandidates reports whether the guess prompt lists the candidate sayings.
func (c *Config) ShowCandidates() bool {
	return c.Workflow.IncludeCandidates == nil || *c.Workflow.IncludeCandidates
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/braggingrights/config.yaml"),
			"/etc/braggingrights/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "llama3"
	}
	if config.LLM.EmbeddingModel == "" {
		config.LLM.EmbeddingModel = "nomic-embed-text"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == nil {
		t := defaultTemperature
		config.LLM.Temperature = &t
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Database.Backend == "" {
		config.Database.Backend = BackendPgvector
	}
	if config.Database.TableName == "" {
		config.Database.TableName = "vector_store"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.IndexType == "" {
		config.Database.IndexType = "HNSW"
	}
	if config.Database.DistanceType == "" {
		config.Database.DistanceType = "COSINE_DISTANCE"
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}
	if config.Database.SearchLimit == 0 {
		config.Database.SearchLimit = 4
	}

	if config.Workflow.SayingAttempts == 0 {
		config.Workflow.SayingAttempts = 9
	}
	if config.Workflow.EssayWords == 0 {
		config.Workflow.EssayWords = 300
	}

	if config.Containers.OllamaImage == "" {
		config.Containers.OllamaImage = "ollama/ollama:latest"
	}
	if config.Containers.PostgresImage == "" {
		config.Containers.PostgresImage = "pgvector/pgvector:pg16"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if model := os.Getenv("BRAGGING_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if model := os.Getenv("BRAGGING_EMBEDDING_MODEL"); model != "" {
		config.LLM.EmbeddingModel = model
	}
}
