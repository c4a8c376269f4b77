package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/xhad/braggingrights/pkg/config"
	"github.com/xhad/braggingrights/pkg/containers"
	"github.com/xhad/braggingrights/pkg/llm"
	"github.com/xhad/braggingrights/pkg/log"
	"github.com/xhad/braggingrights/pkg/prompt"
	"github.com/xhad/braggingrights/pkg/store"
	"github.com/xhad/braggingrights/pkg/workflow"
)

func runExperiment(ctx context.Context, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if opts.containers {
		env, err := startContainers(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := env.Terminate(context.Background()); err != nil {
				log.Error(err, "failed to terminate containers")
			}
		}()
	}

	if cfg.Database.Backend == config.BackendPgvector && cfg.Database.URL == "" {
		return fmt.Errorf("a database URL is required for the pgvector store (--db-url, DATABASE_URL or --containers)")
	}

	templates, err := prompt.Load(cfg.Workflow.TemplateDir)
	if err != nil {
		return err
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.SamplingTemperature(),
		RateLimit:   cfg.LLM.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	puller, err := llm.NewPuller(llm.PullerConfig{
		BaseURL:    cfg.LLM.BaseURL,
		OnProgress: newPullReporter().Report,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize model puller: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.LLM.EmbeddingModel,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return err
	}

	vectorStore, err := store.Open(ctx, cfg.Database.Backend, store.VectorStoreConfig{
		ConnString:   cfg.Database.URL,
		TableName:    cfg.Database.TableName,
		VectorDim:    cfg.Database.VectorDim,
		IndexType:    cfg.Database.IndexType,
		DistanceType: cfg.Database.DistanceType,
		BatchSize:    cfg.Database.BatchSize,
		SearchLimit:  cfg.Database.SearchLimit,
		ResetTable:   cfg.Database.ResetTable,
	}, embedder)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vectorStore.Close()

	bars := newStepBars()
	w, err := workflow.New(workflow.Options{
		Model:             cfg.LLM.Model,
		EmbeddingModel:    cfg.LLM.EmbeddingModel,
		SayingAttempts:    cfg.Workflow.SayingAttempts,
		EssayWords:        cfg.Workflow.EssayWords,
		IncludeCandidates: cfg.ShowCandidates(),
		SearchLimit:       cfg.Database.SearchLimit,
		Progress:          bars.Update,
	}, chatEngine, puller, vectorStore, templates)
	if err != nil {
		return err
	}

	color.Blue("\nRunning bragging rights with %s (%s store)\n", cfg.LLM.Model, cfg.Database.Backend)
	report, err := w.Run(ctx)
	bars.Finish()
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

// startContainers boots the services and points cfg at them.
func startContainers(ctx context.Context, cfg *config.Config) (*containers.Environment, error) {
	var env *containers.Environment
	err := spin("Starting containers...", func() error {
		var err error
		env, err = containers.StartEnvironment(ctx, containers.EnvironmentOptions{
			OllamaImage: cfg.Containers.OllamaImage,
			Postgres: containers.PostgresOptions{
				Image: cfg.Containers.PostgresImage,
			},
			SkipPostgres: cfg.Database.Backend == config.BackendMemory,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	cfg.LLM.BaseURL = env.Ollama.Endpoint()
	if env.Postgres != nil {
		cfg.Database.URL = env.Postgres.ConnString()
	}
	color.Green("✓ Containers ready (ollama at %s)\n", cfg.LLM.BaseURL)
	return env, nil
}
