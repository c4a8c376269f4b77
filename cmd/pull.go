package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/xhad/braggingrights/pkg/llm"
)

func pullModels(ctx context.Context, opts options) error {
	// models pulled into a disposable container are gone once it stops
	if opts.containers {
		return fmt.Errorf("--containers cannot be used with pull: run pulls into its own containers")
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	reporter := newPullReporter()
	puller, err := llm.NewPuller(llm.PullerConfig{
		BaseURL:    cfg.LLM.BaseURL,
		OnProgress: reporter.Report,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize model puller: %w", err)
	}

	for _, model := range lo.Uniq([]string{cfg.LLM.Model, cfg.LLM.EmbeddingModel}) {
		if err := puller.Pull(ctx, model); err != nil {
			reporter.Finish()
			return err
		}
		reporter.Finish()
		color.Green("✓ %s is ready\n", model)
	}
	return nil
}
