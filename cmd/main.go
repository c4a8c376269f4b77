package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/braggingrights/pkg/config"
	"github.com/xhad/braggingrights/pkg/log"
)

// options holds the command-line overrides. Zero values leave the config
// file and environment untouched.
type options struct {
	configPath     string
	ollamaURL      string
	dbURL          string
	model          string
	embeddingModel string
	backend        string
	sayings        int
	containers     bool
	debug          bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "braggingrights",
		Short: "Let a model invent sayings, then make it find them again",
		Long: "Generates sayings and essays with an Ollama model, indexes the essays " +
			"in a vector store and asks the model to recover each saying from the " +
			"essay retrieved for it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := log.New(opts.debug)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			log.SetLogger(logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(cmd.Context(), opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config file")
	flags.StringVar(&opts.ollamaURL, "ollama-url", "", "Ollama server URL")
	flags.StringVar(&opts.dbURL, "db-url", "", "PostgreSQL connection string")
	flags.StringVar(&opts.model, "model", "", "Generation model")
	flags.StringVar(&opts.embeddingModel, "embedding-model", "", "Embedding model")
	flags.StringVar(&opts.backend, "store", "", "Vector store backend (pgvector or memory)")
	flags.IntVar(&opts.sayings, "sayings", 0, "Number of sayings to ask for")
	flags.BoolVar(&opts.containers, "containers", false, "Start Ollama and pgvector in disposable containers")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the experiment (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runExperiment(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "pull",
			Short: "Make sure the configured models are present on the Ollama server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return pullModels(cmd.Context(), opts)
			},
		},
	)

	return rootCmd
}

// loadConfig reads the config file and applies the command-line overrides.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.ollamaURL != "" {
		cfg.LLM.BaseURL = opts.ollamaURL
	}
	if opts.dbURL != "" {
		cfg.Database.URL = opts.dbURL
	}
	if opts.model != "" {
		cfg.LLM.Model = opts.model
	}
	if opts.embeddingModel != "" {
		cfg.LLM.EmbeddingModel = opts.embeddingModel
	}
	if opts.backend != "" {
		cfg.Database.Backend = opts.backend
	}
	if opts.sayings != 0 {
		cfg.Workflow.SayingAttempts = opts.sayings
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("  %s", e.Error())
		}
		return nil, fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}
	return cfg, nil
}
