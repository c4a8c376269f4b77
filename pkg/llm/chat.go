package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"golang.org/x/time/rate"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	SystemTemplate string
	BaseURL        string  // Ollama server URL
	RateLimit      float64 // requests per second, 0 means unlimited
}

// ChatEngine sends single-turn prompts to an Ollama model.
type ChatEngine struct {
	config  ChatConfig
	llm     llms.Model
	limiter *rate.Limiter
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "llama3"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit cannot be negative")
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	return &ChatEngine{
		config:  config,
		llm:     llm,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Complete sends prompt to model and returns the first choice. An empty model
// selects the engine's configured model. Failures are not retried.
func (ce *ChatEngine) Complete(ctx context.Context, prompt, model string) (string, error) {
	if err := ce.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var content []llms.MessageContent
	if ce.config.SystemTemplate != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	opts := []llms.CallOption{
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}

	response, err := ce.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", fmt.Errorf("chat error: no response from LLM")
	}

	return response.Choices[0].Content, nil
}
