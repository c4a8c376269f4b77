package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ollama/ollama/api"
	"github.com/xhad/braggingrights/pkg/log"
)

// ErrModelUnavailable is returned when the runtime cannot provide a model.
var ErrModelUnavailable = errors.New("model unavailable")

// PullProgress receives the status lines Ollama streams while pulling.
type PullProgress func(model, status string, completed, total int64)

type PullerConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	OnProgress PullProgress
}

// Puller ensures models are present on an Ollama runtime. A model is pulled
// at most once per Puller, and never if the runtime already lists it.
type Puller struct {
	client     *api.Client
	onProgress PullProgress

	mu     sync.Mutex
	pulled map[string]bool
}

func NewPuller(config PullerConfig) (*Puller, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &Puller{
		client:     api.NewClient(base, config.HTTPClient),
		onProgress: config.OnProgress,
		pulled:     make(map[string]bool),
	}, nil
}

func (p *Puller) Pull(ctx context.Context, model string) error {
	name := NormalizeModel(model)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pulled[name] {
		return nil
	}

	present, err := p.isPresent(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrModelUnavailable, model, err)
	}

	if present {
		log.Debug("model already present", "model", name)
	} else {
		log.Info("pulling model", "model", name)
		err := p.client.Pull(ctx, &api.PullRequest{Model: model}, func(resp api.ProgressResponse) error {
			if p.onProgress != nil {
				p.onProgress(name, resp.Status, resp.Completed, resp.Total)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrModelUnavailable, model, err)
		}
	}

	p.pulled[name] = true
	return nil
}

func (p *Puller) isPresent(ctx context.Context, name string) (bool, error) {
	list, err := p.client.List(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range list.Models {
		if NormalizeModel(m.Name) == name || NormalizeModel(m.Model) == name {
			return true, nil
		}
	}
	return false, nil
}

// NormalizeModel adds the implicit ":latest" tag to untagged model names.
func NormalizeModel(model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		return model
	}
	if tag := model[strings.LastIndex(model, "/")+1:]; strings.Contains(tag, ":") {
		return model
	}
	return model + ":latest"
}
