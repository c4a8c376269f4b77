// Package workflow runs the bragging rights experiment: the model invents
// sayings, explains each one in an essay with the saying scrubbed out, the
// essays are indexed, and the model has to recover each saying from the
// essay retrieved for it.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/xhad/braggingrights/internal/models"
	"github.com/xhad/braggingrights/internal/types"
	"github.com/xhad/braggingrights/pkg/log"
	"github.com/xhad/braggingrights/pkg/prompt"
)

var (
	// ErrNoSayings is returned when no model answer contained a usable saying.
	ErrNoSayings = errors.New("no sayings generated")
	// ErrNoMatch is returned when a similarity search comes back empty.
	ErrNoMatch = errors.New("similarity search returned no documents")
)

// Progress steps.
const (
	StepSayings = "sayings"
	StepEssays  = "essays"
	StepGuesses = "guesses"
)

// metadataSaying keys the saying an indexed essay was written for.
const metadataSaying = "saying"

type Options struct {
	Model          string
	EmbeddingModel string
	// SayingAttempts is the number of saying prompts sent. Answers without a
	// quoted saying and repeats are dropped, so fewer sayings may result.
	SayingAttempts int
	EssayWords     int
	// IncludeCandidates adds the full set of sayings to the guess prompt.
	IncludeCandidates bool
	SearchLimit       int
	// Progress, if set, is called after every model call of a step.
	Progress func(step string, done, total int)
}

type Workflow struct {
	opts      Options
	completer types.Completer
	puller    types.ModelPuller
	store     types.VectorStore
	templates *prompt.Templates
	logger    logr.Logger
}

func New(opts Options, completer types.Completer, puller types.ModelPuller, store types.VectorStore, templates *prompt.Templates) (*Workflow, error) {
	if completer == nil || puller == nil || store == nil {
		return nil, fmt.Errorf("completer, puller and vector store are required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if opts.EmbeddingModel == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if opts.SayingAttempts == 0 {
		opts.SayingAttempts = 9
	}
	if opts.EssayWords == 0 {
		opts.EssayWords = 300
	}
	if opts.SearchLimit == 0 {
		opts.SearchLimit = 4
	}
	if opts.SayingAttempts < 0 || opts.EssayWords < 0 || opts.SearchLimit < 0 {
		return nil, fmt.Errorf("saying attempts, essay words and search limit cannot be negative")
	}
	if templates == nil {
		t, err := prompt.Load("")
		if err != nil {
			return nil, err
		}
		templates = t
	}

	return &Workflow{
		opts:      opts,
		completer: completer,
		puller:    puller,
		store:     store,
		templates: templates,
		logger:    log.WithName("workflow"),
	}, nil
}

// Run executes every step in order and reports the outcome of each round.
// The first failing step aborts the run.
func (w *Workflow) Run(ctx context.Context) (*models.Report, error) {
	if err := w.PullModels(ctx); err != nil {
		return nil, err
	}

	sayings, err := w.GenerateSayings(ctx)
	if err != nil {
		return nil, err
	}

	essays, err := w.GenerateEssays(ctx, sayings)
	if err != nil {
		return nil, err
	}

	elapsed, err := w.Index(ctx, sayings, essays)
	if err != nil {
		return nil, err
	}

	report := &models.Report{
		Model:          w.opts.Model,
		EmbeddingModel: w.opts.EmbeddingModel,
		Sayings:        sayings,
		IndexDuration:  elapsed,
	}

	candidates := prompt.NewSet(sayings...)
	for i, saying := range sayings {
		w.logger.Info("generated saying", "saying", saying)
		round, err := w.RetrieveAndGuess(ctx, saying, candidates)
		if err != nil {
			return nil, err
		}
		round.Essay = essays[saying]
		report.Rounds = append(report.Rounds, round)
		w.progress(StepGuesses, i+1, len(sayings))
	}

	w.logger.Info("run finished", "rounds", len(report.Rounds), "score", report.Score())
	return report, nil
}

// PullModels makes the generation and embedding models available.
func (w *Workflow) PullModels(ctx context.Context) error {
	for _, model := range lo.Uniq([]string{w.opts.Model, w.opts.EmbeddingModel}) {
		start := time.Now()
		if err := w.puller.Pull(ctx, model); err != nil {
			return fmt.Errorf("pull models: %w", err)
		}
		w.logger.V(1).Info("model ready", "model", model, "duration", time.Since(start))
	}
	return nil
}

// GenerateSayings prompts for a new saying SayingAttempts times, passing the
// sayings collected so far so the model avoids them.
func (w *Workflow) GenerateSayings(ctx context.Context) ([]models.Saying, error) {
	sayings := []models.Saying{}
	for i := 0; i < w.opts.SayingAttempts; i++ {
		text, err := prompt.Render(w.templates.GenerateSaying, map[string]prompt.Value{
			prompt.ParamSayings: prompt.List(sayings),
		})
		if err != nil {
			return nil, fmt.Errorf("generate sayings: %w", err)
		}

		answer, err := w.completer.Complete(ctx, text, w.opts.Model)
		if err != nil {
			return nil, fmt.Errorf("generate sayings: %w", err)
		}
		w.progress(StepSayings, i+1, w.opts.SayingAttempts)

		saying, ok := ExtractQuoted(answer)
		if !ok {
			w.logger.V(1).Info("no quoted saying in answer", "attempt", i+1, "answer", answer)
			continue
		}
		if lo.Contains(sayings, saying) {
			w.logger.Info("skipping repeated saying", "attempt", i+1, "saying", saying)
			continue
		}
		sayings = append(sayings, saying)
	}

	if len(sayings) == 0 {
		return nil, fmt.Errorf("generate sayings: %w after %d attempts", ErrNoSayings, w.opts.SayingAttempts)
	}
	return sayings, nil
}

// GenerateEssays asks for one essay per saying and scrubs the saying out of
// it.
func (w *Workflow) GenerateEssays(ctx context.Context, sayings []models.Saying) (map[models.Saying]models.Essay, error) {
	essays := make(map[models.Saying]models.Essay, len(sayings))
	for i, saying := range sayings {
		text, err := prompt.Render(w.templates.GenerateEssay, map[string]prompt.Value{
			prompt.ParamSaying: prompt.Text(saying),
			prompt.ParamWords:  prompt.Text(strconv.Itoa(w.opts.EssayWords)),
		})
		if err != nil {
			return nil, fmt.Errorf("generate essays: %w", err)
		}

		answer, err := w.completer.Complete(ctx, text, w.opts.Model)
		if err != nil {
			return nil, fmt.Errorf("generate essays: %w", err)
		}
		essays[saying] = ScrubEssay(answer, saying)
		w.progress(StepEssays, i+1, len(sayings))
	}
	return essays, nil
}

// Index stores one document per essay, in saying order, and returns how long
// the store took.
func (w *Workflow) Index(ctx context.Context, sayings []models.Saying, essays map[models.Saying]models.Essay) (time.Duration, error) {
	docs := make([]models.Document, 0, len(essays))
	for _, saying := range sayings {
		essay, ok := essays[saying]
		if !ok {
			continue
		}
		docs = append(docs, models.Document{
			ID:       uuid.NewString(),
			Content:  essay,
			Metadata: map[string]string{metadataSaying: saying},
		})
	}

	start := time.Now()
	if err := w.store.Add(ctx, docs); err != nil {
		return 0, fmt.Errorf("index essays: %w", err)
	}
	elapsed := time.Since(start)
	w.logger.Info("stored the vector documents", "documents", len(docs), "duration", elapsed)
	return elapsed, nil
}

// RetrieveAndGuess fetches the essay nearest to saying and asks the model
// which saying it explains.
func (w *Workflow) RetrieveAndGuess(ctx context.Context, saying models.Saying, candidates prompt.Set) (models.Round, error) {
	start := time.Now()
	matches, err := w.store.SimilaritySearch(ctx, saying, w.opts.SearchLimit)
	if err != nil {
		return models.Round{}, fmt.Errorf("retrieve essay: %w", err)
	}
	w.logger.Info("performed similarity search", "saying", saying, "duration", time.Since(start))
	if len(matches) == 0 {
		return models.Round{}, fmt.Errorf("retrieve essay for %q: %w", saying, ErrNoMatch)
	}
	nearest := matches[0]

	tmpl := w.templates.GuessSayingBlind
	values := map[string]prompt.Value{
		prompt.ParamEssay: prompt.Text(nearest.Content),
	}
	if w.opts.IncludeCandidates {
		tmpl = w.templates.GuessSaying
		values[prompt.ParamSayings] = candidates
	}

	text, err := prompt.Render(tmpl, values)
	if err != nil {
		return models.Round{}, fmt.Errorf("guess saying: %w", err)
	}
	answer, err := w.completer.Complete(ctx, text, w.opts.Model)
	if err != nil {
		return models.Round{}, fmt.Errorf("guess saying: %w", err)
	}
	w.logger.Info("llm guess", "saying", saying, "guess", answer)

	guess, found := ExtractQuoted(answer)
	return models.Round{
		Saying:       saying,
		Retrieved:    nearest,
		RetrievedOwn: nearest.Metadata[metadataSaying] == saying,
		RawGuess:     answer,
		Guess:        guess,
		Found:        found,
		Correct:      found && sameSaying(guess, saying),
	}, nil
}

func (w *Workflow) progress(step string, done, total int) {
	if w.opts.Progress != nil {
		w.opts.Progress(step, done, total)
	}
}
