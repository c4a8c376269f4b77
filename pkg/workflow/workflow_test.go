package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/braggingrights/internal/fakes"
	"github.com/xhad/braggingrights/internal/models"
	"github.com/xhad/braggingrights/internal/types"
	"github.com/xhad/braggingrights/pkg/llm"
	"github.com/xhad/braggingrights/pkg/prompt"
	"github.com/xhad/braggingrights/pkg/store"
	"github.com/xhad/braggingrights/pkg/workflow"
)

const (
	sayingPromptMarker = "Invent one new saying"
	essayPromptMarker  = "Write an essay"
	guessPromptMarker  = "Which saying does the essay explain"
	candidatesMarker   = "The saying is one of these"
)

func promptKind(p string) string {
	switch {
	case strings.Contains(p, sayingPromptMarker):
		return "saying"
	case strings.Contains(p, essayPromptMarker):
		return "essay"
	case strings.Contains(p, guessPromptMarker):
		return "guess"
	}
	return "unknown"
}

// scripted answers each kind of prompt from its own queue, repeating the
// last answer once the queue runs dry.
func scripted(answers map[string][]string) func(string, string) (string, error) {
	var mu sync.Mutex
	next := map[string]int{}
	return func(p, _ string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		kind := promptKind(p)
		queue := answers[kind]
		if len(queue) == 0 {
			return "", fmt.Errorf("no scripted answer for %s prompt", kind)
		}
		i := min(next[kind], len(queue)-1)
		next[kind]++
		return queue[i], nil
	}
}

func newMemoryStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ms, err := store.NewMemory(fakes.HashEmbedder{}, 4)
	require.NoError(t, err)
	return ms
}

func newWorkflow(t *testing.T, opts workflow.Options, c *fakes.Completer, p *fakes.Puller, vs types.VectorStore) *workflow.Workflow {
	t.Helper()
	if opts.Model == "" {
		opts.Model = "llama3"
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = "nomic-embed-text"
	}
	templates, err := prompt.Load("")
	require.NoError(t, err)
	w, err := workflow.New(opts, c, p, vs, templates)
	require.NoError(t, err)
	return w
}

func TestRunEndToEnd(t *testing.T) {
	const saying = "Patience pays off"
	completer := &fakes.Completer{Respond: scripted(map[string][]string{
		"saying": {`"Patience pays off."`},
		"essay": {`Patience pays off. Those who wait calmly and keep working see their efforts rewarded. ` +
			`As the elders say, "Patience pays off" in the end.`},
		"guess": {`I believe the saying is "Patience pays off."`},
	})}
	puller := &fakes.Puller{}
	ms := newMemoryStore(t)

	w := newWorkflow(t, workflow.Options{SayingAttempts: 1, IncludeCandidates: true}, completer, puller, ms)

	report, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"llama3", "nomic-embed-text"}, puller.Pulled)
	assert.Equal(t, []models.Saying{saying}, report.Sayings)

	// exactly one document, without the saying
	require.Equal(t, 1, ms.Count())
	matches, err := ms.SimilaritySearch(context.Background(), saying, 4)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.NotContains(t, matches[0].Content, saying)
	assert.NotContains(t, matches[0].Content, `"`)

	require.Len(t, report.Rounds, 1)
	round := report.Rounds[0]
	assert.Equal(t, matches[0].ID, round.Retrieved.ID)
	assert.True(t, round.RetrievedOwn)
	assert.Equal(t, matches[0].Content, round.Essay)
	assert.True(t, round.Found)
	assert.Equal(t, saying, round.Guess)
	assert.True(t, round.Correct)
	assert.Equal(t, 1.0, report.Score())
}

// recorder logs the order in which collaborators are used.
type recorder struct {
	mu     sync.Mutex
	events []string
	store  *store.MemoryStore
}

func (r *recorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Pull(_ context.Context, model string) error {
	r.record("pull " + model)
	return nil
}

func (r *recorder) Add(ctx context.Context, docs []models.Document) error {
	r.record(fmt.Sprintf("add %d", len(docs)))
	return r.store.Add(ctx, docs)
}

func (r *recorder) SimilaritySearch(ctx context.Context, query string, limit int) ([]models.Match, error) {
	r.record("search")
	return r.store.SimilaritySearch(ctx, query, limit)
}

func (r *recorder) Close() {}

func TestRunOrdering(t *testing.T) {
	rec := &recorder{store: newMemoryStore(t)}
	respond := scripted(map[string][]string{
		"saying": {`"Early birds sing first."`, `"Cold tea tells no lies."`},
		"essay":  {"Birds at dawn.", "Tea gone cold."},
		"guess":  {`"Early birds sing first"`, `"Cold tea tells no lies"`},
	})
	completer := &fakes.Completer{Respond: func(p, model string) (string, error) {
		rec.record(promptKind(p))
		return respond(p, model)
	}}

	opts := workflow.Options{
		Model:             "llama3",
		EmbeddingModel:    "nomic-embed-text",
		SayingAttempts:    2,
		IncludeCandidates: true,
	}
	templates, err := prompt.Load("")
	require.NoError(t, err)
	w, err := workflow.New(opts, completer, rec, rec, templates)
	require.NoError(t, err)

	report, err := w.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Rounds, 2)

	assert.Equal(t, []string{
		"pull llama3",
		"pull nomic-embed-text",
		"saying", "saying",
		"essay", "essay",
		"add 2",
		"search", "guess",
		"search", "guess",
	}, rec.events)
}

func TestGenerateSayingsDropsMissesAndRepeats(t *testing.T) {
	completer := &fakes.Completer{Respond: scripted(map[string][]string{
		"saying": {
			`"Same old song."`,
			`I cannot think of one right now.`,
			`Here it is: "Same old song"`,
			`"New tricks for old dogs."`,
		},
	})}
	w := newWorkflow(t, workflow.Options{SayingAttempts: 4}, completer, &fakes.Puller{}, newMemoryStore(t))

	sayings, err := w.GenerateSayings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Saying{"Same old song", "New tricks for old dogs"}, sayings)

	require.Len(t, completer.Calls, 4)
	// earlier sayings are passed back as a bullet list
	assert.NotContains(t, completer.Calls[0], "Same old song")
	assert.Contains(t, completer.Calls[1], " * Same old song")
	assert.Contains(t, completer.Calls[3], " * Same old song")
	assert.NotContains(t, completer.Calls[3], "Same old song\n * Same old song")
}

func TestGenerateSayingsNoneFound(t *testing.T) {
	completer := &fakes.Completer{Respond: scripted(map[string][]string{
		"saying": {"I have nothing to say."},
	})}
	w := newWorkflow(t, workflow.Options{SayingAttempts: 3}, completer, &fakes.Puller{}, newMemoryStore(t))

	_, err := w.GenerateSayings(context.Background())
	assert.ErrorIs(t, err, workflow.ErrNoSayings)
	assert.Len(t, completer.Calls, 3)
}

func TestGenerateEssaysScrubsSaying(t *testing.T) {
	completer := &fakes.Completer{Respond: scripted(map[string][]string{
		"essay": {`"Know thyself" is old advice. To Know thyself takes a lifetime.`},
	})}
	w := newWorkflow(t, workflow.Options{EssayWords: 120}, completer, &fakes.Puller{}, newMemoryStore(t))

	essays, err := w.GenerateEssays(context.Background(), []models.Saying{"Know thyself"})
	require.NoError(t, err)
	assert.Equal(t, map[models.Saying]models.Essay{
		"Know thyself": ` is old advice. To  takes a lifetime.`,
	}, essays)

	require.Len(t, completer.Calls, 1)
	assert.Contains(t, completer.Calls[0], "at most 120 words")
	assert.Contains(t, completer.Calls[0], `"Know thyself"`)
}

type emptyStore struct{}

func (emptyStore) Add(context.Context, []models.Document) error { return nil }
func (emptyStore) SimilaritySearch(context.Context, string, int) ([]models.Match, error) {
	return []models.Match{}, nil
}
func (emptyStore) Close() {}

func TestRetrieveAndGuessNoMatch(t *testing.T) {
	completer := &fakes.Completer{Respond: scripted(nil)}
	w := newWorkflow(t, workflow.Options{}, completer, &fakes.Puller{}, emptyStore{})

	_, err := w.RetrieveAndGuess(context.Background(), "Anything", prompt.NewSet("Anything"))
	assert.ErrorIs(t, err, workflow.ErrNoMatch)
	assert.Empty(t, completer.Calls)
}

func TestRetrieveAndGuessCandidates(t *testing.T) {
	ctx := context.Background()
	ms := newMemoryStore(t)
	require.NoError(t, ms.Add(ctx, []models.Document{
		{ID: "1", Content: "rivers carve valleys slowly", Metadata: map[string]string{"saying": "Water wins"}},
	}))
	candidates := prompt.NewSet("Water wins", "Fire warms")

	tests := []struct {
		name              string
		includeCandidates bool
	}{
		{name: "with candidates", includeCandidates: true},
		{name: "blind", includeCandidates: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &fakes.Completer{Respond: scripted(map[string][]string{
				"guess": {`Probably "Fire warms."`},
			})}
			w := newWorkflow(t, workflow.Options{IncludeCandidates: tt.includeCandidates}, completer, &fakes.Puller{}, ms)

			round, err := w.RetrieveAndGuess(ctx, "Water wins", candidates)
			require.NoError(t, err)

			assert.Equal(t, "1", round.Retrieved.ID)
			assert.True(t, round.RetrievedOwn)
			assert.True(t, round.Found)
			assert.Equal(t, "Fire warms", round.Guess)
			assert.False(t, round.Correct)

			require.Len(t, completer.Calls, 1)
			assert.Contains(t, completer.Calls[0], "rivers carve valleys slowly")
			if tt.includeCandidates {
				assert.Contains(t, completer.Calls[0], candidatesMarker)
				assert.Contains(t, completer.Calls[0], " * Fire warms\n * Water wins")
			} else {
				assert.NotContains(t, completer.Calls[0], candidatesMarker)
			}
		})
	}
}

func TestRetrieveAndGuessCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	ms := newMemoryStore(t)
	require.NoError(t, ms.Add(ctx, []models.Document{{ID: "1", Content: "an essay"}}))

	completer := &fakes.Completer{Respond: scripted(map[string][]string{
		"guess": {`"all is well that ends well"`},
	})}
	w := newWorkflow(t, workflow.Options{}, completer, &fakes.Puller{}, ms)

	round, err := w.RetrieveAndGuess(ctx, "All is well that ends well", prompt.NewSet())
	require.NoError(t, err)
	assert.True(t, round.Correct)
	assert.False(t, round.RetrievedOwn)
}

func TestRunAbortsOnPullFailure(t *testing.T) {
	completer := &fakes.Completer{Respond: scripted(nil)}
	puller := &fakes.Puller{Err: fmt.Errorf("%w: llama3: connection refused", llm.ErrModelUnavailable)}
	ms := newMemoryStore(t)
	w := newWorkflow(t, workflow.Options{}, completer, puller, ms)

	_, err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrModelUnavailable))
	assert.Empty(t, completer.Calls)
	assert.Equal(t, 0, ms.Count())
}

func TestRunAbortsOnCompletionFailure(t *testing.T) {
	boom := errors.New("connection reset")
	completer := &fakes.Completer{Respond: func(p, _ string) (string, error) {
		if promptKind(p) == "essay" {
			return "", boom
		}
		return `"Fine words butter no parsnips."`, nil
	}}
	ms := newMemoryStore(t)
	w := newWorkflow(t, workflow.Options{SayingAttempts: 2}, completer, &fakes.Puller{}, ms)

	_, err := w.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, ms.Count())
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	completer := &fakes.Completer{Respond: scripted(map[string][]string{"saying": {`"Never."`}})}
	w := newWorkflow(t, workflow.Options{SayingAttempts: 3}, completer, &fakes.Puller{}, newMemoryStore(t))

	_, err := w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProgressCallback(t *testing.T) {
	var steps []string
	completer := &fakes.Completer{Respond: scripted(map[string][]string{
		"saying": {`"One."`, `"Two."`},
		"essay":  {"first essay", "second essay"},
		"guess":  {`"One"`},
	})}
	opts := workflow.Options{
		SayingAttempts: 2,
		Progress: func(step string, done, total int) {
			steps = append(steps, fmt.Sprintf("%s %d/%d", step, done, total))
		},
	}
	w := newWorkflow(t, opts, completer, &fakes.Puller{}, newMemoryStore(t))

	_, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"sayings 1/2", "sayings 2/2",
		"essays 1/2", "essays 2/2",
		"guesses 1/2", "guesses 2/2",
	}, steps)
}

func TestNewValidatesOptions(t *testing.T) {
	c := &fakes.Completer{}
	p := &fakes.Puller{}
	ms := newMemoryStore(t)

	_, err := workflow.New(workflow.Options{EmbeddingModel: "e"}, c, p, ms, nil)
	assert.Error(t, err)

	_, err = workflow.New(workflow.Options{Model: "m"}, c, p, ms, nil)
	assert.Error(t, err)

	_, err = workflow.New(workflow.Options{Model: "m", EmbeddingModel: "e"}, nil, p, ms, nil)
	assert.Error(t, err)

	_, err = workflow.New(workflow.Options{Model: "m", EmbeddingModel: "e", SayingAttempts: -1}, c, p, ms, nil)
	assert.Error(t, err)

	w, err := workflow.New(workflow.Options{Model: "m", EmbeddingModel: "e"}, c, p, ms, nil)
	require.NoError(t, err)
	assert.NotNil(t, w)
}
