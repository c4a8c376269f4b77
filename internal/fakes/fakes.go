// Package fakes provides deterministic stand-ins for the language-model
// runtime, used by store and workflow tests.
package fakes

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// Completer answers prompts with a scripted function and records every call.
type Completer struct {
	Respond func(prompt, model string) (string, error)

	mu    sync.Mutex
	Calls []string
}

func (c *Completer) Complete(ctx context.Context, prompt, model string) (string, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, prompt)
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.Respond(prompt, model)
}

// Puller records pulled model names and optionally fails.
type Puller struct {
	Err error

	mu     sync.Mutex
	Pulled []string
}

func (p *Puller) Pull(ctx context.Context, model string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Pulled = append(p.Pulled, model)
	return nil
}

// HashEmbedder maps text to a bag-of-words vector of fixed dimension by
// hashing lower-cased words into buckets. Texts sharing words end up close
// under cosine distance.
type HashEmbedder struct {
	Dim int
}

func (h HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := h.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func (h HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	dim := h.Dim
	if dim <= 0 {
		dim = 768
	}
	if dim < 2 {
		return nil, fmt.Errorf("hash embedder needs at least 2 dimensions, got %d", dim)
	}
	v := make([]float32, dim)
	// a constant component keeps empty texts off the zero vector
	v[0] = 0.01

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		f.Write([]byte(w))
		v[1+int(f.Sum32()%uint32(dim-1))] += 1
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v, nil
}
