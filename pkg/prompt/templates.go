package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tmc/langchaingo/prompts"
)

//go:embed templates/*.st
var builtin embed.FS

const (
	GenerateSayingFile   = "generate-saying.st"
	GenerateEssayFile    = "generate-essay.st"
	GuessSayingFile      = "guess-saying.st"
	GuessSayingBlindFile = "guess-saying-blind.st"
)

// Templates are the prompts of one experiment run.
type Templates struct {
	GenerateSaying   prompts.PromptTemplate
	GenerateEssay    prompts.PromptTemplate
	GuessSaying      prompts.PromptTemplate
	GuessSayingBlind prompts.PromptTemplate
}

// Load reads the built-in templates. Files with the same name in dir, if dir
// is not empty, take precedence.
func Load(dir string) (*Templates, error) {
	read := func(name string) (prompts.PromptTemplate, error) {
		if dir != "" {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err == nil {
				return New(string(data)), nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return prompts.PromptTemplate{}, fmt.Errorf("error reading template %s: %w", name, err)
			}
		}
		data, err := builtin.ReadFile("templates/" + name)
		if err != nil {
			return prompts.PromptTemplate{}, fmt.Errorf("error reading built-in template %s: %w", name, err)
		}
		return New(string(data)), nil
	}

	var t Templates
	var err error
	if t.GenerateSaying, err = read(GenerateSayingFile); err != nil {
		return nil, err
	}
	if t.GenerateEssay, err = read(GenerateEssayFile); err != nil {
		return nil, err
	}
	if t.GuessSaying, err = read(GuessSayingFile); err != nil {
		return nil, err
	}
	if t.GuessSayingBlind, err = read(GuessSayingBlindFile); err != nil {
		return nil, err
	}
	return &t, nil
}
