// Package prompt renders the experiment's prompt templates.
//
// Templates use f-string placeholders ({name}). Every placeholder is bound to a
// Value: Text is substituted verbatim, List and Set are rendered as a bullet
// block whose elements are joined with "\n * ", so a template line of the
// form " * {sayings}" expands to one bullet per element.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/tmc/langchaingo/prompts"
)

// BulletSeparator joins the elements of List and Set values.
const BulletSeparator = "\n * "

// Placeholder names shared by the built-in templates.
const (
	ParamSaying  = "saying"
	ParamSayings = "sayings"
	ParamEssay   = "essay"
	ParamWords   = "words"
)

// Value is a template parameter: Text, List or Set.
type Value interface {
	Render() string
}

// Text is substituted as is.
type Text string

func (t Text) Render() string { return string(t) }

// List keeps the caller's order.
type List []string

func (l List) Render() string { return strings.Join(l, BulletSeparator) }

// Set holds unique strings. It renders in sorted order.
type Set map[string]struct{}

func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

func (s Set) Add(item string) { s[item] = struct{}{} }

func (s Set) Contains(item string) bool {
	_, ok := s[item]
	return ok
}

// Items returns the elements sorted.
func (s Set) Items() []string {
	items := lo.Keys(s)
	sort.Strings(items)
	return items
}

func (s Set) Render() string { return strings.Join(s.Items(), BulletSeparator) }

// New wraps raw template text as an f-string prompt template.
func New(text string) prompts.PromptTemplate {
	return prompts.PromptTemplate{
		Template:       text,
		InputVariables: placeholders(text),
		TemplateFormat: prompts.TemplateFormatFString,
	}
}

// Render substitutes values into tmpl.
func Render(tmpl prompts.PromptTemplate, values map[string]Value) (string, error) {
	resolved := make(map[string]any, len(values))
	for name, v := range values {
		if v == nil {
			return "", fmt.Errorf("prompt value %q is nil", name)
		}
		resolved[name] = v.Render()
	}

	for _, name := range tmpl.InputVariables {
		if _, ok := resolved[name]; !ok {
			return "", fmt.Errorf("missing prompt value %q", name)
		}
	}

	text, err := tmpl.Format(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return text, nil
}

// placeholders lists the distinct {name} placeholders of an f-string
// template, skipping escaped braces.
func placeholders(text string) []string {
	var names []string
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				i++
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return lo.Uniq(names)
			}
			names = append(names, strings.TrimSpace(text[i+1:i+1+end]))
			i += end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				i++
			}
		}
	}
	return lo.Uniq(names)
}
