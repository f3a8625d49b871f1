package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/verte-zerg/tuirace/internal/model"
)

// DefaultWordCount is the words-mode prompt length.
const DefaultWordCount = 40

// ErrUnknownMode is returned for modes the library cannot serve.
var ErrUnknownMode = errors.New("unknown prompt mode")

// Source returns a prompt for a mode.
type Source interface {
	Prompt(mode model.Mode) (string, error)
}

// Library serves prompts from the built-in corpora and an optional word list.
type Library struct {
	gen       *Generator
	words     []string
	excerpts  []string
	snippets  []string
	wordCount int
}

// NewLibrary returns a Library backed by the built-in corpora. A nil or
// empty words slice uses the built-in common-word pool.
func NewLibrary(gen *Generator, words []string, wordCount int) *Library {
	if gen == nil {
		gen = NewGenerator()
	}
	if len(words) == 0 {
		words = commonWords
	}
	if wordCount <= 0 {
		wordCount = DefaultWordCount
	}
	return &Library{
		gen:       gen,
		words:     words,
		excerpts:  literatureExcerpts,
		snippets:  codeSnippets,
		wordCount: wordCount,
	}
}

// Prompt implements Source. The result is always normalized.
func (l *Library) Prompt(mode model.Mode) (string, error) {
	switch mode {
	case model.ModeWords:
		return Normalize(strings.Join(l.gen.Shuffled(l.words, l.wordCount), " ")), nil
	case model.ModeLiterature:
		return Normalize(l.gen.Pick(l.excerpts)), nil
	case model.ModeCode:
		return Normalize(l.gen.Pick(l.snippets)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// Normalize collapses every whitespace run into a single space and trims the
// ends, so a prompt splits into tokens that join back to itself.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
