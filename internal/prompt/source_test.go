package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/verte-zerg/tuirace/internal/model"
)

func TestWordsModeUsesDistinctWords(t *testing.T) {
	lib := NewLibrary(NewSeededGenerator(7), nil, 40)
	text, err := lib.Prompt(model.ModeWords)
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	words := strings.Split(text, " ")
	if len(words) != 40 {
		t.Fatalf("expected 40 words, got %d", len(words))
	}
	seen := map[string]struct{}{}
	for _, w := range words {
		if _, dup := seen[w]; dup {
			t.Fatalf("word %q repeated", w)
		}
		seen[w] = struct{}{}
	}
}

func TestWordsModeCapsAtPoolSize(t *testing.T) {
	lib := NewLibrary(NewSeededGenerator(1), []string{"a", "b", "c"}, 40)
	text, err := lib.Prompt(model.ModeWords)
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if got := len(strings.Fields(text)); got != 3 {
		t.Fatalf("expected 3 words, got %d", got)
	}
}

func TestCorpusModesAreNormalized(t *testing.T) {
	lib := NewLibrary(NewSeededGenerator(3), nil, 0)
	for _, mode := range []model.Mode{model.ModeLiterature, model.ModeCode} {
		for i := 0; i < 20; i++ {
			text, err := lib.Prompt(mode)
			if err != nil {
				t.Fatalf("%s prompt: %v", mode, err)
			}
			if text == "" {
				t.Fatalf("%s prompt is empty", mode)
			}
			if text != Normalize(text) {
				t.Fatalf("%s prompt not normalized: %q", mode, text)
			}
		}
	}
}

func TestUnknownMode(t *testing.T) {
	lib := NewLibrary(nil, nil, 0)
	if _, err := lib.Prompt("poetry"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize("  func add() {\n\treturn  1\n}  ")
	if got != "func add() { return 1 }" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}

func TestLoadWordsFiltersAndDedupes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "en.txt")
	content := "# comment\nhello\n\nworld\nhello\nCaps\nnaïve\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}
	words, err := LoadWords(path, FilterForLang("en"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if strings.Join(words, ",") != "hello,world" {
		t.Fatalf("unexpected words: %v", words)
	}
}

func TestLoadWordsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("\n\n"), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}
	if _, err := LoadWords(path, nil); err == nil {
		t.Fatalf("expected error for empty list")
	}
}
