package race

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/prompt"
)

func TestTokenizeRoundTrip(t *testing.T) {
	lib := prompt.NewLibrary(prompt.NewSeededGenerator(11), nil, 0)
	for _, mode := range model.Modes {
		for i := 0; i < 10; i++ {
			text, err := lib.Prompt(mode)
			if err != nil {
				t.Fatalf("prompt: %v", err)
			}
			tokens := Tokenize(text)
			total := len(tokens) - 1
			for _, tok := range tokens {
				if tok == "" {
					t.Fatalf("%s: empty token in %q", mode, text)
				}
				total += runeLen(tok)
			}
			if total != runeLen(text) {
				t.Fatalf("%s: tokens cover %d runes, prompt has %d", mode, total, runeLen(text))
			}
			if strings.Join(tokens, " ") != text {
				t.Fatalf("%s: tokens do not join back to prompt", mode)
			}
		}
	}
	if Tokenize("") != nil {
		t.Fatalf("expected no tokens for empty prompt")
	}
}

func TestMatchingPrefix(t *testing.T) {
	cases := []struct {
		input, token string
		want         int
	}{
		{"", "hello", 0},
		{"he", "hello", 2},
		{"hex", "hello", 2},
		{"hello", "hello", 5},
		{"hellooo", "hello", 5},
		{"xello", "hello", 0},
		{"naï", "naïve", 3},
	}
	for _, tc := range cases {
		if got := MatchingPrefix(tc.input, tc.token); got != tc.want {
			t.Fatalf("MatchingPrefix(%q, %q) = %d, want %d", tc.input, tc.token, got, tc.want)
		}
	}
}

func TestSimulatedBotProgress(t *testing.T) {
	if got := SimulatedBotProgress(60, 10*time.Second, 100); math.Abs(got-50) > 1e-9 {
		t.Fatalf("expected 50%%, got %v", got)
	}
	if got := SimulatedBotProgress(200, time.Minute, 100); got != 100 {
		t.Fatalf("expected cap at 100, got %v", got)
	}
	if got := SimulatedBotProgress(60, 10*time.Second, 0); got != 0 {
		t.Fatalf("expected 0 for empty prompt, got %v", got)
	}
	if got := SimulatedBotProgress(60, 0, 100); got != 0 {
		t.Fatalf("expected 0 before start, got %v", got)
	}
}

func TestHumanMetricsNoInput(t *testing.T) {
	m := HumanMetrics(Snapshot{PromptLength: 50}, 0, false)
	if m.Accuracy != 100 {
		t.Fatalf("expected 100%% accuracy with nothing typed, got %d", m.Accuracy)
	}
	if m.Speed != 0 || m.Progress != 0 {
		t.Fatalf("expected zero speed and progress, got %+v", m)
	}
}

func TestHumanMetricsSpeedFormula(t *testing.T) {
	// 40 tokens of 4 chars plus separators in 30 seconds.
	s := Snapshot{CorrectChars: 200, TotalChars: 200, CompletedChars: 200, PromptLength: 199}
	m := HumanMetrics(s, 30*time.Second, true)
	if m.Speed != 80 {
		t.Fatalf("expected 80 WPM, got %d", m.Speed)
	}
	if m.Accuracy != 100 {
		t.Fatalf("expected 100%% accuracy, got %d", m.Accuracy)
	}
	if m.Progress != 100 {
		t.Fatalf("expected progress capped at 100, got %v", m.Progress)
	}
}

func TestHumanMetricsFinalDropsPartialToken(t *testing.T) {
	s := Snapshot{CorrectChars: 10, TotalChars: 15, CompletedChars: 10, LivePrefix: 3, PromptLength: 100}
	live := HumanMetrics(s, time.Minute, false)
	final := HumanMetrics(s, time.Minute, true)
	if live.Speed <= final.Speed && live.Accuracy <= final.Accuracy {
		t.Fatalf("expected live metrics to include the partial prefix: live=%+v final=%+v", live, final)
	}
	if final.Accuracy != 67 {
		t.Fatalf("expected final accuracy 67, got %d", final.Accuracy)
	}
	if live.Accuracy != 87 {
		t.Fatalf("expected live accuracy 87, got %d", live.Accuracy)
	}
	if live.Progress != 13 || final.Progress != 13 {
		t.Fatalf("expected progress 13 in both, got live=%v final=%v", live.Progress, final.Progress)
	}
}

func TestAccuracyAlwaysInRange(t *testing.T) {
	for correct := 0; correct <= 30; correct++ {
		for total := 0; total <= 20; total++ {
			acc := accuracyPercent(correct, total)
			if acc < 0 || acc > 100 {
				t.Fatalf("accuracy(%d,%d) = %d out of range", correct, total, acc)
			}
		}
	}
}
