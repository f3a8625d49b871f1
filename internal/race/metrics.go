package race

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Separator commits the token being typed.
const Separator = ' '

// charsPerWord is the standard word length used by WPM.
const charsPerWord = 5

// Tokenize splits a normalized prompt into the units the player must type.
func Tokenize(prompt string) []string {
	if prompt == "" {
		return nil
	}
	return strings.Split(prompt, string(Separator))
}

// MatchingPrefix counts the leading runes of input that match token.
func MatchingPrefix(input, token string) int {
	n := 0
	tr := []rune(token)
	for _, r := range input {
		if n >= len(tr) || r != tr[n] {
			break
		}
		n++
	}
	return n
}

// SimulatedBotProgress is the percent of a prompt a bot typing linearly at
// speed WPM has covered after elapsed.
func SimulatedBotProgress(speed float64, elapsed time.Duration, promptLength int) float64 {
	if promptLength <= 0 || speed <= 0 || elapsed <= 0 {
		return 0
	}
	typed := speed * charsPerWord / 60 * elapsed.Seconds()
	return math.Min(100, typed/float64(promptLength)*100)
}

// Snapshot is the human's typing state metrics are computed from.
type Snapshot struct {
	// CorrectChars counts characters of tokens committed without error,
	// separators included.
	CorrectChars int
	// TotalChars counts every input change.
	TotalChars int
	// CompletedChars is the prompt length covered by committed tokens.
	CompletedChars int
	// LivePrefix is the matching prefix of the token still being typed.
	LivePrefix   int
	PromptLength int
}

// Metrics are the human's derived race numbers.
type Metrics struct {
	Speed    int
	Accuracy int
	Progress float64
}

// HumanMetrics computes speed, accuracy and progress. With final set the
// uncommitted prefix no longer earns speed or accuracy credit.
func HumanMetrics(s Snapshot, elapsed time.Duration, final bool) Metrics {
	correct := s.CorrectChars
	if !final {
		correct += s.LivePrefix
	}
	return Metrics{
		Speed:    wordsPerMinute(correct, elapsed),
		Accuracy: accuracyPercent(correct, s.TotalChars),
		Progress: progressPercent(s.CompletedChars+s.LivePrefix, s.PromptLength),
	}
}

func wordsPerMinute(correct int, elapsed time.Duration) int {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / charsPerWord / secs * 60))
}

func accuracyPercent(correct, total int) int {
	if total <= 0 {
		return 100
	}
	acc := int(math.Round(float64(correct) / float64(total) * 100))
	if acc < 0 {
		return 0
	}
	if acc > 100 {
		return 100
	}
	return acc
}

func progressPercent(covered, promptLength int) float64 {
	if promptLength <= 0 {
		return 0
	}
	return math.Max(0, math.Min(100, float64(covered)/float64(promptLength)*100))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
