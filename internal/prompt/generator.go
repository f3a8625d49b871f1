// Package prompt supplies the text a race is typed against.
package prompt

import (
	"math/rand"
	"time"
)

// Generator produces randomized word sequences.
type Generator struct {
	rnd *rand.Rand
}

// NewGenerator returns a Generator seeded with the current time.
func NewGenerator() *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeededGenerator returns a Generator with a fixed seed.
func NewSeededGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Shuffled returns a Fisher-Yates shuffled copy of words truncated to count.
// Each word appears at most once.
func (g *Generator) Shuffled(words []string, count int) []string {
	shuffled := make([]string, len(words))
	copy(shuffled, words)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := g.rnd.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	if count < len(shuffled) {
		shuffled = shuffled[:count]
	}
	return shuffled
}

// Pick returns one entry chosen uniformly at random.
func (g *Generator) Pick(items []string) string {
	return items[g.rnd.Intn(len(items))]
}
