package prompt

// commonWords is the built-in pool for the words mode.
var commonWords = []string{
	"the", "be", "to", "of", "and", "a", "in", "that", "have", "I",
	"it", "for", "not", "on", "with", "he", "as", "you", "do", "at",
	"this", "but", "his", "by", "from", "they", "we", "say", "her", "she",
	"or", "an", "will", "my", "one", "all", "would", "there", "their", "what",
	"so", "up", "out", "if", "about", "who", "get", "which", "go", "me",
	"when", "make", "can", "like", "time", "no", "just", "him", "know", "take",
	"people", "into", "year", "your", "good", "some", "could", "them", "see", "other",
	"than", "then", "now", "look", "only", "come", "its", "over", "think", "also",
	"back", "after", "use", "two", "how", "our", "work", "first", "well", "way",
	"even", "new", "want", "because", "any", "these", "give", "day", "most", "us",
	"great", "between", "need", "large", "often", "hand", "high", "place", "hold", "turn",
	"where", "much", "before", "line", "right", "too", "mean", "old", "same", "tell",
	"follow", "around", "three", "small", "set", "put", "end", "does", "another", "read",
}

var literatureExcerpts = []string{
	"It was the best of times, it was the worst of times, it was the age of wisdom, it was the age of foolishness, it was the epoch of belief, it was the epoch of incredulity.",
	"It is a truth universally acknowledged, that a single man in possession of a good fortune, must be in want of a wife.",
	"Call me Ishmael. Some years ago, never mind how long precisely, having little or no money in my purse, and nothing particular to interest me on shore, I thought I would sail about a little and see the watery part of the world.",
	"Mr. Utterson the lawyer was a man of a rugged countenance that was never lighted by a smile; cold, scanty and embarrassed in discourse; backward in sentiment; lean, long, dusty, dreary and yet somehow lovable.",
	"All happy families are alike; each unhappy family is unhappy in its own way. Everything was in confusion in the Oblonskys' house.",
	"Alice was beginning to get very tired of sitting by her sister on the bank, and of having nothing to do: once or twice she had peeped into the book her sister was reading, but it had no pictures or conversations in it.",
	"You will rejoice to hear that no disaster has accompanied the commencement of an enterprise which you have regarded with such evil forebodings.",
	"Whether I shall turn out to be the hero of my own life, or whether that station will be held by anybody else, these pages must show.",
}

var codeSnippets = []string{
	`func add(a, b int) int {
	return a + b
}`,
	`for i := 0; i < len(items); i++ {
	total += items[i].Price * items[i].Qty
}`,
	`if err != nil {
	return fmt.Errorf("failed to open file: %w", err)
}`,
	`type Point struct {
	X, Y float64
}

func (p Point) Len() float64 { return math.Hypot(p.X, p.Y) }`,
	`select {
case msg := <-inbox:
	handle(msg)
case <-ctx.Done():
	return ctx.Err()
}`,
	`const words = text.split(" ").filter((w) => w.length > 0);
console.log(words.length);`,
	`SELECT name, rating FROM players WHERE rating > 1200 ORDER BY rating DESC LIMIT 10;`,
}
