// Package race implements the race engine: opponent pacing, live metrics,
// the phase state machine and end-of-race settlement.
package race

import (
	"math"
	"math/rand"
	"time"
)

// Opponent speed bounds in words per minute.
const (
	MinBotSpeed = 10
	MaxBotSpeed = 200

	// BiasStrength scales how far a player's position inside a tier shifts
	// opponent speed.
	BiasStrength = 0.75

	// Width used to normalize positions inside the unbounded top tier.
	topTierSpan = 400
)

// Tier is a rating band with an opponent speed distribution.
type Tier struct {
	Name      string
	MinRating int
	// MaxRating is inclusive. Zero marks the unbounded top tier.
	MaxRating int
	BaseSpeed float64
	Spread    float64
}

// Tiers are ordered by ascending rating.
var Tiers = []Tier{
	{Name: "Beginner", MinRating: 0, MaxRating: 999, BaseSpeed: 35, Spread: 8},
	{Name: "Novice", MinRating: 1000, MaxRating: 1200, BaseSpeed: 50, Spread: 10},
	{Name: "Intermediate", MinRating: 1201, MaxRating: 1400, BaseSpeed: 65, Spread: 12},
	{Name: "Advanced", MinRating: 1401, MaxRating: 1600, BaseSpeed: 80, Spread: 15},
	{Name: "Expert", MinRating: 1601, MaxRating: 1800, BaseSpeed: 95, Spread: 18},
	{Name: "Master", MinRating: 1801, BaseSpeed: 110, Spread: 20},
}

// Rand is the randomness the generators need. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// NewRand returns a time-seeded random source.
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// SpeedGenerator produces opponent typing speeds.
type SpeedGenerator struct {
	rnd Rand
}

// NewSpeedGenerator returns a generator drawing from rnd. A nil rnd uses a
// time-seeded source.
func NewSpeedGenerator(rnd Rand) *SpeedGenerator {
	if rnd == nil {
		rnd = NewRand()
	}
	return &SpeedGenerator{rnd: rnd}
}

// GenerateSpeed returns a plausible opponent speed for a player at rating.
func (g *SpeedGenerator) GenerateSpeed(playerRating int) int {
	if playerRating < 0 {
		playerRating = 0
	}
	tier := TierFor(playerRating)
	bias := (tierPosition(tier, playerRating) - 0.5) * BiasStrength
	raw := tier.BaseSpeed + (g.normal()+bias)*tier.Spread
	return clampSpeed(raw)
}

// TierFor returns the tier containing rating.
func TierFor(rating int) Tier {
	for _, tier := range Tiers {
		if rating >= tier.MinRating && (tier.MaxRating == 0 || rating <= tier.MaxRating) {
			return tier
		}
	}
	return Tiers[0]
}

// tierPosition maps rating onto [0,1] within the tier's range.
func tierPosition(tier Tier, rating int) float64 {
	ceiling := tier.MaxRating
	if ceiling == 0 {
		ceiling = tier.MinRating + topTierSpan
	}
	span := float64(ceiling - tier.MinRating)
	if span <= 0 {
		return 0.5
	}
	pos := float64(rating-tier.MinRating) / span
	return math.Max(0, math.Min(1, pos))
}

// normal draws a standard normal sample with the Box-Muller transform.
func (g *SpeedGenerator) normal() float64 {
	u1 := g.rnd.Float64()
	for u1 == 0 {
		u1 = g.rnd.Float64()
	}
	u2 := g.rnd.Float64()
	for u2 == 0 {
		u2 = g.rnd.Float64()
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func clampSpeed(raw float64) int {
	if math.IsNaN(raw) {
		return MinBotSpeed
	}
	speed := int(math.Round(raw))
	if speed < MinBotSpeed {
		return MinBotSpeed
	}
	if speed > MaxBotSpeed {
		return MaxBotSpeed
	}
	return speed
}
