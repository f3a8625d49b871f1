package race

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/verte-zerg/tuirace/internal/model"
)

// KFactor is the maximum rating swing against a single opponent.
const KFactor = 32

// Settlement is the outcome of a finished race.
type Settlement struct {
	// Participants in rank order.
	Participants    []model.Participant
	Human           model.Participant
	RatingBefore    int
	RatingDelta     int
	RatingAfter     int
	NewPersonalBest bool
}

// Settle finalizes metrics, ranks everyone and computes the human's rating
// change. It does not touch storage.
func Settle(participants []model.Participant, humanID string, k float64) Settlement {
	final := lo.Map(participants, func(p model.Participant, _ int) model.Participant {
		p.FinalSpeed = int(math.Round(p.Speed))
		p.FinalAccuracy = int(math.Round(p.Accuracy))
		return p
	})
	ranked := Rank(final)

	human, ok := lo.Find(ranked, func(p model.Participant) bool {
		return p.ID == humanID && !p.IsBot
	})
	if !ok {
		return Settlement{Participants: ranked}
	}
	bots := lo.Filter(ranked, func(p model.Participant, _ int) bool { return p.IsBot })
	delta := RatingDelta(human, bots, k)
	return Settlement{
		Participants: ranked,
		Human:        human,
		RatingBefore: human.RatingAtStart,
		RatingDelta:  delta,
		RatingAfter:  human.RatingAtStart + delta,
	}
}

// Rank returns a copy of participants ordered by progress, then final speed,
// then final accuracy, with ranks 1..N assigned. Equal participants keep
// their input order.
func Rank(participants []model.Participant) []model.Participant {
	ranked := make([]model.Participant, len(participants))
	copy(ranked, participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Progress != b.Progress {
			return a.Progress > b.Progress
		}
		if a.FinalSpeed != b.FinalSpeed {
			return a.FinalSpeed > b.FinalSpeed
		}
		return a.FinalAccuracy > b.FinalAccuracy
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// ExpectedScore is the Elo win expectation of rating against opponent.
func ExpectedScore(rating, opponent int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponent-rating)/400))
}

// RatingDelta averages the pairwise Elo adjustments of human against every
// bot and rounds the mean. No bots means no change.
func RatingDelta(human model.Participant, bots []model.Participant, k float64) int {
	if len(bots) == 0 {
		return 0
	}
	total := 0.0
	for _, bot := range bots {
		actual := 0.5
		switch {
		case human.Rank < bot.Rank:
			actual = 1
		case human.Rank > bot.Rank:
			actual = 0
		}
		total += k * (actual - ExpectedScore(human.RatingAtStart, bot.RatingAtStart))
	}
	return int(math.Round(total / float64(len(bots))))
}
