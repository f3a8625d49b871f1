// Package stats summarizes race history and renders text reports.
package stats

import (
	"fmt"
	"io"
	"strconv"

	"github.com/samber/lo"

	"github.com/verte-zerg/tuirace/internal/model"
)

// Summary aggregates a run of races.
type Summary struct {
	Races        int
	Wins         int
	AvgSpeed     float64
	BestSpeed    int
	AvgAccuracy  float64
	AvgRank      float64
	FirstRating  int
	LatestRating int
}

// Summarize computes aggregate numbers for races in chronological order.
func Summarize(races []model.RaceSummary) Summary {
	if len(races) == 0 {
		return Summary{}
	}
	count := float64(len(races))
	return Summary{
		Races:        len(races),
		Wins:         lo.CountBy(races, func(r model.RaceSummary) bool { return r.Rank == 1 }),
		AvgSpeed:     float64(lo.SumBy(races, func(r model.RaceSummary) int { return r.Speed })) / count,
		BestSpeed:    lo.MaxBy(races, func(a, b model.RaceSummary) bool { return a.Speed > b.Speed }).Speed,
		AvgAccuracy:  float64(lo.SumBy(races, func(r model.RaceSummary) int { return r.Accuracy })) / count,
		AvgRank:      float64(lo.SumBy(races, func(r model.RaceSummary) int { return r.Rank })) / count,
		FirstRating:  races[0].RatingAfter,
		LatestRating: races[len(races)-1].RatingAfter,
	}
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		n := i + 1
		if i >= window {
			sum -= values[i-window]
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// RenderSummary prints the aggregate block for races.
func RenderSummary(w io.Writer, races []model.RaceSummary) error {
	if len(races) == 0 {
		_, err := fmt.Fprintln(w, "No races found.")
		return err
	}
	s := Summarize(races)
	lines := []string{
		"Summary",
		fmt.Sprintf("Races: %d (%d won)", s.Races, s.Wins),
		fmt.Sprintf("Avg WPM: %.1f", s.AvgSpeed),
		fmt.Sprintf("Best WPM: %d", s.BestSpeed),
		fmt.Sprintf("Avg Accuracy: %.1f%%", s.AvgAccuracy),
		fmt.Sprintf("Avg Rank: %.2f", s.AvgRank),
		fmt.Sprintf("Rating: %d -> %d", s.FirstRating, s.LatestRating),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderCurves plots smoothed WPM and the rating after each race.
func RenderCurves(w io.Writer, races []model.RaceSummary, window int, opts PlotOptions) error {
	if len(races) < 2 {
		return nil
	}
	speeds := lo.Map(races, func(r model.RaceSummary, _ int) float64 { return float64(r.Speed) })
	ratings := lo.Map(races, func(r model.RaceSummary, _ int) float64 { return float64(r.RatingAfter) })
	if opts.Title == "" {
		opts.Title = "Progress"
	}
	return PlotSeries(w, []Series{
		{Name: "WPM", Values: MovingAverage(speeds, window)},
		{Name: "Rating", Values: ratings},
	}, opts)
}

// RenderRaceTable prints the most recent races, newest last.
func RenderRaceTable(w io.Writer, races []model.RaceSummary, last int) error {
	if len(races) == 0 {
		return nil
	}
	if last > 0 && len(races) > last {
		races = races[len(races)-last:]
	}
	rows := lo.Map(races, func(r model.RaceSummary, _ int) []string {
		return []string{
			r.EndedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(r.Speed),
			fmt.Sprintf("%d%%", r.Accuracy),
			fmt.Sprintf("%d/%d", r.Rank, r.Racers),
			strconv.Itoa(r.RatingAfter),
		}
	})
	if _, err := fmt.Fprintln(w, "Recent Races"); err != nil {
		return err
	}
	for _, line := range formatTable(raceColumns, rows) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderLeaderboard prints a ranked board.
func RenderLeaderboard(w io.Writer, entries []model.LeaderboardEntry, field model.RankField) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "The leaderboard is empty.")
		return err
	}
	if _, err := fmt.Fprintf(w, "Leaderboard (by %s)\n", field); err != nil {
		return err
	}
	rows := lo.Map(entries, func(e model.LeaderboardEntry, i int) []string {
		return []string{strconv.Itoa(i + 1), e.DisplayName, strconv.Itoa(e.Rating), strconv.Itoa(e.PersonalBestSpeed)}
	})
	for _, line := range formatTable(boardColumns, rows) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
