package stats

import (
	"context"
	"io"

	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/store"
)

// RaceLister reads race history.
type RaceLister interface {
	ListRaces(ctx context.Context, filter store.RaceFilter) ([]model.RaceSummary, error)
}

// Report contains precomputed data for history rendering.
type Report struct {
	Races  []model.RaceSummary
	Window int
	Recent int
	Plot   PlotOptions
}

// BuildReport loads race history for rendering.
func BuildReport(ctx context.Context, st RaceLister, filter store.RaceFilter, window int) (Report, error) {
	races, err := st.ListRaces(ctx, filter)
	if err != nil {
		return Report{}, err
	}
	return Report{Races: races, Window: window, Recent: 10}, nil
}

// Render writes the full history report.
func (r Report) Render(w io.Writer) error {
	if err := RenderSummary(w, r.Races); err != nil {
		return err
	}
	if err := RenderCurves(w, r.Races, r.Window, r.Plot); err != nil {
		return err
	}
	return RenderRaceTable(w, r.Races, r.Recent)
}
