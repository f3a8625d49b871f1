package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/race"
)

const (
	nameColumnWidth = 16
	statColumnWidth = 8
	minBarWidth     = 10
)

// View implements tea.Model.
func (m *Model) View() string {
	s := m.engine.Session()
	var body string
	switch s.Phase {
	case model.PhaseWaiting:
		body = m.renderLobby(s)
	case model.PhaseCountdown:
		body = countdownStyle.Render(fmt.Sprintf("%d", s.Countdown))
	case model.PhaseRacing:
		body = m.renderRacing(s)
	case model.PhaseFinished:
		body = m.renderFinished(s)
	}
	header := m.renderHeader(s)
	footer := m.renderFooter(s.Phase)
	if m.width == 0 || m.height == 0 {
		return strings.Join([]string{header, "", body, "", footer}, "\n")
	}
	if m.height < 5 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
	}
	content := lipgloss.NewStyle().Width(m.contentWidth()).Render(body)
	bodyHeight := m.height - 2
	return lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Top, header) + "\n" +
		lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, content) + "\n" +
		lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
}

func (m *Model) contentWidth() int {
	if m.width == 0 {
		return 80
	}
	return max(1, int(float64(m.width)*0.70))
}

func (m *Model) renderHeader(s race.Session) string {
	human := s.Human()
	tier := race.TierFor(human.RatingAtStart)
	return titleStyle.Render("tuirace") + footerStyle.Render(fmt.Sprintf("  %s · %s · rating %d (%s)",
		s.Config.Mode, formatClock(time.Duration(s.Config.Duration)*time.Second), human.RatingAtStart, tier.Name))
}

func (m *Model) renderLobby(s race.Session) string {
	lines := []string{}
	if m.notice != "" {
		lines = append(lines, incorrectStyle.Render(m.notice), "")
	}
	names := []string{}
	for _, p := range s.Participants {
		if p.IsBot {
			names = append(names, fmt.Sprintf("%s (%d)", p.DisplayName, p.RatingAtStart))
		}
	}
	if len(names) > 0 {
		lines = append(lines, "Opponents: "+strings.Join(names, ", "), "")
	}
	if s.Prompt != "" {
		lines = append(lines, pendingStyle.Render(wrapPlain(s.Prompt, m.contentWidth())))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderRacing(s race.Session) string {
	human := s.Human()
	status := fmt.Sprintf("%s left  %d WPM  %d%%", formatClock(s.Remaining), int(math.Round(human.Speed)), int(math.Round(human.Accuracy)))
	lines := []string{status, "", m.renderLanes(s.Participants), ""}

	styled := buildStyledRunes(promptState{
		tokens:     s.Tokens,
		committed:  m.committed,
		buffer:     m.buffer,
		showCursor: true,
	})
	lines = append(lines, wrapStyledRunes(styled, m.contentWidth()), "", "> "+m.buffer)
	return strings.Join(lines, "\n")
}

func (m *Model) renderLanes(participants []model.Participant) string {
	barWidth := max(minBarWidth, m.contentWidth()-nameColumnWidth-statColumnWidth-2)
	m.bar.Width = barWidth
	lanes := make([]string, 0, len(participants))
	for _, p := range participants {
		name := runewidth.FillRight(runewidth.Truncate(p.DisplayName, nameColumnWidth-1, "…"), nameColumnWidth)
		if !p.IsBot {
			name = humanStyle.Render(name)
		}
		stat := fmt.Sprintf("%*d WPM", statColumnWidth-4, int(math.Round(p.Speed)))
		lanes = append(lanes, name+m.bar.ViewAs(p.Progress/100)+" "+stat)
	}
	return strings.Join(lanes, "\n")
}

func (m *Model) renderFinished(s race.Session) string {
	if s.Settlement == nil {
		return ""
	}
	st := *s.Settlement
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Finished %s of %d", ordinal(st.Human.Rank), len(st.Participants))),
		"",
		resultsTable(st.Participants).View(),
		"",
		ratingLine(st),
	}
	if st.NewPersonalBest {
		lines = append(lines, gainStyle.Render(fmt.Sprintf("New personal best: %d WPM", st.Human.FinalSpeed)))
	}
	if m.naming {
		lines = append(lines, "", "You made the leaderboard!", m.nameInput.View())
	} else if m.qualified && !m.submitted {
		lines = append(lines, "", "You made the leaderboard! Press s to submit.")
	}
	if m.notice != "" {
		lines = append(lines, "", m.notice)
	}
	return strings.Join(lines, "\n")
}

func resultsTable(participants []model.Participant) table.Model {
	columns := []table.Column{
		{Title: "#", Width: 3},
		{Title: "Racer", Width: nameColumnWidth},
		{Title: "WPM", Width: 5},
		{Title: "Acc", Width: 5},
		{Title: "Done", Width: 5},
	}
	rows := make([]table.Row, 0, len(participants))
	for _, p := range participants {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", p.Rank),
			p.DisplayName,
			fmt.Sprintf("%d", p.FinalSpeed),
			fmt.Sprintf("%d%%", p.FinalAccuracy),
			fmt.Sprintf("%d%%", int(math.Floor(p.Progress))),
		})
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(len(rows)+1),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Bold(true)
	styles.Selected = styles.Cell
	t.SetStyles(styles)
	t.Blur()
	return t
}

func ratingLine(st race.Settlement) string {
	delta := fmt.Sprintf("%+d", st.RatingDelta)
	if st.RatingDelta > 0 {
		delta = gainStyle.Render(delta)
	} else if st.RatingDelta < 0 {
		delta = incorrectStyle.Render(delta)
	}
	return fmt.Sprintf("Rating %d → %d (%s)", st.RatingBefore, st.RatingAfter, delta)
}

func (m *Model) renderFooter(phase model.Phase) string {
	var help string
	switch phase {
	case model.PhaseWaiting:
		help = "enter start · tab mode · ←/→ duration · ctrl+r new prompt · esc quit"
	case model.PhaseCountdown:
		help = "get ready · esc cancel"
	case model.PhaseRacing:
		help = "space commits a word · esc abandon"
	case model.PhaseFinished:
		switch {
		case m.naming:
			help = "enter submit · esc skip"
		default:
			help = "enter race again · esc quit"
		}
	}
	return footerStyle.Render(help)
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(math.Ceil(d.Seconds()))
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

func wrapPlain(text string, width int) string {
	runes := make([]styledRune, 0, len(text))
	for _, r := range text {
		runes = append(runes, styledRune{s: string(r), width: runewidth.RuneWidth(r), isSpace: r == ' '})
	}
	return wrapStyledRunes(runes, width)
}
