// Package tui provides the Bubble Tea race screen.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/verte-zerg/tuirace/internal/leaderboard"
	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/race"
)

const backendTimeout = 10 * time.Second

// HistoryRecorder stores settled races.
type HistoryRecorder interface {
	InsertRace(ctx context.Context, rec model.RaceRecord) (int64, error)
}

// Options wires the race screen to its collaborators. Board and History
// may be nil.
type Options struct {
	Config  model.RaceConfig
	Ratings race.RatingStore
	Board   *leaderboard.Service
	History HistoryRecorder
	Log     zerolog.Logger
	Now     func() time.Time
}

type countdownMsg struct {
	generation uint64
	at         time.Time
}

type clockMsg struct {
	generation uint64
	at         time.Time
}

type qualifiedMsg struct {
	generation uint64
	ok         bool
	err        error
}

type submittedMsg struct {
	generation uint64
	entry      model.LeaderboardEntry
	err        error
}

type recordedMsg struct {
	err error
}

// Model implements the Bubble Tea race UI.
type Model struct {
	engine  *race.Engine
	ratings race.RatingStore
	board   *leaderboard.Service
	history HistoryRecorder
	log     zerolog.Logger
	now     func() time.Time
	config  model.RaceConfig

	width  int
	height int

	buffer    string
	committed []bool

	qualified  bool
	naming     bool
	submitting bool
	submitted  bool
	notice     string
	nameInput  textinput.Model
	bar        progress.Model
}

var (
	correctStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	incorrectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	pendingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	currentWordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	cursorStyle      = pendingStyle.Underline(true)
	footerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	titleStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	humanStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	gainStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	countdownStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true).Padding(1, 4)
)

// NewModel constructs the race screen and prepares the first race.
func NewModel(engine *race.Engine, opts Options) *Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	input := textinput.New()
	input.Prompt = "Name: "
	input.Placeholder = "display name"
	input.CharLimit = leaderboard.MaxNameLength

	m := &Model{
		engine:    engine,
		ratings:   opts.Ratings,
		board:     opts.Board,
		history:   opts.History,
		log:       opts.Log,
		now:       opts.Now,
		config:    opts.Config,
		nameInput: input,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
	m.reset()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case countdownMsg:
		return m, m.run(m.engine.Dispatch(race.CountdownTick{Generation: msg.generation, At: msg.at}))
	case clockMsg:
		return m, m.run(m.engine.Dispatch(race.ClockTick{Generation: msg.generation, At: msg.at}))
	case qualifiedMsg:
		return m, m.handleQualified(msg)
	case submittedMsg:
		m.handleSubmitted(msg)
		return m, nil
	case recordedMsg:
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Msg("failed to record race")
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.engine.Dispatch(race.Abandon{})
			return m, tea.Quit
		}
		switch m.engine.Session().Phase {
		case model.PhaseWaiting:
			return m.updateLobby(msg)
		case model.PhaseCountdown:
			if msg.Type == tea.KeyEsc {
				m.reset()
			}
			return m, nil
		case model.PhaseRacing:
			return m.updateRacing(msg)
		case model.PhaseFinished:
			return m.updateFinished(msg)
		}
	}
	if m.naming {
		var cmd tea.Cmd
		m.nameInput, cmd = m.nameInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) updateLobby(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyEnter:
		return m, m.run(m.engine.Dispatch(race.Start{}))
	case tea.KeyTab:
		m.config.Mode = nextMode(m.config.Mode, 1)
		m.reset()
	case tea.KeyShiftTab:
		m.config.Mode = nextMode(m.config.Mode, -1)
		m.reset()
	case tea.KeyRight:
		m.config.Duration = nextDuration(m.config.Duration, 1)
		m.reset()
	case tea.KeyLeft:
		m.config.Duration = nextDuration(m.config.Duration, -1)
		m.reset()
	case tea.KeyCtrlR:
		m.reset()
	case tea.KeyRunes:
		if string(msg.Runes) == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) updateRacing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.reset()
		return m, nil
	case tea.KeyBackspace, tea.KeyDelete:
		if m.buffer == "" {
			return m, nil
		}
		runes := []rune(m.buffer)
		return m, m.input(string(runes[:len(runes)-1]))
	case tea.KeySpace:
		return m, m.typeRunes([]rune{race.Separator})
	case tea.KeyRunes:
		return m, m.typeRunes(msg.Runes)
	}
	return m, nil
}

func (m *Model) updateFinished(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.naming {
		switch msg.Type {
		case tea.KeyEsc:
			m.naming = false
			m.nameInput.Blur()
			return m, nil
		case tea.KeyEnter:
			return m, m.submit()
		}
		var cmd tea.Cmd
		m.nameInput, cmd = m.nameInput.Update(msg)
		return m, cmd
	}
	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyEnter, tea.KeyCtrlR:
		m.reset()
	case tea.KeyRunes:
		switch string(msg.Runes) {
		case "q":
			return m, tea.Quit
		case "s":
			if m.qualified && !m.submitted {
				m.naming = true
				return m, m.nameInput.Focus()
			}
		}
	}
	return m, nil
}

// reset abandons whatever is running and prepares a fresh race.
func (m *Model) reset() {
	m.engine.Dispatch(race.Reset{Config: m.config})
	m.buffer = ""
	m.committed = nil
	m.qualified = false
	m.naming = false
	m.submitting = false
	m.submitted = false
	m.notice = ""
	m.nameInput.Blur()
	if err := m.engine.Session().PromptErr; err != nil {
		m.notice = fmt.Sprintf("No prompt available: %v", err)
	}
}

func (m *Model) typeRunes(runes []rune) tea.Cmd {
	var cmds []tea.Cmd
	for _, r := range runes {
		if m.engine.Session().Phase != model.PhaseRacing {
			break
		}
		cmds = append(cmds, m.input(m.buffer+string(r)))
	}
	return tea.Batch(cmds...)
}

// input feeds the new buffer value to the engine and tracks committed
// tokens for highlighting.
func (m *Model) input(value string) tea.Cmd {
	before := m.engine.Session()
	effects := m.engine.Dispatch(race.Input{Value: value, At: m.now()})
	after := m.engine.Session()
	if after.Cursor > before.Cursor && before.Cursor < len(before.Tokens) {
		attempt := strings.TrimSuffix(value, string(race.Separator))
		m.committed = append(m.committed, attempt == before.Tokens[before.Cursor])
	}
	m.buffer = after.Buffer
	return m.run(effects)
}

// run turns engine effects into commands.
func (m *Model) run(effects []race.Effect) tea.Cmd {
	var cmds []tea.Cmd
	for _, eff := range effects {
		switch eff := eff.(type) {
		case race.ScheduleCountdown:
			cmds = append(cmds, tea.Tick(eff.After, func(t time.Time) tea.Msg {
				return countdownMsg{generation: eff.Generation, at: t}
			}))
		case race.ScheduleClock:
			cmds = append(cmds, tea.Tick(eff.After, func(t time.Time) tea.Msg {
				return clockMsg{generation: eff.Generation, at: t}
			}))
		case race.Finished:
			cmds = append(cmds, m.finished(eff)...)
		}
	}
	return tea.Batch(cmds...)
}

func (m *Model) finished(eff race.Finished) []tea.Cmd {
	var cmds []tea.Cmd
	s := m.engine.Session()
	if m.history != nil {
		rec := raceRecord(s, eff.Settlement)
		history := m.history
		cmds = append(cmds, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
			defer cancel()
			_, err := history.InsertRace(ctx, rec)
			return recordedMsg{err: err}
		})
	}
	if m.board != nil && m.ratings != nil {
		board := m.board
		profile := m.ratings.Profile()
		generation := eff.Generation
		cmds = append(cmds, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
			defer cancel()
			ok, err := board.Qualifies(ctx, profile.Rating, profile.PersonalBestSpeed)
			return qualifiedMsg{generation: generation, ok: ok, err: err}
		})
	}
	return cmds
}

func (m *Model) handleQualified(msg qualifiedMsg) tea.Cmd {
	if msg.generation != m.engine.Generation() {
		return nil
	}
	if msg.err != nil {
		m.log.Warn().Err(msg.err).Msg("failed to check leaderboard")
		m.notice = leaderboard.UserMessage(msg.err)
		return nil
	}
	if !msg.ok {
		return nil
	}
	m.qualified = true
	m.naming = true
	m.nameInput.SetValue(m.ratings.Profile().DisplayName)
	return m.nameInput.Focus()
}

func (m *Model) submit() tea.Cmd {
	if m.submitting || m.board == nil || m.ratings == nil {
		return nil
	}
	name := m.nameInput.Value()
	if _, err := leaderboard.ValidateName(name); err != nil {
		m.notice = leaderboard.UserMessage(err)
		return nil
	}
	m.submitting = true
	m.notice = "Submitting..."
	board := m.board
	profile := m.ratings.Profile()
	generation := m.engine.Generation()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		entry, err := board.Submit(ctx, name, profile.Rating, profile.PersonalBestSpeed)
		return submittedMsg{generation: generation, entry: entry, err: err}
	}
}

func (m *Model) handleSubmitted(msg submittedMsg) {
	if msg.generation != m.engine.Generation() {
		return
	}
	m.submitting = false
	if msg.err != nil {
		m.log.Warn().Err(msg.err).Msg("leaderboard submission failed")
		m.notice = leaderboard.UserMessage(msg.err)
		return
	}
	m.log.Info().Str("name", msg.entry.DisplayName).Int("rating", msg.entry.Rating).Msg("submitted to leaderboard")
	m.submitted = true
	m.naming = false
	m.nameInput.Blur()
	m.notice = fmt.Sprintf("Submitted as %s.", msg.entry.DisplayName)
}

func raceRecord(s race.Session, st race.Settlement) model.RaceRecord {
	return model.RaceRecord{
		RaceID:       s.ID,
		StartedAt:    s.StartedAt,
		EndedAt:      s.EndedAt,
		Mode:         s.Config.Mode,
		Duration:     s.Config.Duration,
		PromptChars:  s.PromptLength(),
		CorrectChars: s.CorrectChars,
		TotalChars:   s.TotalChars,
		Speed:        st.Human.FinalSpeed,
		Accuracy:     st.Human.FinalAccuracy,
		Rank:         st.Human.Rank,
		Racers:       len(st.Participants),
		RatingBefore: st.RatingBefore,
		RatingAfter:  st.RatingAfter,
	}
}

func nextMode(current model.Mode, step int) model.Mode {
	idx := slices.Index(model.Modes, current)
	if idx < 0 {
		return model.Modes[0]
	}
	n := len(model.Modes)
	return model.Modes[((idx+step)%n+n)%n]
}

func nextDuration(current, step int) int {
	idx := slices.Index(model.Durations, current)
	if idx < 0 {
		return model.Durations[0]
	}
	n := len(model.Durations)
	return model.Durations[((idx+step)%n+n)%n]
}
