package tui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/verte-zerg/tuirace/internal/leaderboard"
	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/profile"
	"github.com/verte-zerg/tuirace/internal/race"
	"github.com/verte-zerg/tuirace/internal/store"
)

type fixedPrompt string

func (p fixedPrompt) Prompt(model.Mode) (string, error) { return string(p), nil }

type halfRand struct{}

func (halfRand) Float64() float64 { return 0.5 }

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type harness struct {
	m      *Model
	keeper *profile.Keeper
	st     *store.Store
}

func newHarness(t *testing.T, text string) harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "tuirace.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	keeper := profile.NewKeeper(profile.NewMemoryKV(), 0, zerolog.Nop())
	engine := race.NewEngine(fixedPrompt(text), keeper, zerolog.Nop(), race.Options{Rand: halfRand{}})
	m := NewModel(engine, Options{
		Config:  model.RaceConfig{Duration: 60, Mode: model.ModeWords, Bots: 2},
		Ratings: keeper,
		Board:   leaderboard.NewService(st, keeper, 10, model.RankByRating),
		History: st,
		Log:     zerolog.Nop(),
		Now:     func() time.Time { return t0.Add(10 * time.Second) },
	})
	return harness{m: m, keeper: keeper, st: st}
}

func (h harness) phase() model.Phase {
	return h.m.engine.Session().Phase
}

func (h harness) send(msg tea.Msg) tea.Cmd {
	_, cmd := h.m.Update(msg)
	return cmd
}

func (h harness) key(k tea.KeyType) tea.Cmd {
	return h.send(tea.KeyMsg{Type: k})
}

func (h harness) runes(s string) tea.Cmd {
	return h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

// startRacing presses enter and delivers the countdown ticks by hand.
func (h harness) startRacing(t *testing.T) {
	t.Helper()
	if cmd := h.key(tea.KeyEnter); cmd == nil {
		t.Fatalf("expected countdown command")
	}
	if h.phase() != model.PhaseCountdown {
		t.Fatalf("expected countdown, got %s", h.phase())
	}
	gen := h.m.engine.Generation()
	for i := 1; i <= race.CountdownTicks; i++ {
		h.send(countdownMsg{generation: gen, at: t0.Add(time.Duration(i) * time.Second)})
	}
	if h.phase() != model.PhaseRacing {
		t.Fatalf("expected racing, got %s", h.phase())
	}
}

// collect runs cmd and flattens batches. Only immediate commands may be
// passed here: ticks would block.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, c := range batch {
		out = append(out, collect(c)...)
	}
	return out
}

func TestRaceFlowRecordsAndSubmits(t *testing.T) {
	h := newHarness(t, "ab cd")
	if !strings.Contains(h.m.View(), "Opponents") {
		t.Fatalf("expected lobby view")
	}
	h.startRacing(t)

	h.runes("ab")
	h.key(tea.KeySpace)
	if len(h.m.committed) != 1 || !h.m.committed[0] || h.m.buffer != "" {
		t.Fatalf("expected one committed token, got %v buffer %q", h.m.committed, h.m.buffer)
	}
	h.runes("cx")
	if h.m.buffer != "cx" {
		t.Fatalf("expected buffer cx, got %q", h.m.buffer)
	}
	h.key(tea.KeyBackspace)
	h.runes("d")
	finish := h.key(tea.KeySpace)
	if h.phase() != model.PhaseFinished {
		t.Fatalf("expected finished, got %s", h.phase())
	}

	msgs := collect(finish)
	if len(msgs) != 2 {
		t.Fatalf("expected record and qualify results, got %d", len(msgs))
	}
	for _, msg := range msgs {
		h.send(msg)
	}
	races, err := h.st.ListRaces(context.Background(), store.RaceFilter{})
	if err != nil || len(races) != 1 {
		t.Fatalf("expected one recorded race, got %v %v", races, err)
	}
	if !h.m.qualified || !h.m.naming {
		t.Fatalf("expected empty board to qualify")
	}
	if !strings.Contains(h.m.View(), "leaderboard") {
		t.Fatalf("expected leaderboard prompt in view")
	}

	h.runes("Ada")
	submitted := collect(h.key(tea.KeyEnter))
	if len(submitted) != 1 {
		t.Fatalf("expected one submission result, got %d", len(submitted))
	}
	h.send(submitted[0])
	if !h.m.submitted || h.m.notice != "Submitted as Ada." {
		t.Fatalf("unexpected submission state: submitted=%v notice=%q", h.m.submitted, h.m.notice)
	}
	if got := h.keeper.Profile().DisplayName; got != "Ada" {
		t.Fatalf("expected local name Ada, got %q", got)
	}
	if _, ok, err := h.st.Get(context.Background(), "ada"); err != nil || !ok {
		t.Fatalf("expected entry on the board: %v %v", ok, err)
	}
}

func TestSubmitEmptyNameShowsMessage(t *testing.T) {
	h := newHarness(t, "a")
	h.startRacing(t)
	for _, msg := range collect(h.runes("a ")) {
		h.send(msg)
	}
	if !h.m.naming {
		t.Fatalf("expected naming prompt")
	}
	if cmd := h.key(tea.KeyEnter); cmd != nil {
		t.Fatalf("expected no submission for an empty name")
	}
	if h.m.notice != leaderboard.UserMessage(leaderboard.ErrNameRequired) {
		t.Fatalf("unexpected notice: %q", h.m.notice)
	}
}

func TestStaleResultsIgnoredAfterReset(t *testing.T) {
	h := newHarness(t, "a")
	h.startRacing(t)
	old := h.m.engine.Generation()
	collect(h.runes("a "))

	h.key(tea.KeyEnter)
	if h.phase() != model.PhaseWaiting {
		t.Fatalf("expected a fresh race, got %s", h.phase())
	}
	h.send(qualifiedMsg{generation: old, ok: true})
	if h.m.qualified || h.m.naming {
		t.Fatalf("stale qualification applied to new race")
	}
	h.send(submittedMsg{generation: old, entry: model.LeaderboardEntry{DisplayName: "x"}})
	if h.m.submitted {
		t.Fatalf("stale submission applied to new race")
	}
}

func TestEscAbandonsRace(t *testing.T) {
	h := newHarness(t, "ab cd")
	h.startRacing(t)
	gen := h.m.engine.Generation()
	h.runes("a")
	h.key(tea.KeyEsc)
	if h.phase() != model.PhaseWaiting || h.m.buffer != "" {
		t.Fatalf("expected reset to lobby, got %s buffer %q", h.phase(), h.m.buffer)
	}
	if cmd := h.send(clockMsg{generation: gen, at: t0.Add(2 * time.Minute)}); cmd != nil {
		t.Fatalf("stale clock tick scheduled more work")
	}
	if h.phase() != model.PhaseWaiting {
		t.Fatalf("stale clock tick changed phase to %s", h.phase())
	}
}

func TestLobbyCyclesModeAndDuration(t *testing.T) {
	h := newHarness(t, "a")
	h.key(tea.KeyTab)
	if h.m.config.Mode != model.ModeLiterature {
		t.Fatalf("expected literature, got %s", h.m.config.Mode)
	}
	h.key(tea.KeyShiftTab)
	h.key(tea.KeyShiftTab)
	if h.m.config.Mode != model.ModeCode {
		t.Fatalf("expected wrap to code, got %s", h.m.config.Mode)
	}
	h.key(tea.KeyLeft)
	if h.m.config.Duration != 300 {
		t.Fatalf("expected wrap to 300, got %d", h.m.config.Duration)
	}
	if got := h.m.engine.Session().Config.Duration; got != 300 {
		t.Fatalf("expected session reset with new duration, got %d", got)
	}
}

func TestRenderFooterPerPhase(t *testing.T) {
	h := newHarness(t, "a")
	cases := map[model.Phase]string{
		model.PhaseWaiting:   "enter start",
		model.PhaseCountdown: "get ready",
		model.PhaseRacing:    "esc abandon",
		model.PhaseFinished:  "race again",
	}
	for phase, want := range cases {
		if out := h.m.renderFooter(phase); !strings.Contains(out, want) {
			t.Fatalf("%s footer missing %q: %s", phase, want, out)
		}
	}
}

func TestFormatClockAndOrdinal(t *testing.T) {
	if got := formatClock(61500 * time.Millisecond); got != "1:02" {
		t.Fatalf("unexpected clock: %s", got)
	}
	if got := formatClock(-time.Second); got != "0:00" {
		t.Fatalf("unexpected clock: %s", got)
	}
	for n, want := range map[int]string{1: "1st", 2: "2nd", 3: "3rd", 4: "4th", 11: "11th", 22: "22nd"} {
		if got := ordinal(n); got != want {
			t.Fatalf("ordinal(%d) = %s, want %s", n, got, want)
		}
	}
}
