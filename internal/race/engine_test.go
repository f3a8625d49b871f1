package race

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/verte-zerg/tuirace/internal/model"
)

type fixedPrompt struct {
	text string
	err  error
}

func (f fixedPrompt) Prompt(model.Mode) (string, error) {
	return f.text, f.err
}

type fakeRatings struct {
	profile      model.Profile
	ratingWrites int
	speedWrites  int
}

func (f *fakeRatings) Profile() model.Profile { return f.profile }

func (f *fakeRatings) UpdateRating(newRating int) int {
	f.ratingWrites++
	if newRating < 0 {
		newRating = 0
	}
	f.profile.Rating = newRating
	return newRating
}

func (f *fakeRatings) UpdateBestSpeed(candidate int) bool {
	f.speedWrites++
	if candidate > f.profile.PersonalBestSpeed {
		f.profile.PersonalBestSpeed = candidate
		return true
	}
	return false
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(text string) (*Engine, *fakeRatings) {
	ratings := &fakeRatings{profile: model.Profile{Rating: 1000, DisplayName: "ada"}}
	e := NewEngine(fixedPrompt{text: text}, ratings, zerolog.Nop(), Options{Rand: zeroNormal()})
	return e, ratings
}

// startRace resets, counts down and returns the racing start instant.
func startRace(t *testing.T, e *Engine, cfg model.RaceConfig) time.Time {
	t.Helper()
	e.Dispatch(Reset{Config: cfg})
	effects := e.Dispatch(Start{})
	if len(effects) != 1 {
		t.Fatalf("expected countdown effect, got %v", effects)
	}
	gen := e.Generation()
	at := t0
	for i := 0; i < CountdownTicks; i++ {
		at = at.Add(CountdownInterval)
		effects = e.Dispatch(CountdownTick{Generation: gen, At: at})
	}
	if e.Session().Phase != model.PhaseRacing {
		t.Fatalf("expected racing after countdown, got %s", e.Session().Phase)
	}
	if len(effects) != 1 {
		t.Fatalf("expected clock effect, got %v", effects)
	}
	if _, ok := effects[0].(ScheduleClock); !ok {
		t.Fatalf("expected ScheduleClock, got %T", effects[0])
	}
	return at
}

func typeToken(e *Engine, token string, at time.Time) []Effect {
	var effects []Effect
	runes := []rune(token)
	for i := 1; i <= len(runes); i++ {
		effects = e.Dispatch(Input{Value: string(runes[:i]), At: at})
	}
	return append(effects, e.Dispatch(Input{Value: token + " ", At: at})...)
}

func TestResetBuildsParticipants(t *testing.T) {
	e, _ := newTestEngine("one two three")
	e.Dispatch(Reset{Config: model.RaceConfig{Duration: 60, Mode: model.ModeWords, Bots: 3}})
	s := e.Session()
	if s.Phase != model.PhaseWaiting || !e.Ready() {
		t.Fatalf("expected ready waiting session, got %+v", s)
	}
	if len(s.Participants) != 4 {
		t.Fatalf("expected 4 participants, got %d", len(s.Participants))
	}
	human := s.Human()
	if human.ID != HumanID || human.DisplayName != "ada" || human.RatingAtStart != 1000 {
		t.Fatalf("unexpected human: %+v", human)
	}
	seen := map[string]bool{}
	for _, p := range s.Participants[1:] {
		if !p.IsBot {
			t.Fatalf("expected bot, got %+v", p)
		}
		if seen[p.ID] {
			t.Fatalf("duplicate participant id %s", p.ID)
		}
		seen[p.ID] = true
		if p.RatingAtStart < 900 || p.RatingAtStart > 1100 {
			t.Fatalf("bot rating %d outside spread", p.RatingAtStart)
		}
		if p.Accuracy < 90 || p.Accuracy > 99 {
			t.Fatalf("bot accuracy %v outside range", p.Accuracy)
		}
	}
	if s.Remaining != time.Minute {
		t.Fatalf("expected a full minute remaining, got %v", s.Remaining)
	}
}

func TestBotRatingFloor(t *testing.T) {
	ratings := &fakeRatings{profile: model.Profile{Rating: 0}}
	e := NewEngine(fixedPrompt{text: "a b"}, ratings, zerolog.Nop(), Options{Rand: &seqRand{values: []float64{0}}})
	e.Dispatch(Reset{Config: model.RaceConfig{Duration: 60, Bots: 2}})
	for _, p := range e.Session().Participants {
		if p.IsBot && p.RatingAtStart != minBotRating {
			t.Fatalf("expected bot rating floor %d, got %d", minBotRating, p.RatingAtStart)
		}
	}
	if name := e.Session().Human().DisplayName; name != defaultHumanName {
		t.Fatalf("expected default name, got %q", name)
	}
}

func TestStartRequiresPrompt(t *testing.T) {
	ratings := &fakeRatings{profile: model.Profile{Rating: 1000}}
	e := NewEngine(fixedPrompt{err: errors.New("offline")}, ratings, zerolog.Nop(), Options{Rand: zeroNormal()})
	if effects := e.Dispatch(Start{}); effects != nil {
		t.Fatalf("start before reset should be ignored, got %v", effects)
	}
	e.Dispatch(Reset{Config: model.RaceConfig{Duration: 60}})
	if e.Ready() {
		t.Fatalf("expected session without prompt to be not ready")
	}
	if e.Session().PromptErr == nil {
		t.Fatalf("expected prompt error recorded")
	}
	if effects := e.Dispatch(Start{}); effects != nil {
		t.Fatalf("expected start to be ignored, got %v", effects)
	}
	if e.Session().Phase != model.PhaseWaiting {
		t.Fatalf("expected waiting phase, got %s", e.Session().Phase)
	}
}

func TestStartAssignsBotSpeeds(t *testing.T) {
	e, _ := newTestEngine("a b c")
	e.Dispatch(Reset{Config: model.RaceConfig{Duration: 60, Bots: 2}})
	e.Dispatch(Start{})
	if e.Session().Phase != model.PhaseCountdown {
		t.Fatalf("expected countdown, got %s", e.Session().Phase)
	}
	for _, p := range e.Session().Participants {
		if p.IsBot && p.Speed != 46 {
			t.Fatalf("expected bot speed 46 for a 1000 rated human, got %v", p.Speed)
		}
	}
	if effects := e.Dispatch(Start{}); effects != nil {
		t.Fatalf("second start should be ignored, got %v", effects)
	}
}

func TestStaleTimersIgnored(t *testing.T) {
	e, _ := newTestEngine("a b c")
	e.Dispatch(Reset{Config: model.RaceConfig{Duration: 60, Bots: 1}})
	e.Dispatch(Start{})
	old := e.Generation()

	e.Dispatch(Reset{Config: model.RaceConfig{Duration: 60, Bots: 1}})
	if e.Generation() == old {
		t.Fatalf("expected generation to change on reset")
	}
	if effects := e.Dispatch(CountdownTick{Generation: old, At: t0}); effects != nil {
		t.Fatalf("stale countdown tick produced %v", effects)
	}
	if e.Session().Phase != model.PhaseWaiting || e.Session().Countdown != CountdownTicks {
		t.Fatalf("stale tick mutated session: %+v", e.Session())
	}
	if effects := e.Dispatch(ClockTick{Generation: old, At: t0}); effects != nil {
		t.Fatalf("stale clock tick produced %v", effects)
	}
}

func TestAbandonStalesTimers(t *testing.T) {
	e, ratings := newTestEngine("a b c")
	start := startRace(t, e, model.RaceConfig{Duration: 60, Bots: 1})
	gen := e.Generation()
	e.Dispatch(Abandon{})
	if effects := e.Dispatch(ClockTick{Generation: gen, At: start.Add(2 * time.Minute)}); effects != nil {
		t.Fatalf("clock tick after abandon produced %v", effects)
	}
	if ratings.ratingWrites != 0 {
		t.Fatalf("abandoned race must not settle")
	}
	if e.Ready() {
		t.Fatalf("abandoned engine should not be ready")
	}
}

func TestInputIgnoredOutsideRacing(t *testing.T) {
	e, _ := newTestEngine("a b c")
	e.Dispatch(Reset{Config: model.RaceConfig{Duration: 60, Bots: 1}})
	e.Dispatch(Input{Value: "a", At: t0})
	if s := e.Session(); s.TotalChars != 0 || s.Buffer != "" {
		t.Fatalf("input before racing changed session: %+v", s)
	}
}

func TestCommitRequiresExactToken(t *testing.T) {
	e, _ := newTestEngine("cat dog")
	start := startRace(t, e, model.RaceConfig{Duration: 60, Bots: 1})
	at := start.Add(5 * time.Second)

	e.Dispatch(Input{Value: "c", At: at})
	e.Dispatch(Input{Value: "ca", At: at})
	e.Dispatch(Input{Value: "cap", At: at})
	e.Dispatch(Input{Value: "cap ", At: at})

	s := e.Session()
	if s.Cursor != 1 || s.Buffer != "" {
		t.Fatalf("expected cursor to advance past wrong token, got cursor=%d buffer=%q", s.Cursor, s.Buffer)
	}
	if s.CorrectChars != 0 || s.TotalChars != 4 {
		t.Fatalf("expected 0 correct of 4 total, got %d/%d", s.CorrectChars, s.TotalChars)
	}
	if got, want := s.Human().Progress, 4.0/7*100; !approx(got, want) {
		t.Fatalf("expected progress %v after the first token, got %v", want, got)
	}
}

func TestLiveProgressTracksPrefix(t *testing.T) {
	e, _ := newTestEngine("abcd efgh")
	start := startRace(t, e, model.RaceConfig{Duration: 60, Bots: 1})
	e.Dispatch(Input{Value: "ab", At: start.Add(time.Second)})
	s := e.Session()
	if s.Buffer != "ab" || s.Cursor != 0 {
		t.Fatalf("unexpected buffer state: %+v", s)
	}
	want := 2.0 / 9 * 100
	if got := s.Human().Progress; !approx(got, want) {
		t.Fatalf("expected progress %v, got %v", want, got)
	}
}

func TestFinishOnLastToken(t *testing.T) {
	tokens := make([]string, 40)
	for i := range tokens {
		tokens[i] = "abcd"
	}
	e, ratings := newTestEngine(strings.Join(tokens, " "))
	start := startRace(t, e, model.RaceConfig{Duration: 60, Bots: 1})

	var effects []Effect
	for i, tok := range tokens {
		at := start.Add(time.Duration(i+1) * 750 * time.Millisecond)
		effects = typeToken(e, tok, at)
	}
	if len(effects) != 1 {
		t.Fatalf("expected one Finished effect, got %v", effects)
	}
	fin, ok := effects[0].(Finished)
	if !ok {
		t.Fatalf("expected Finished, got %T", effects[0])
	}

	s := e.Session()
	if s.Phase != model.PhaseFinished {
		t.Fatalf("expected finished phase, got %s", s.Phase)
	}
	human := fin.Settlement.Human
	if human.FinalSpeed != 80 || human.FinalAccuracy != 100 || human.Progress != 100 {
		t.Fatalf("expected 80 WPM, 100%% accuracy, 100%% progress; got %+v", human)
	}
	if human.Rank != 1 {
		t.Fatalf("expected human to win, got rank %d", human.Rank)
	}
	bot := fin.Settlement.Participants[1]
	if bot.Progress >= 100 || bot.Progress <= 0 {
		t.Fatalf("expected partial bot progress, got %v", bot.Progress)
	}
	if !fin.Settlement.NewPersonalBest {
		t.Fatalf("expected personal best")
	}
	if ratings.profile.Rating != fin.Settlement.RatingAfter || ratings.profile.PersonalBestSpeed != 80 {
		t.Fatalf("unexpected stored profile: %+v", ratings.profile)
	}
	if fin.Settlement.RatingDelta <= 0 {
		t.Fatalf("expected rating gain for a win, got %d", fin.Settlement.RatingDelta)
	}
}

func TestClockExpiryDropsPartialToken(t *testing.T) {
	e, ratings := newTestEngine("one two three")
	start := startRace(t, e, model.RaceConfig{Duration: 60, Bots: 1})
	gen := e.Generation()

	typeToken(e, "one", start.Add(time.Second))
	e.Dispatch(Input{Value: "t", At: start.Add(2 * time.Second)})
	e.Dispatch(Input{Value: "tw", At: start.Add(2 * time.Second)})

	if effects := e.Dispatch(ClockTick{Generation: gen, At: start.Add(30 * time.Second)}); len(effects) != 1 {
		t.Fatalf("expected another clock tick, got %v", effects)
	} else if _, ok := effects[0].(ScheduleClock); !ok {
		t.Fatalf("expected ScheduleClock, got %T", effects[0])
	}
	if got := e.Session().Remaining; got != 30*time.Second {
		t.Fatalf("expected 30s remaining, got %v", got)
	}

	effects := e.Dispatch(ClockTick{Generation: gen, At: start.Add(61 * time.Second)})
	if len(effects) != 1 {
		t.Fatalf("expected Finished, got %v", effects)
	}
	fin := effects[0].(Finished)
	s := e.Session()
	if !s.EndedAt.Equal(start.Add(time.Minute)) {
		t.Fatalf("expected end at the duration boundary, got %v", s.EndedAt)
	}
	if s.Remaining != 0 {
		t.Fatalf("expected no time remaining, got %v", s.Remaining)
	}
	// "one " counts, the "tw" prefix does not.
	if fin.Settlement.Human.FinalSpeed != 1 {
		t.Fatalf("expected 1 WPM from 4 committed chars, got %d", fin.Settlement.Human.FinalSpeed)
	}
	if fin.Settlement.Human.FinalAccuracy != 67 {
		t.Fatalf("expected accuracy 4/6, got %d", fin.Settlement.Human.FinalAccuracy)
	}
	want := 6.0 / 13 * 100
	if got := fin.Settlement.Human.Progress; !approx(got, want) {
		t.Fatalf("expected progress %v including the live prefix, got %v", want, got)
	}
	if ratings.ratingWrites != 1 {
		t.Fatalf("expected one rating write, got %d", ratings.ratingWrites)
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	e, ratings := newTestEngine("a b")
	start := startRace(t, e, model.RaceConfig{Duration: 60, Bots: 1})
	gen := e.Generation()

	effects := e.Dispatch(ClockTick{Generation: gen, At: start.Add(2 * time.Minute)})
	if len(effects) != 1 {
		t.Fatalf("expected Finished, got %v", effects)
	}
	if again := e.finish(start.Add(3 * time.Minute)); again != nil {
		t.Fatalf("second finish produced %v", again)
	}
	if effects := e.Dispatch(ClockTick{Generation: gen, At: start.Add(3 * time.Minute)}); effects != nil {
		t.Fatalf("clock tick after finish produced %v", effects)
	}
	if effects := e.Dispatch(Input{Value: "a ", At: start.Add(3 * time.Minute)}); effects != nil {
		t.Fatalf("input after finish produced %v", effects)
	}
	if ratings.ratingWrites != 1 || ratings.speedWrites != 1 {
		t.Fatalf("expected single persistence, got rating=%d speed=%d", ratings.ratingWrites, ratings.speedWrites)
	}
}
