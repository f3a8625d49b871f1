package race

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/prompt"
)

// Race cadence.
const (
	CountdownTicks    = 3
	CountdownInterval = time.Second
	ClockInterval     = 100 * time.Millisecond
)

// HumanID identifies the local player in every race.
const HumanID = "local-user"

const (
	defaultHumanName = "Player"
	minBotRating     = 500
	botRatingSpread  = 200
)

// DefaultBotNames is the opponent roster.
var DefaultBotNames = []string{"Speedy Bot", "TypeMaster Flex", "Keyboard Ninja"}

// RatingStore is what the engine needs from the player's rating record.
type RatingStore interface {
	Profile() model.Profile
	UpdateRating(newRating int) int
	UpdateBestSpeed(candidate int) bool
}

// Event drives the state machine.
type Event interface{ event() }

// Reset discards the current session and prepares a new one for cfg.
type Reset struct{ Config model.RaceConfig }

// Start begins the countdown when the session is ready.
type Start struct{}

// CountdownTick is one countdown step scheduled for Generation.
type CountdownTick struct {
	Generation uint64
	At         time.Time
}

// ClockTick is one race clock step scheduled for Generation.
type ClockTick struct {
	Generation uint64
	At         time.Time
}

// Input carries the new value of the player's input buffer.
type Input struct {
	Value string
	At    time.Time
}

// Abandon tears the session down. Pending timers become stale.
type Abandon struct{}

func (Reset) event()         {}
func (Start) event()         {}
func (CountdownTick) event() {}
func (ClockTick) event()     {}
func (Input) event()         {}
func (Abandon) event()       {}

// Effect asks the driver to do something on the engine's behalf.
type Effect interface{ effect() }

// ScheduleCountdown requests a CountdownTick after the delay.
type ScheduleCountdown struct {
	Generation uint64
	After      time.Duration
}

// ScheduleClock requests a ClockTick after the delay.
type ScheduleClock struct {
	Generation uint64
	After      time.Duration
}

// Finished reports a settled race.
type Finished struct {
	Generation uint64
	Settlement Settlement
}

func (ScheduleCountdown) effect() {}
func (ScheduleClock) effect()     {}
func (Finished) effect()          {}

// Session is the state of one race.
type Session struct {
	ID         string
	Generation uint64
	Config     model.RaceConfig
	Phase      model.Phase

	Prompt    string
	Tokens    []string
	PromptErr error

	Countdown int
	StartedAt time.Time
	EndedAt   time.Time
	Remaining time.Duration

	Cursor         int
	Buffer         string
	CorrectChars   int
	TotalChars     int
	completedChars int
	promptLength   int

	Participants []model.Participant
	Settlement   *Settlement
}

// PromptLength is the prompt length in runes.
func (s Session) PromptLength() int {
	return s.promptLength
}

// Human returns the local player.
func (s Session) Human() model.Participant {
	for _, p := range s.Participants {
		if !p.IsBot {
			return p
		}
	}
	return model.Participant{}
}

// Options tunes an Engine.
type Options struct {
	BotNames []string
	KFactor  float64
	Rand     Rand
}

// Engine owns the race state machine. It is not safe for concurrent use:
// the driver feeds it events from a single loop.
type Engine struct {
	prompts  prompt.Source
	ratings  RatingStore
	speeds   *SpeedGenerator
	rnd      Rand
	log      zerolog.Logger
	botNames []string
	k        float64

	generation uint64
	s          Session
}

// NewEngine returns an engine with an empty, not-ready session.
func NewEngine(prompts prompt.Source, ratings RatingStore, log zerolog.Logger, opts Options) *Engine {
	if opts.Rand == nil {
		opts.Rand = NewRand()
	}
	if len(opts.BotNames) == 0 {
		opts.BotNames = DefaultBotNames
	}
	if opts.KFactor <= 0 {
		opts.KFactor = KFactor
	}
	return &Engine{
		prompts:  prompts,
		ratings:  ratings,
		speeds:   NewSpeedGenerator(opts.Rand),
		rnd:      opts.Rand,
		log:      log,
		botNames: opts.BotNames,
		k:        opts.KFactor,
	}
}

// Session returns a copy of the current session.
func (e *Engine) Session() Session {
	s := e.s
	s.Participants = append([]model.Participant(nil), e.s.Participants...)
	return s
}

// Generation is the identity of the current session.
func (e *Engine) Generation() uint64 {
	return e.generation
}

// Ready reports whether Start would leave the Waiting phase.
func (e *Engine) Ready() bool {
	return e.s.Phase == model.PhaseWaiting &&
		e.s.Generation != 0 &&
		len(e.s.Tokens) > 0 &&
		len(e.s.Participants) > 0
}

// Dispatch applies ev and returns the effects the driver must carry out.
func (e *Engine) Dispatch(ev Event) []Effect {
	switch ev := ev.(type) {
	case Reset:
		e.reset(ev.Config)
	case Start:
		return e.start()
	case CountdownTick:
		return e.countdownTick(ev)
	case ClockTick:
		return e.clockTick(ev)
	case Input:
		return e.input(ev)
	case Abandon:
		e.generation++
		e.s = Session{Generation: e.generation}
	}
	return nil
}

func (e *Engine) reset(cfg model.RaceConfig) {
	e.generation++
	duration := time.Duration(cfg.Duration) * time.Second
	s := Session{
		ID:         ksuid.New().String(),
		Generation: e.generation,
		Config:     cfg,
		Phase:      model.PhaseWaiting,
		Countdown:  CountdownTicks,
		Remaining:  duration,
	}

	text, err := e.prompts.Prompt(cfg.Mode)
	if err != nil {
		e.log.Warn().Err(err).Str("mode", string(cfg.Mode)).Msg("failed to fetch prompt")
		s.PromptErr = err
	}
	s.Prompt = prompt.Normalize(text)
	s.Tokens = Tokenize(s.Prompt)
	s.promptLength = runeLen(s.Prompt)

	profile := e.ratings.Profile()
	name := profile.DisplayName
	if name == "" {
		name = defaultHumanName
	}
	s.Participants = append(s.Participants, model.Participant{
		ID:            HumanID,
		DisplayName:   name,
		Accuracy:      100,
		RatingAtStart: profile.Rating,
	})
	bots := cfg.Bots
	if bots <= 0 {
		bots = len(e.botNames)
	}
	for i := 0; i < bots; i++ {
		rating := profile.Rating + int(e.rnd.Float64()*botRatingSpread) - botRatingSpread/2
		if rating < minBotRating {
			rating = minBotRating
		}
		s.Participants = append(s.Participants, model.Participant{
			ID:            botID(i),
			DisplayName:   e.botNames[i%len(e.botNames)],
			IsBot:         true,
			Accuracy:      float64(90 + int(e.rnd.Float64()*10)),
			RatingAtStart: rating,
		})
	}
	e.s = s
	e.log.Debug().Str("race", s.ID).Uint64("generation", s.Generation).
		Str("mode", string(cfg.Mode)).Int("duration", cfg.Duration).
		Int("tokens", len(s.Tokens)).Msg("race reset")
}

func (e *Engine) start() []Effect {
	if !e.Ready() {
		return nil
	}
	e.s.Phase = model.PhaseCountdown
	e.s.Countdown = CountdownTicks
	rating := e.s.Human().RatingAtStart
	for i := range e.s.Participants {
		if e.s.Participants[i].IsBot {
			e.s.Participants[i].Speed = float64(e.speeds.GenerateSpeed(rating))
		}
	}
	return []Effect{ScheduleCountdown{Generation: e.generation, After: CountdownInterval}}
}

func (e *Engine) countdownTick(ev CountdownTick) []Effect {
	if ev.Generation != e.generation || e.s.Phase != model.PhaseCountdown {
		return nil
	}
	e.s.Countdown--
	if e.s.Countdown > 0 {
		return []Effect{ScheduleCountdown{Generation: e.generation, After: CountdownInterval}}
	}
	e.s.Phase = model.PhaseRacing
	e.s.StartedAt = ev.At
	e.s.Remaining = e.duration()
	e.log.Info().Str("race", e.s.ID).Msg("race started")
	return []Effect{ScheduleClock{Generation: e.generation, After: ClockInterval}}
}

func (e *Engine) clockTick(ev ClockTick) []Effect {
	if ev.Generation != e.generation || e.s.Phase != model.PhaseRacing {
		return nil
	}
	elapsed := e.elapsed(ev.At)
	e.s.Remaining = e.duration() - elapsed
	e.advanceBots(elapsed)
	if e.s.Remaining <= 0 {
		e.s.Remaining = 0
		return e.finish(e.s.StartedAt.Add(e.duration()))
	}
	return []Effect{ScheduleClock{Generation: e.generation, After: ClockInterval}}
}

func (e *Engine) input(ev Input) []Effect {
	if e.s.Phase != model.PhaseRacing || e.s.Cursor >= len(e.s.Tokens) {
		return nil
	}
	e.s.TotalChars++
	if strings.HasSuffix(ev.Value, string(Separator)) {
		attempt := strings.TrimSuffix(ev.Value, string(Separator))
		token := e.s.Tokens[e.s.Cursor]
		if attempt == token {
			e.s.CorrectChars += runeLen(token) + 1
		}
		e.s.completedChars += runeLen(token) + 1
		e.s.Cursor++
		e.s.Buffer = ""
		if e.s.Cursor == len(e.s.Tokens) {
			return e.finish(ev.At)
		}
	} else {
		e.s.Buffer = ev.Value
	}
	e.updateHuman(ev.At)
	return nil
}

// finish settles the race once. Later calls return nothing.
func (e *Engine) finish(at time.Time) []Effect {
	if e.s.Settlement != nil {
		return nil
	}
	e.s.Phase = model.PhaseFinished
	e.s.EndedAt = at
	elapsed := e.elapsed(at)
	e.s.Remaining = e.duration() - elapsed

	metrics := HumanMetrics(e.snapshot(), elapsed, true)
	if e.s.Cursor >= len(e.s.Tokens) {
		metrics.Progress = 100
	}
	for i := range e.s.Participants {
		p := &e.s.Participants[i]
		if p.IsBot {
			p.Progress = SimulatedBotProgress(p.Speed, elapsed, e.s.promptLength)
			continue
		}
		p.Speed = float64(metrics.Speed)
		p.Accuracy = float64(metrics.Accuracy)
		p.Progress = metrics.Progress
	}

	settlement := Settle(e.s.Participants, HumanID, e.k)
	settlement.RatingAfter = e.ratings.UpdateRating(settlement.RatingAfter)
	settlement.NewPersonalBest = e.ratings.UpdateBestSpeed(settlement.Human.FinalSpeed)
	e.s.Participants = settlement.Participants
	e.s.Settlement = &settlement

	e.log.Info().Str("race", e.s.ID).
		Int("speed", settlement.Human.FinalSpeed).
		Int("accuracy", settlement.Human.FinalAccuracy).
		Int("rank", settlement.Human.Rank).
		Int("rating_delta", settlement.RatingDelta).
		Bool("personal_best", settlement.NewPersonalBest).
		Msg("race settled")
	return []Effect{Finished{Generation: e.generation, Settlement: settlement}}
}

func (e *Engine) updateHuman(at time.Time) {
	metrics := HumanMetrics(e.snapshot(), e.elapsed(at), false)
	for i := range e.s.Participants {
		p := &e.s.Participants[i]
		if p.IsBot {
			continue
		}
		p.Speed = float64(metrics.Speed)
		p.Accuracy = float64(metrics.Accuracy)
		p.Progress = metrics.Progress
	}
}

func (e *Engine) advanceBots(elapsed time.Duration) {
	for i := range e.s.Participants {
		p := &e.s.Participants[i]
		if p.IsBot {
			p.Progress = SimulatedBotProgress(p.Speed, elapsed, e.s.promptLength)
		}
	}
}

func (e *Engine) snapshot() Snapshot {
	live := 0
	if e.s.Cursor < len(e.s.Tokens) {
		live = MatchingPrefix(e.s.Buffer, e.s.Tokens[e.s.Cursor])
	}
	return Snapshot{
		CorrectChars:   e.s.CorrectChars,
		TotalChars:     e.s.TotalChars,
		CompletedChars: e.s.completedChars,
		LivePrefix:     live,
		PromptLength:   e.s.promptLength,
	}
}

func (e *Engine) duration() time.Duration {
	return time.Duration(e.s.Config.Duration) * time.Second
}

// elapsed is the racing time at instant at, capped at the race duration.
func (e *Engine) elapsed(at time.Time) time.Duration {
	if e.s.StartedAt.IsZero() {
		return 0
	}
	elapsed := at.Sub(e.s.StartedAt)
	if elapsed < 0 {
		return 0
	}
	if d := e.duration(); elapsed > d {
		return d
	}
	return elapsed
}

func botID(i int) string {
	return "bot-" + strconv.Itoa(i)
}
