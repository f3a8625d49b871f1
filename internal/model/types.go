// Package model defines shared data structures.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the kind of prompt a race is typed against.
type Mode string

// Prompt modes.
const (
	ModeWords      Mode = "words"
	ModeLiterature Mode = "literature"
	ModeCode       Mode = "code"
)

// Modes lists the supported prompt modes in display order.
var Modes = []Mode{ModeWords, ModeLiterature, ModeCode}

// ParseMode resolves a user-supplied mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "words", "no-grammar", "":
		return ModeWords, nil
	case "literature", "lit":
		return ModeLiterature, nil
	case "code":
		return ModeCode, nil
	}
	return "", fmt.Errorf("unknown mode %q (available: words, literature, code)", s)
}

// Durations lists the allowed race lengths in seconds.
var Durations = []int{60, 180, 300}

// Phase is the state of a race session.
type Phase int

// Race phases.
const (
	PhaseWaiting Phase = iota
	PhaseCountdown
	PhaseRacing
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseCountdown:
		return "countdown"
	case PhaseRacing:
		return "racing"
	case PhaseFinished:
		return "finished"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// RaceConfig defines race settings chosen by the caller.
type RaceConfig struct {
	Duration  int
	Mode      Mode
	Bots      int
	WordCount int
}

// Profile is the persisted player rating record.
type Profile struct {
	Rating            int
	PersonalBestSpeed int
	DisplayName       string
}

// Participant is one racer in a single race.
type Participant struct {
	ID          string
	DisplayName string
	IsBot       bool

	Speed    float64
	Accuracy float64
	Progress float64

	RatingAtStart int

	FinalSpeed    int
	FinalAccuracy int
	Rank          int
}

// RankField selects the leaderboard ordering.
type RankField string

// Leaderboard ranking fields.
const (
	RankByRating RankField = "rating"
	RankBySpeed  RankField = "speed"
)

// ParseRankField resolves a configured ranking field.
func ParseRankField(s string) (RankField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rating", "elo", "":
		return RankByRating, nil
	case "speed", "wpm":
		return RankBySpeed, nil
	}
	return "", fmt.Errorf("unknown rank field %q (available: rating, speed)", s)
}

// LeaderboardEntry is a public leaderboard row.
type LeaderboardEntry struct {
	DisplayName       string    `json:"displayName"`
	Key               string    `json:"key"`
	Rating            int       `json:"rating"`
	PersonalBestSpeed int       `json:"personalBestSpeed"`
	Timestamp         time.Time `json:"timestamp"`
}

// Value returns the entry's value for the given ranking field.
func (e LeaderboardEntry) Value(field RankField) int {
	if field == RankBySpeed {
		return e.PersonalBestSpeed
	}
	return e.Rating
}

// RaceRecord captures a settled race for history.
type RaceRecord struct {
	RaceID       string
	StartedAt    time.Time
	EndedAt      time.Time
	Mode         Mode
	Duration     int
	PromptChars  int
	CorrectChars int
	TotalChars   int
	Speed        int
	Accuracy     int
	Rank         int
	Racers       int
	RatingBefore int
	RatingAfter  int
}

// RaceSummary summarizes a stored race for reporting.
type RaceSummary struct {
	ID          int64
	EndedAt     time.Time
	Speed       int
	Accuracy    int
	Rank        int
	Racers      int
	RatingAfter int
}
