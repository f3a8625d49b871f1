// Package leaderboard decides whether a race result is offered for public
// submission and performs that submission against a shared backend.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/verte-zerg/tuirace/internal/model"
)

// DefaultSize is how many entries make up the public board.
const DefaultSize = 10

// MaxSize is the largest board a backend is required to return in one read.
const MaxSize = 100

// MaxNameLength bounds display names in runes.
const MaxNameLength = 20

// Submission errors.
var (
	ErrNameRequired = errors.New("display name is required")
	ErrNameTooLong  = fmt.Errorf("display name exceeds %d characters", MaxNameLength)
	ErrNameTaken    = errors.New("display name is already taken")
	ErrPermission   = errors.New("leaderboard rejected the credentials")
	ErrSubmitFailed = errors.New("leaderboard submission failed")
)

// Backend is the shared datastore behind the board.
type Backend interface {
	// Top returns up to n entries ordered by field, best first.
	Top(ctx context.Context, field model.RankField, n int) ([]model.LeaderboardEntry, error)
	// Get reads one entry by its lower-cased name key.
	Get(ctx context.Context, key string) (model.LeaderboardEntry, bool, error)
	// Create writes entry and fails with ErrNameTaken if its key exists.
	Create(ctx context.Context, entry model.LeaderboardEntry) error
}

// NameStore keeps the player's local display name in sync.
type NameStore interface {
	UpdateDisplayName(name string) string
}

// Service applies qualification and submission rules over a Backend.
type Service struct {
	backend Backend
	names   NameStore
	size    int
	field   model.RankField
	now     func() time.Time
}

// NewService returns a board of size entries ranked by field. Sizes above
// MaxSize are clamped.
func NewService(backend Backend, names NameStore, size int, field model.RankField) *Service {
	if size <= 0 {
		size = DefaultSize
	}
	size = min(size, MaxSize)
	if field == "" {
		field = model.RankByRating
	}
	return &Service{backend: backend, names: names, size: size, field: field, now: time.Now}
}

// Size is the number of entries on the board.
func (s *Service) Size() int {
	return s.size
}

// Field is the ranking field in use.
func (s *Service) Field() model.RankField {
	return s.field
}

// Top returns the current board.
func (s *Service) Top(ctx context.Context) ([]model.LeaderboardEntry, error) {
	entries, err := s.backend.Top(ctx, s.field, s.size)
	if err != nil {
		return nil, classify(err)
	}
	return entries, nil
}

// Qualifies reports whether a result with rating and speed may be submitted.
// A board with free slots takes anything; a full board requires strictly
// beating its lowest entry on the ranking field.
func (s *Service) Qualifies(ctx context.Context, rating, speed int) (bool, error) {
	top, err := s.Top(ctx)
	if err != nil {
		return false, err
	}
	if len(top) < s.size {
		return true, nil
	}
	lowest := top[0].Value(s.field)
	for _, entry := range top[1:] {
		if v := entry.Value(s.field); v < lowest {
			lowest = v
		}
	}
	candidate := model.LeaderboardEntry{Rating: rating, PersonalBestSpeed: speed}
	return candidate.Value(s.field) > lowest, nil
}

// Submit publishes a result under name. Existing entries are never
// overwritten.
func (s *Service) Submit(ctx context.Context, name string, rating, bestSpeed int) (model.LeaderboardEntry, error) {
	display, err := ValidateName(name)
	if err != nil {
		return model.LeaderboardEntry{}, err
	}
	key := Key(display)

	if _, exists, err := s.backend.Get(ctx, key); err != nil {
		return model.LeaderboardEntry{}, classify(err)
	} else if exists {
		return model.LeaderboardEntry{}, fmt.Errorf("%w: %s", ErrNameTaken, display)
	}

	entry := model.LeaderboardEntry{
		DisplayName:       display,
		Key:               key,
		Rating:            rating,
		PersonalBestSpeed: bestSpeed,
		Timestamp:         s.now().UTC(),
	}
	if err := s.backend.Create(ctx, entry); err != nil {
		return model.LeaderboardEntry{}, classify(err)
	}
	if s.names != nil {
		s.names.UpdateDisplayName(display)
	}
	return entry, nil
}

// ValidateName trims name and checks it against the board's rules.
func ValidateName(name string) (string, error) {
	display := strings.TrimSpace(name)
	if display == "" {
		return "", ErrNameRequired
	}
	if utf8.RuneCountInString(display) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return display, nil
}

// Key is the case-insensitive uniqueness key for a display name.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// classify keeps known errors and marks everything else retryable.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrNameTaken), errors.Is(err, ErrPermission), errors.Is(err, ErrSubmitFailed):
		return err
	}
	return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
}

// UserMessage turns a leaderboard error into something a player can act on.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNameRequired):
		return "Enter a display name to submit your score."
	case errors.Is(err, ErrNameTooLong):
		return fmt.Sprintf("Display names can be at most %d characters.", MaxNameLength)
	case errors.Is(err, ErrNameTaken):
		return "That name is already on the leaderboard. Pick another one."
	case errors.Is(err, ErrPermission):
		return "The leaderboard refused the submission. Check the leaderboard token in your config."
	default:
		return "Could not reach the leaderboard. Try again in a moment."
	}
}
