package profile

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/verte-zerg/tuirace/internal/model"
)

// Defaults for a player seen for the first time.
const (
	InitialRating  = 1000
	MaxNameLength  = 20
	DefaultTTL     = 365 * 24 * time.Hour
	ratingKey      = "rating"
	bestSpeedKey   = "personalBestSpeed"
	displayNameKey = "displayName"
)

// Keeper owns the player's rating record. Storage failures never reach the
// caller: they are logged and the in-memory value stays authoritative.
type Keeper struct {
	kv  KV
	ttl time.Duration
	log zerolog.Logger

	mu      sync.Mutex
	profile model.Profile
	loaded  bool
}

// NewKeeper wraps kv. A zero ttl falls back to DefaultTTL.
func NewKeeper(kv KV, ttl time.Duration, log zerolog.Logger) *Keeper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Keeper{kv: kv, ttl: ttl, log: log}
}

// Load reads the persisted record, filling defaults for anything missing or
// unreadable.
func (k *Keeper) Load() model.Profile {
	k.mu.Lock()
	defer k.mu.Unlock()
	p := model.Profile{Rating: InitialRating}

	var rating int
	if ok, err := k.kv.Get(ratingKey, &rating); err != nil {
		k.log.Warn().Err(err).Msg("failed to load rating, using default")
	} else if ok && rating >= 0 {
		p.Rating = rating
	} else if ok {
		k.log.Warn().Int("rating", rating).Msg("stored rating is negative, using default")
	} else {
		k.persist(ratingKey, InitialRating)
	}

	var best int
	if ok, err := k.kv.Get(bestSpeedKey, &best); err != nil {
		k.log.Warn().Err(err).Msg("failed to load personal best, using default")
	} else if ok && best >= 0 {
		p.PersonalBestSpeed = best
	} else if ok {
		k.log.Warn().Int("speed", best).Msg("stored personal best is negative, using default")
	}

	var name string
	if ok, err := k.kv.Get(displayNameKey, &name); err != nil {
		k.log.Warn().Err(err).Msg("failed to load display name")
	} else if ok {
		p.DisplayName = name
	}

	k.profile = p
	k.loaded = true
	return p
}

// Profile returns the current record, loading it on first use.
func (k *Keeper) Profile() model.Profile {
	k.mu.Lock()
	loaded := k.loaded
	p := k.profile
	k.mu.Unlock()
	if !loaded {
		return k.Load()
	}
	return p
}

// UpdateRating clamps newRating to >= 0, stores it and returns the stored value.
func (k *Keeper) UpdateRating(newRating int) int {
	k.ensureLoaded()
	if newRating < 0 {
		newRating = 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.profile.Rating = newRating
	k.persist(ratingKey, newRating)
	return newRating
}

// UpdateBestSpeed stores candidate only when it beats the current best.
func (k *Keeper) UpdateBestSpeed(candidate int) bool {
	k.ensureLoaded()
	k.mu.Lock()
	defer k.mu.Unlock()
	if candidate <= k.profile.PersonalBestSpeed {
		return false
	}
	k.profile.PersonalBestSpeed = candidate
	k.persist(bestSpeedKey, candidate)
	return true
}

// UpdateDisplayName trims name, caps it at MaxNameLength runes and stores it.
func (k *Keeper) UpdateDisplayName(name string) string {
	k.ensureLoaded()
	name = TrimName(name)
	k.mu.Lock()
	defer k.mu.Unlock()
	k.profile.DisplayName = name
	k.persist(displayNameKey, name)
	return name
}

// TrimName trims surrounding whitespace and truncates to MaxNameLength runes.
func TrimName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:MaxNameLength]))
	}
	return name
}

func (k *Keeper) ensureLoaded() {
	k.mu.Lock()
	loaded := k.loaded
	k.mu.Unlock()
	if !loaded {
		k.Load()
	}
}

// persist must be called with k.mu held.
func (k *Keeper) persist(key string, value any) {
	if err := k.kv.Set(key, value, k.ttl); err != nil {
		k.log.Warn().Err(err).Str("key", key).Msg("failed to persist profile value")
	}
}
