package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment overrides for the leaderboard section.
const (
	EnvLeaderboardURL   = "TUIRACE_LEADERBOARD_URL"
	EnvLeaderboardToken = "TUIRACE_LEADERBOARD_TOKEN"
	EnvLogLevel         = "TUIRACE_LOG_LEVEL"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Race        RaceConfig        `toml:"race"`
	Leaderboard LeaderboardConfig `toml:"leaderboard"`
	Log         LogConfig         `toml:"log"`
}

// RaceConfig maps race settings.
type RaceConfig struct {
	Duration  *int    `toml:"duration"`
	Mode      *string `toml:"mode"`
	Bots      *int    `toml:"bots"`
	Words     *int    `toml:"words"`
	WordsFile *string `toml:"words-file"`
}

// LeaderboardConfig maps the shared leaderboard settings. An empty URL
// selects the local SQLite board.
type LeaderboardConfig struct {
	URL    *string `toml:"url"`
	Token  *string `toml:"token"`
	Size   *int    `toml:"size"`
	RankBy *string `toml:"rank-by"`
	Addr   *string `toml:"addr"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// LoadEnv loads .env files into the process environment without replacing
// variables that are already set. Missing files are skipped.
func LoadEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *FileConfig) {
	if v, ok := os.LookupEnv(EnvLeaderboardURL); ok {
		cfg.Leaderboard.URL = &v
	}
	if v, ok := os.LookupEnv(EnvLeaderboardToken); ok {
		cfg.Leaderboard.Token = &v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.Log.Level = &v
	}
}

// Template is written by the config command for a fresh file.
const Template = `# tuirace configuration

[race]
# duration = 60        # seconds: 60, 180 or 300
# mode = "words"       # words, literature or code
# bots = 3
# words = 40
# words-file = ""      # one word per line

[leaderboard]
# url = ""             # empty uses the local board
# token = ""
# size = 10
# rank-by = "rating"   # rating or speed
# addr = "127.0.0.1:8088"

[log]
# level = "info"
`
