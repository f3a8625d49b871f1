// Package main provides the CLI entrypoint for tuirace.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/tuirace/internal/config"
	"github.com/verte-zerg/tuirace/internal/leaderboard"
	"github.com/verte-zerg/tuirace/internal/leaderboard/httpapi"
	"github.com/verte-zerg/tuirace/internal/logging"
	"github.com/verte-zerg/tuirace/internal/model"
	"github.com/verte-zerg/tuirace/internal/profile"
	"github.com/verte-zerg/tuirace/internal/prompt"
	"github.com/verte-zerg/tuirace/internal/race"
	"github.com/verte-zerg/tuirace/internal/stats"
	"github.com/verte-zerg/tuirace/internal/store"
	"github.com/verte-zerg/tuirace/internal/tui"
)

const (
	defaultDuration     = 60
	defaultMode         = "words"
	defaultBots         = 3
	defaultWords        = prompt.DefaultWordCount
	defaultLogLevel     = "info"
	defaultHistoryTrend = 10
	maxBots             = 8
)

var (
	raceDuration  int
	raceMode      string
	raceBots      int
	raceWords     int
	raceWordsFile string

	historyMode   string
	historySince  string
	historyLast   int
	historyWindow int

	boardSize   int
	boardRankBy string
	boardURL    string

	serveAddr  string
	serveDB    string
	serveToken string
	serveRPS   int
	serveBurst int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tuirace",
		Short:         "Terminal typing race against rated bots",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runRaceCmd,
	}

	rootCmd.Flags().IntVar(&raceDuration, "duration", defaultDuration, "race length in seconds (60, 180 or 300)")
	rootCmd.Flags().StringVar(&raceMode, "mode", defaultMode, "prompt mode: words, literature or code")
	rootCmd.Flags().IntVar(&raceBots, "bots", defaultBots, "number of bot opponents")
	rootCmd.Flags().IntVar(&raceWords, "words", defaultWords, "words per prompt in words mode")
	rootCmd.Flags().StringVar(&raceWordsFile, "words-file", "", "word list for words mode, one word per line")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newLeaderboardCmd())

	return rootCmd
}

// loadFileConfig reads .env files and the TOML config, with the
// environment taking precedence over the file.
func loadFileConfig() (config.FileConfig, error) {
	if err := config.LoadEnv(config.DefaultEnvPath(), ".env"); err != nil {
		logErrf("ignoring env file: %v\n", err)
	}
	cfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	config.ApplyEnv(&cfg)
	return cfg, nil
}

func logLevel(cfg config.FileConfig) string {
	if cfg.Log.Level != nil {
		return *cfg.Log.Level
	}
	return defaultLogLevel
}

func runRaceCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyIntConfig(cmd, "duration", &raceDuration, fileCfg.Race.Duration)
	applyStringConfig(cmd, "mode", &raceMode, fileCfg.Race.Mode)
	applyIntConfig(cmd, "bots", &raceBots, fileCfg.Race.Bots)
	applyIntConfig(cmd, "words", &raceWords, fileCfg.Race.Words)
	applyStringConfig(cmd, "words-file", &raceWordsFile, fileCfg.Race.WordsFile)

	raceCfg, err := validateRaceConfig()
	if err != nil {
		return err
	}

	var words []string
	if raceWordsFile != "" {
		words, err = prompt.LoadWords(raceWordsFile, prompt.FilterForLang("en"))
		if err != nil {
			return fmt.Errorf("failed to load word list: %w", err)
		}
	}

	log, closeLog, err := logging.OpenFile(config.DefaultLogPath(), logLevel(fileCfg))
	if err != nil {
		logErrf("file logging disabled: %v\n", err)
		log = zerolog.Nop()
		closeLog = io.NopCloser(nil)
	}
	defer func() {
		_ = closeLog.Close()
	}()

	keeper, closeKV := openKeeper(log)
	defer closeKV()

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	board, err := newBoard(fileCfg, st, keeper)
	if err != nil {
		return err
	}

	library := prompt.NewLibrary(prompt.NewGenerator(), words, raceCfg.WordCount)
	engine := race.NewEngine(library, keeper, log, race.Options{})
	m := tui.NewModel(engine, tui.Options{
		Config:  raceCfg,
		Ratings: keeper,
		Board:   board,
		History: st,
		Log:     log,
	})
	log.Info().Str("mode", string(raceCfg.Mode)).Int("duration", raceCfg.Duration).Int("bots", raceCfg.Bots).Msg("starting race screen")
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func validateRaceConfig() (model.RaceConfig, error) {
	if !slices.Contains(model.Durations, raceDuration) {
		return model.RaceConfig{}, fmt.Errorf("--duration must be one of 60, 180 or 300")
	}
	mode, err := model.ParseMode(raceMode)
	if err != nil {
		return model.RaceConfig{}, err
	}
	if raceBots < 1 || raceBots > maxBots {
		return model.RaceConfig{}, fmt.Errorf("--bots must be between 1 and %d", maxBots)
	}
	if raceWords <= 0 {
		return model.RaceConfig{}, fmt.Errorf("--words must be > 0")
	}
	return model.RaceConfig{
		Duration:  raceDuration,
		Mode:      mode,
		Bots:      raceBots,
		WordCount: raceWords,
	}, nil
}

// openKeeper opens the on-disk profile, falling back to an in-memory one
// so a locked or corrupt directory never blocks a race.
func openKeeper(log zerolog.Logger) (*profile.Keeper, func()) {
	dir := config.DefaultProfileDir()
	kv, err := profile.OpenBadger(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("profile store unavailable, using memory")
		keeper := profile.NewKeeper(profile.NewMemoryKV(), 0, log)
		keeper.Load()
		return keeper, func() {}
	}
	keeper := profile.NewKeeper(kv, 0, log)
	keeper.Load()
	return keeper, func() {
		if cerr := kv.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to close profile store")
		}
	}
}

// newBoard selects the remote board when a URL is configured and the local
// SQLite one otherwise.
func newBoard(cfg config.FileConfig, st *store.Store, names leaderboard.NameStore) (*leaderboard.Service, error) {
	size := leaderboard.DefaultSize
	if cfg.Leaderboard.Size != nil {
		size = *cfg.Leaderboard.Size
	}
	if boardSize > 0 {
		size = boardSize
	}
	if size > leaderboard.MaxSize {
		return nil, fmt.Errorf("leaderboard size must be at most %d", leaderboard.MaxSize)
	}
	rankBy := string(model.RankByRating)
	if cfg.Leaderboard.RankBy != nil {
		rankBy = *cfg.Leaderboard.RankBy
	}
	if boardRankBy != "" {
		rankBy = boardRankBy
	}
	field, err := model.ParseRankField(rankBy)
	if err != nil {
		return nil, err
	}

	url := boardURL
	if url == "" && cfg.Leaderboard.URL != nil {
		url = *cfg.Leaderboard.URL
	}
	var backend leaderboard.Backend = st
	if url != "" {
		token := ""
		if cfg.Leaderboard.Token != nil {
			token = *cfg.Leaderboard.Token
		}
		backend = httpapi.NewClient(url, token, &http.Client{Timeout: 10 * time.Second})
	}
	return leaderboard.NewService(backend, names, size, field), nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.Template), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the local rating record",
		Args:  cobra.NoArgs,
		RunE:  runProfileCmd,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "name <display name>",
		Short: "Set the display name used for leaderboard submissions",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runProfileNameCmd,
	})
	return cmd
}

func runProfileCmd(cmd *cobra.Command, _ []string) error {
	keeper, closeKV := openKeeper(zerolog.Nop())
	defer closeKV()
	p := keeper.Profile()
	name := p.DisplayName
	if name == "" {
		name = "(not set)"
	}
	tier := race.TierFor(p.Rating)
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "Name:          %s\nRating:        %d (%s)\nPersonal best: %d WPM\n",
		name, p.Rating, tier.Name, p.PersonalBestSpeed); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func runProfileNameCmd(cmd *cobra.Command, args []string) error {
	name := strings.Join(args, " ")
	if _, err := leaderboard.ValidateName(name); err != nil {
		return fmt.Errorf("%s", leaderboard.UserMessage(err))
	}
	keeper, closeKV := openKeeper(zerolog.Nop())
	defer closeKV()
	stored := keeper.UpdateDisplayName(name)
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Display name set to %s\n", stored); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show race history and trends",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyMode, "mode", "", "mode filter")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N races")
	cmd.Flags().IntVar(&historyWindow, "window", defaultHistoryTrend, "moving average window")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	filter := store.RaceFilter{Limit: historyLast}
	if historyMode != "" {
		mode, err := model.ParseMode(historyMode)
		if err != nil {
			return err
		}
		filter.Mode = mode
	}
	if historySince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", historySince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		filter.Since = &parsed
	}
	if historyWindow <= 0 {
		return fmt.Errorf("--window must be > 0")
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	report, err := stats.BuildReport(cmd.Context(), st, filter, historyWindow)
	if err != nil {
		return err
	}
	if len(report.Races) == 0 {
		logErrln("No races recorded yet. Run: tuirace")
		return nil
	}
	out := cmd.OutOrStdout()
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			report.Plot.Width = stats.PlotWidthFor(width)
		}
		report.Plot.Color = os.Getenv("NO_COLOR") == ""
	}
	return report.Render(out)
}

func newLeaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the leaderboard",
		Args:  cobra.NoArgs,
		RunE:  runLeaderboardCmd,
	}
	cmd.PersistentFlags().IntVar(&boardSize, "size", 0, "number of entries (default from config or 10)")
	cmd.PersistentFlags().StringVar(&boardRankBy, "rank-by", "", "ranking field: rating or speed")
	cmd.Flags().StringVar(&boardURL, "url", "", "remote leaderboard URL (default from config)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Host the shared leaderboard over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default "+httpapi.DefaultAddr+")")
	serve.Flags().StringVar(&serveDB, "db", "", "SQLite database path (default the local history db)")
	serve.Flags().StringVar(&serveToken, "token", "", "bearer token required for submissions")
	serve.Flags().IntVar(&serveRPS, "rps", httpapi.DefaultRPS, "submissions per second per client")
	serve.Flags().IntVar(&serveBurst, "burst", httpapi.DefaultBurst, "submission burst per client")
	cmd.AddCommand(serve)
	return cmd
}

func runLeaderboardCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	board, err := newBoard(fileCfg, st, nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	entries, err := board.Top(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", leaderboard.UserMessage(err), err)
	}

	out := cmd.OutOrStdout()
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		title := fmt.Sprintf("Top %d by %s", len(entries), board.Field())
		if _, err := fmt.Fprintf(out, "%s\n\n", title); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if len(entries) == 0 {
			_, err := fmt.Fprintln(out, "No entries yet.")
			return err
		}
	}
	return stats.RenderLeaderboard(out, entries, board.Field())
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	log := logging.NewConsole(os.Stderr, logLevel(fileCfg))

	addr := serveAddr
	if addr == "" && fileCfg.Leaderboard.Addr != nil {
		addr = *fileCfg.Leaderboard.Addr
	}
	token := serveToken
	if token == "" && fileCfg.Leaderboard.Token != nil {
		token = *fileCfg.Leaderboard.Token
	}
	dbPath := serveDB
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to close db")
		}
	}()

	if token == "" {
		log.Warn().Msg("no write token configured, submissions are open")
	}
	srv := httpapi.NewServer(st, log, httpapi.Options{
		Token: token,
		RPS:   serveRPS,
		Burst: serveBurst,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("failed to serve leaderboard: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
