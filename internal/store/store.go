// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/tuirace/internal/leaderboard"
	"github.com/verte-zerg/tuirace/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for race history and the local leaderboard.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS races (
			id INTEGER PRIMARY KEY,
			race_id TEXT NOT NULL UNIQUE,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			mode TEXT NOT NULL,
			duration_s INTEGER NOT NULL,
			prompt_chars INTEGER NOT NULL,
			correct_chars INTEGER NOT NULL,
			total_chars INTEGER NOT NULL,
			speed INTEGER NOT NULL,
			accuracy INTEGER NOT NULL,
			finish_rank INTEGER NOT NULL,
			racers INTEGER NOT NULL,
			rating_before INTEGER NOT NULL,
			rating_after INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS leaderboard_entries (
			name_key TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			rating INTEGER NOT NULL,
			best_speed INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_races_ended_at ON races(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_rating ON leaderboard_entries(rating);`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_speed ON leaderboard_entries(best_speed);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRace stores a settled race. Recording the same race twice is a no-op.
func (s *Store) InsertRace(ctx context.Context, rec model.RaceRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO races (race_id, started_at, ended_at, mode, duration_s, prompt_chars, correct_chars, total_chars, speed, accuracy, finish_rank, racers, rating_before, rating_after)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(race_id) DO NOTHING`,
		rec.RaceID,
		rec.StartedAt.Format(time.RFC3339Nano),
		rec.EndedAt.Format(time.RFC3339Nano),
		string(rec.Mode),
		rec.Duration,
		rec.PromptChars,
		rec.CorrectChars,
		rec.TotalChars,
		rec.Speed,
		rec.Accuracy,
		rec.Rank,
		rec.Racers,
		rec.RatingBefore,
		rec.RatingAfter,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		var id int64
		err := s.db.QueryRowContext(ctx, `SELECT id FROM races WHERE race_id = ?`, rec.RaceID).Scan(&id)
		return id, err
	}
	return res.LastInsertId()
}

// RaceFilter narrows ListRaces.
type RaceFilter struct {
	Mode  model.Mode
	Since *time.Time
	// Limit keeps only the most recent races when positive.
	Limit int
}

// ListRaces returns race summaries in chronological order.
func (s *Store) ListRaces(ctx context.Context, filter RaceFilter) ([]model.RaceSummary, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Mode != "" {
		clauses = append(clauses, "mode = ?")
		args = append(args, string(filter.Mode))
	}
	if filter.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, filter.Since.Format(time.RFC3339Nano))
	}
	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT id, ended_at, speed, accuracy, finish_rank, racers, rating_after FROM (
			SELECT * FROM races
			WHERE %s
			ORDER BY ended_at DESC, id DESC
			LIMIT ?
		) ORDER BY ended_at ASC, id ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var races []model.RaceSummary
	for rows.Next() {
		var r model.RaceSummary
		var endedAt string
		if err := rows.Scan(&r.ID, &endedAt, &r.Speed, &r.Accuracy, &r.Rank, &r.Racers, &r.RatingAfter); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		r.EndedAt = parsed
		races = append(races, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return races, nil
}

// Top returns up to n leaderboard entries ordered by field, best first.
func (s *Store) Top(ctx context.Context, field model.RankField, n int) ([]model.LeaderboardEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	order := "rating DESC, best_speed DESC"
	if field == model.RankBySpeed {
		order = "best_speed DESC, rating DESC"
	}
	query := fmt.Sprintf(`SELECT name_key, display_name, rating, best_speed, created_at
		FROM leaderboard_entries
		ORDER BY %s, created_at ASC
		LIMIT ?`, order)
	rows, err := s.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Get looks up an entry by its lower-cased name key.
func (s *Store) Get(ctx context.Context, key string) (model.LeaderboardEntry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name_key, display_name, rating, best_speed, created_at
		 FROM leaderboard_entries WHERE name_key = ?`, key)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return model.LeaderboardEntry{}, false, err
	}
	return entry, true, nil
}

// Create inserts entry. An existing key fails with leaderboard.ErrNameTaken.
func (s *Store) Create(ctx context.Context, entry model.LeaderboardEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leaderboard_entries (name_key, display_name, rating, best_speed, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name_key) DO NOTHING`,
		entry.Key,
		entry.DisplayName,
		entry.Rating,
		entry.PersonalBestSpeed,
		entry.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", leaderboard.ErrNameTaken, entry.Key)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (model.LeaderboardEntry, error) {
	var entry model.LeaderboardEntry
	var createdAt string
	if err := row.Scan(&entry.Key, &entry.DisplayName, &entry.Rating, &entry.PersonalBestSpeed, &createdAt); err != nil {
		return model.LeaderboardEntry{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.LeaderboardEntry{}, err
	}
	entry.Timestamp = parsed
	return entry, nil
}
