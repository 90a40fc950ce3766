// Package history persists analysis summaries in SQLite.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// Record is one persisted analysis summary.
type Record struct {
	ID           int64
	AnalyzedAt   time.Time
	ReplayPath   string
	Player       string
	BeatmapHash  string
	ChartTitle   string
	Mods         int64
	Rate         float64
	HitCount     int64
	MissedInputs int64
	MissedEvents int64
	MeanOffset   float64
	UnstableRate float64
	Tendency     string
}

// Store wraps SQLite access for analysis history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
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
		`CREATE TABLE IF NOT EXISTS analyses (
			id INTEGER PRIMARY KEY,
			analyzed_at TEXT NOT NULL,
			replay_path TEXT NOT NULL,
			player TEXT NOT NULL,
			beatmap_hash TEXT NOT NULL,
			chart_title TEXT NOT NULL,
			mods INTEGER NOT NULL,
			rate REAL NOT NULL,
			hit_count INTEGER NOT NULL,
			missed_inputs INTEGER NOT NULL,
			missed_events INTEGER NOT NULL,
			mean_offset REAL NOT NULL,
			unstable_rate REAL NOT NULL,
			tendency TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_analyzed_at ON analyses(analyzed_at);`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_beatmap_hash ON analyses(beatmap_hash);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert appends one analysis record and returns its row id.
func (s *Store) Insert(ctx context.Context, rec Record) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (analyzed_at, replay_path, player, beatmap_hash, chart_title, mods, rate, hit_count, missed_inputs, missed_events, mean_offset, unstable_rate, tendency)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AnalyzedAt.Format(time.RFC3339Nano),
		rec.ReplayPath,
		rec.Player,
		rec.BeatmapHash,
		rec.ChartTitle,
		rec.Mods,
		rec.Rate,
		rec.HitCount,
		rec.MissedInputs,
		rec.MissedEvents,
		rec.MeanOffset,
		rec.UnstableRate,
		rec.Tendency,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, analyzed_at, replay_path, player, beatmap_hash, chart_title, mods, rate, hit_count, missed_inputs, missed_events, mean_offset, unstable_rate, tendency
		 FROM analyses
		 ORDER BY analyzed_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var out []Record
	for rows.Next() {
		var rec Record
		var at string
		if err := rows.Scan(&rec.ID, &at, &rec.ReplayPath, &rec.Player, &rec.BeatmapHash, &rec.ChartTitle, &rec.Mods, &rec.Rate, &rec.HitCount, &rec.MissedInputs, &rec.MissedEvents, &rec.MeanOffset, &rec.UnstableRate, &rec.Tendency); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, err
		}
		rec.AnalyzedAt = parsed
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ForChart returns every record for one beatmap hash, oldest first, so
// callers can chart improvement over time.
func (s *Store) ForChart(ctx context.Context, hash string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, analyzed_at, replay_path, player, beatmap_hash, chart_title, mods, rate, hit_count, missed_inputs, missed_events, mean_offset, unstable_rate, tendency
		 FROM analyses
		 WHERE beatmap_hash = ?
		 ORDER BY analyzed_at ASC, id ASC`, hash)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var out []Record
	for rows.Next() {
		var rec Record
		var at string
		if err := rows.Scan(&rec.ID, &at, &rec.ReplayPath, &rec.Player, &rec.BeatmapHash, &rec.ChartTitle, &rec.Mods, &rec.Rate, &rec.HitCount, &rec.MissedInputs, &rec.MissedEvents, &rec.MeanOffset, &rec.UnstableRate, &rec.Tendency); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, err
		}
		rec.AnalyzedAt = parsed
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
