// Package storage is the persistence collaborator for completed
// evaluations: a SQLite database holding the public leaderboard and the
// private per-identity profiles as two separate payloads.
package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with leaderboard and profile operations.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used
// by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "pitcharena.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

// --- Leaderboard (public payload) ---

// RecordScore upserts the identity's public ranking entry.
func (s *Store) RecordScore(identity string, entry LeaderboardEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO leaderboard (identity, name, track, score, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			name = excluded.name,
			track = excluded.track,
			score = excluded.score,
			updated_at = excluded.updated_at`,
		identity, entry.Name, entry.Track, entry.Score, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Leaderboard returns up to limit entries ordered by score descending,
// ties broken by earliest update.
func (s *Store) Leaderboard(limit int) ([]LeaderboardEntry, error) {
	rows, err := s.db.Query(`
		SELECT identity, name, track, score, updated_at
		FROM leaderboard ORDER BY score DESC, updated_at ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		var updatedAt string
		if err := rows.Scan(&e.Identity, &e.Name, &e.Track, &e.Score, &updatedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		e.UpdatedAt = t
		results = append(results, e)
	}
	return results, rows.Err()
}

// --- Profiles (private payload) ---

// RecordProfile upserts the identity's private profile. The stored
// personal best only ever increases, so a weaker resubmission cannot
// erase an earlier high score.
func (s *Store) RecordProfile(identity string, p Profile) error {
	evalJSON, err := json.Marshal(p.Evaluation)
	if err != nil {
		return fmt.Errorf("marshaling evaluation: %w", err)
	}

	best := p.Evaluation.Total
	if prev, err := s.GetProfile(identity); err == nil && prev.PersonalBest > best {
		best = prev.PersonalBest
	}

	_, err = s.db.Exec(`
		INSERT INTO profiles (identity, name, track, entry, evaluation_json, feedback, evaluated_at, personal_best, has_submitted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(identity) DO UPDATE SET
			name = excluded.name,
			track = excluded.track,
			entry = excluded.entry,
			evaluation_json = excluded.evaluation_json,
			feedback = excluded.feedback,
			evaluated_at = excluded.evaluated_at,
			personal_best = excluded.personal_best,
			has_submitted = 1`,
		identity, p.Name, p.Track, p.Entry, string(evalJSON), p.Evaluation.Feedback,
		p.EvaluatedAt.UTC().Format(time.RFC3339), best,
	)
	return err
}

// GetProfile returns the identity's private profile.
func (s *Store) GetProfile(identity string) (Profile, error) {
	var p Profile
	var evalJSON, evaluatedAt string
	var hasSubmitted int
	err := s.db.QueryRow(`
		SELECT identity, name, track, entry, evaluation_json, evaluated_at, personal_best, has_submitted
		FROM profiles WHERE identity = ?`, identity,
	).Scan(&p.Identity, &p.Name, &p.Track, &p.Entry, &evalJSON, &evaluatedAt, &p.PersonalBest, &hasSubmitted)
	if err == sql.ErrNoRows {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	if err := json.Unmarshal([]byte(evalJSON), &p.Evaluation); err != nil {
		return Profile{}, fmt.Errorf("unmarshaling evaluation: %w", err)
	}
	t, err := time.Parse(time.RFC3339, evaluatedAt)
	if err != nil {
		return Profile{}, fmt.Errorf("parsing evaluated_at: %w", err)
	}
	p.EvaluatedAt = t
	p.HasSubmitted = hasSubmitted == 1
	return p, nil
}
