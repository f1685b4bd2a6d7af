package curate

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/careops/lattice/internal/core/model"
)

// GoldenStore persists the golden example set and the human-review queue in
// SQLite. A single connection avoids "database is locked" errors; WAL mode
// keeps concurrent readers cheap.
type GoldenStore struct {
	db *sql.DB
}

// OpenGoldenStore opens (or creates) the database in dataDir. Pass
// ":memory:" for an in-memory database (used by tests).
func OpenGoldenStore(dataDir string) (*GoldenStore, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "golden.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &GoldenStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *GoldenStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS golden_examples (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			accepted_query TEXT NOT NULL,
			validated_at DATETIME NOT NULL,
			source TEXT NOT NULL,
			flagged INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS review_queue (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			query TEXT NOT NULL,
			result_json TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
	}
	return nil
}

func (s *GoldenStore) Close() error {
	return s.db.Close()
}

func (s *GoldenStore) InsertExample(ex model.GoldenExample) error {
	_, err := s.db.Exec(
		`INSERT INTO golden_examples (id, question, accepted_query, validated_at, source, flagged)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.Question, ex.AcceptedQuery, ex.ValidatedAt.UTC().Format(time.RFC3339), string(ex.Source), boolToInt(ex.Flagged))
	if err != nil {
		return fmt.Errorf("inserting golden example: %w", err)
	}
	return nil
}

// Examples returns unflagged examples, most recently validated first.
// limit <= 0 returns everything.
func (s *GoldenStore) Examples(limit int) ([]model.GoldenExample, error) {
	query := `SELECT id, question, accepted_query, validated_at, source, flagged
		  FROM golden_examples WHERE flagged = 0 ORDER BY validated_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.scanExamples(query, args...)
}

// AllExamples returns every example, flagged included, for revalidation.
func (s *GoldenStore) AllExamples() ([]model.GoldenExample, error) {
	return s.scanExamples(
		`SELECT id, question, accepted_query, validated_at, source, flagged
		 FROM golden_examples ORDER BY validated_at DESC`)
}

func (s *GoldenStore) scanExamples(query string, args ...any) ([]model.GoldenExample, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying golden examples: %w", err)
	}
	defer rows.Close()

	var out []model.GoldenExample
	for rows.Next() {
		var ex model.GoldenExample
		var validatedAt, source string
		var flagged int
		if err := rows.Scan(&ex.ID, &ex.Question, &ex.AcceptedQuery, &validatedAt, &source, &flagged); err != nil {
			return nil, fmt.Errorf("scanning golden example: %w", err)
		}
		ex.ValidatedAt, _ = time.Parse(time.RFC3339, validatedAt)
		ex.Source = model.GoldenSource(source)
		ex.Flagged = flagged != 0
		out = append(out, ex)
	}
	return out, rows.Err()
}

func (s *GoldenStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM golden_examples WHERE flagged = 0`).Scan(&n)
	return n, err
}

// RemoveExamples deletes the given examples in one transaction, so readers
// see either the old set or the filtered set, never a partial sweep.
func (s *GoldenStore) RemoveExamples(ids []string) error {
	return s.sweep(`DELETE FROM golden_examples WHERE id = ?`, ids)
}

// FlagExamples marks the given examples invalid without deleting them.
func (s *GoldenStore) FlagExamples(ids []string) error {
	return s.sweep(`UPDATE golden_examples SET flagged = 1 WHERE id = ?`, ids)
}

// MarkValidated refreshes the validation timestamp of surviving examples.
func (s *GoldenStore) MarkValidated(ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE golden_examples SET validated_at = ? WHERE id = ?`,
			at.UTC().Format(time.RFC3339), id); err != nil {
			tx.Rollback()
			return fmt.Errorf("marking example validated: %w", err)
		}
	}
	return tx.Commit()
}

func (s *GoldenStore) sweep(stmt string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.Exec(stmt, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("sweeping golden examples: %w", err)
		}
	}
	return tx.Commit()
}

func (s *GoldenStore) InsertReview(item model.ReviewItem) error {
	_, err := s.db.Exec(
		`INSERT INTO review_queue (id, question, query, result_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.Question, item.Query, item.ResultJSON, item.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting review item: %w", err)
	}
	return nil
}

func (s *GoldenStore) Reviews() ([]model.ReviewItem, error) {
	rows, err := s.db.Query(
		`SELECT id, question, query, result_json, created_at FROM review_queue ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying review queue: %w", err)
	}
	defer rows.Close()

	var out []model.ReviewItem
	for rows.Next() {
		var item model.ReviewItem
		var createdAt string
		if err := rows.Scan(&item.ID, &item.Question, &item.Query, &item.ResultJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning review item: %w", err)
		}
		item.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, item)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
