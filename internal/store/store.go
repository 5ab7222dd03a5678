// Package store persists flywheel state in a local SQLite database:
// feedback entries, improvement actions and their results, validation
// records, interaction logs, and analysis run summaries.
//
// All SQL lives here. Consumers declare narrow interfaces over their own
// types and *Store satisfies them implicitly, so domain packages never
// import database/sql.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is RFC 3339 with fixed-width nanoseconds. Zero-padding
// keeps lexicographic order identical to chronological order, which the
// window queries rely on.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps the SQLite database holding all flywheel state.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn between the background loops.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS feedback (
	id              TEXT PRIMARY KEY,
	interaction_id  TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	kind            TEXT NOT NULL,
	satisfaction    REAL NOT NULL,
	note            TEXT,
	suggestions_json TEXT,
	context_json    TEXT,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);

CREATE TABLE IF NOT EXISTS actions (
	id               TEXT PRIMARY KEY,
	trigger_type     TEXT NOT NULL,
	priority         TEXT NOT NULL,
	action_type      TEXT NOT NULL,
	description      TEXT NOT NULL,
	params_json      TEXT,
	estimated_impact REAL NOT NULL,
	status           TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	completed_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status);
CREATE INDEX IF NOT EXISTS idx_actions_completed ON actions(completed_at);

CREATE TABLE IF NOT EXISTS action_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	action_id   TEXT NOT NULL,
	success     INTEGER NOT NULL,
	detail      TEXT,
	duration_ms INTEGER NOT NULL,
	recorded_at TEXT NOT NULL,
	FOREIGN KEY (action_id) REFERENCES actions(id)
);
CREATE INDEX IF NOT EXISTS idx_results_action ON action_results(action_id);

CREATE TABLE IF NOT EXISTS validations (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	action_id            TEXT NOT NULL,
	validation_status    TEXT NOT NULL,
	improvement_verified INTEGER NOT NULL,
	validated_at         TEXT NOT NULL,
	FOREIGN KEY (action_id) REFERENCES actions(id)
);
CREATE INDEX IF NOT EXISTS idx_validations_action ON validations(action_id);

CREATE TABLE IF NOT EXISTS interactions (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	session_id         TEXT NOT NULL,
	kind               TEXT NOT NULL,
	query              TEXT NOT NULL,
	response_summary   TEXT NOT NULL,
	processing_time_ms REAL NOT NULL,
	tokens_used        INTEGER NOT NULL,
	model_version      TEXT NOT NULL,
	quality_json       TEXT,
	error_detail       TEXT,
	feedback_id        TEXT,
	created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_size           INTEGER NOT NULL,
	average_satisfaction REAL NOT NULL,
	trend                TEXT NOT NULL,
	quality_flag         INTEGER NOT NULL,
	actions_generated    INTEGER NOT NULL,
	kind_counts_json     TEXT,
	issue_counts_json    TEXT,
	ran_at               TEXT NOT NULL
);
`

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}

// decodeNullTime returns a nil pointer for NULL columns.
func decodeNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := decodeTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
