package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"fund_extractor/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS portfolio_results (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	source_file TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	payload     TEXT NOT NULL
);`

// SQLite keeps results in a single file.
type SQLite struct {
	db    *sql.DB
	path  string
	match *Matcher
}

// NewSQLite opens or creates the database at path.
func NewSQLite(ctx context.Context, path string, m *Matcher) (*SQLite, error) {
	if path == "" {
		path = filepath.Join("data", "results.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL mode lets readers proceed while an upload is being written
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if m == nil {
		m = NewMatcher(false, nil)
	}
	return &SQLite{db: db, path: path, match: m}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Append(ctx context.Context, r *models.PortfolioResult) error {
	stamp(r)
	payload, err := encodeResult(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO portfolio_results (id, source_file, created_at, payload) VALUES (?, ?, ?, ?)`,
		r.ID, r.SourceFile, r.CreatedAt.Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("inserting result: %w", err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, filter Filter) ([]*models.PortfolioResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM portfolio_results ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var results []*models.PortfolioResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		r, err := decodeResult([]byte(payload))
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return s.match.apply(results, filter)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
