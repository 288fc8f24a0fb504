package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"fund_extractor/pkg/models"
)

// Schema assumption: the table below exists or may be created by the service.
// Migrations beyond CREATE TABLE IF NOT EXISTS are managed elsewhere.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS portfolio_results (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	source_file TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	result_json JSONB NOT NULL
);`

// Postgres stores each result as one JSONB document.
type Postgres struct {
	pool  *pgxpool.Pool
	match *Matcher
}

// NewPostgres connects and ensures the results table exists.
func NewPostgres(ctx context.Context, dsn string, m *Matcher) (*Postgres, error) {
	pool, err := Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create results table: %w", err)
	}
	if m == nil {
		m = NewMatcher(false, nil)
	}
	return &Postgres{pool: pool, match: m}, nil
}

func (s *Postgres) Append(ctx context.Context, r *models.PortfolioResult) error {
	stamp(r)
	jsonData, err := encodeResult(r)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO portfolio_results (id, source_file, created_at, result_json)
		VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, r.ID, r.SourceFile, r.CreatedAt, jsonData); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, filter Filter) ([]*models.PortfolioResult, error) {
	rows, err := s.pool.Query(ctx, `SELECT result_json FROM portfolio_results ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*models.PortfolioResult
	for rows.Next() {
		var jsonData []byte
		if err := rows.Scan(&jsonData); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r, err := decodeResult(jsonData)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}
	return s.match.apply(results, filter)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
