// Package store keeps processed portfolio results. Results are appended,
// never mutated, and listed in insertion order.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fund_extractor/pkg/models"
)

// Store is implemented by every backend.
type Store interface {
	Append(ctx context.Context, r *models.PortfolioResult) error
	List(ctx context.Context, filter Filter) ([]*models.PortfolioResult, error)
	Close() error
}

// Drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Driver string `mapstructure:"driver"`
	// DSN is the postgres connection string; empty falls back to DATABASE_URL.
	DSN string `mapstructure:"dsn"`
	// Path is the sqlite database file.
	Path string `mapstructure:"path"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`

	// ApplyFilters turns on query parameter matching. When false every
	// stored result is returned whatever the parameters.
	ApplyFilters bool `mapstructure:"apply_filters"`
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := NewMatcher(cfg.ApplyFilters, logger)

	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", DriverMemory:
		s = NewMemory(m)
	case DriverSQLite:
		s, err = NewSQLite(ctx, cfg.Path, m)
	case DriverPostgres:
		s, err = NewPostgres(ctx, cfg.DSN, m)
	case DriverRedis:
		s, err = NewRedis(ctx, RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB, Key: cfg.RedisKey}, m)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("Store opened", zap.String("driver", nameOr(cfg.Driver, DriverMemory)), zap.Bool("apply_filters", cfg.ApplyFilters))
	return s, nil
}

// stamp assigns the identity fields a result gets on first append.
func stamp(r *models.PortfolioResult) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
}

func nameOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// encodeResult and decodeResult are the persisted form shared by the
// database backends. Numbers decode as json.Number so they round-trip verbatim.
func encodeResult(r *models.PortfolioResult) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result %s: %w", r.ID, err)
	}
	return b, nil
}

func decodeResult(b []byte) (*models.PortfolioResult, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var r models.PortfolioResult
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &r, nil
}
