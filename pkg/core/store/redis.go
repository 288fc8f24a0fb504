package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"fund_extractor/pkg/models"
)

// DefaultRedisKey is the list that holds results.
const DefaultRedisKey = "fundextract:results"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Redis appends JSON documents to one list; RPUSH order is insertion order.
type Redis struct {
	client *redis.Client
	key    string
	match  *Matcher
}

// NewRedis connects and checks the server answers PING.
func NewRedis(ctx context.Context, opts RedisOptions, m *Matcher) (*Redis, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	if opts.Key == "" {
		opts.Key = DefaultRedisKey
	}
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	if pong != "PONG" {
		client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	if m == nil {
		m = NewMatcher(false, nil)
	}
	return &Redis{client: client, key: opts.Key, match: m}, nil
}

func (s *Redis) Append(ctx context.Context, r *models.PortfolioResult) error {
	stamp(r)
	data, err := encodeResult(r)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

func (s *Redis) List(ctx context.Context, filter Filter) ([]*models.PortfolioResult, error) {
	vals, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	results := make([]*models.PortfolioResult, 0, len(vals))
	for _, v := range vals {
		r, err := decodeResult([]byte(v))
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return s.match.apply(results, filter)
}

func (s *Redis) Close() error {
	return s.client.Close()
}
