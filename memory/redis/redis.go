// Package redis is the remote memory backend. Each user's turns live in a
// Redis list of JSON documents, oldest first, trimmed to a fixed length.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/memory"
	goredis "github.com/redis/go-redis/v9"
)

// Options configure the store.
type Options struct {
	// KeyPrefix is prepended to the user id to form the list key.
	KeyPrefix string
	// MaxTurns bounds the list length per user.
	MaxTurns int64
	// ScanLimit bounds how many recent turns SearchMemory inspects.
	ScanLimit int64
}

// Store implements memory.Remote on a go-redis client.
type Store struct {
	client *goredis.Client
	opts   Options
}

var _ memory.Remote = (*Store)(nil)

// New wraps an existing client.
func New(client *goredis.Client, optFns ...func(o *Options)) *Store {
	opts := Options{
		KeyPrefix: "memory:user:",
		MaxTurns:  200,
		ScanLimit: 200,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, opts: opts}
}

// NewFromURL parses a redis:// URL and creates a store with its own client.
func NewFromURL(url string, optFns ...func(o *Options)) (*Store, error) {
	ropts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(goredis.NewClient(ropts), optFns...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(userID string) string { return s.opts.KeyPrefix + userID }

// Ping checks that the server answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// AddMemory appends turn to the user's list and trims it.
func (s *Store) AddMemory(ctx context.Context, userID string, turn core.Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}

	key := s.key(userID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -s.opts.MaxTurns, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// GetMemory returns up to limit of the most recent turns, oldest first.
func (s *Store) GetMemory(ctx context.Context, userID string, limit int) ([]core.Turn, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	return s.lrange(ctx, userID, start)
}

// SearchMemory scans the most recent turns for query, newest first.
func (s *Store) SearchMemory(ctx context.Context, userID, query string, limit int) ([]core.Turn, error) {
	turns, err := s.lrange(ctx, userID, -s.opts.ScanLimit)
	if err != nil {
		return nil, err
	}
	return memory.SearchTurns(turns, query, limit), nil
}

func (s *Store) lrange(ctx context.Context, userID string, start int64) ([]core.Turn, error) {
	raw, err := s.client.LRange(ctx, s.key(userID), start, -1).Result()
	if err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("read turns: %w", err)
	}
	turns := make([]core.Turn, 0, len(raw))
	for _, item := range raw {
		var t core.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}
