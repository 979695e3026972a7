// Package cache keeps extraction results keyed by the PDF content hash so a
// re-uploaded report does not run the workflow twice.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dental-report-ai/internal/extraction"
)

const defaultTTL = 24 * time.Hour

// Entry is the cached part of a report.
type Entry struct {
	FileID       string            `msgpack:"file_id"`
	InputPattern string            `msgpack:"input_pattern"`
	Source       extraction.Source `msgpack:"source"`
	Fields       extraction.Fields `msgpack:"fields"`
	Missing      []string          `msgpack:"missing"`
	Debug        string            `msgpack:"debug"`
	CachedAt     time.Time         `msgpack:"cached_at"`
}

// Store is a Redis-backed result cache.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

var tracer = otel.Tracer("dental.internal.cache")

// NewStore returns a cache with the given TTL; ttl <= 0 uses 24h.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{redis: redisClient, ttl: ttl}
}

func (s *Store) key(sha string) string {
	return fmt.Sprintf("report:result:%s", sha)
}

// Get returns the entry for sha. A miss is (nil, false, nil).
func (s *Store) Get(ctx context.Context, sha string) (*Entry, bool, error) {
	if s == nil || s.redis == nil {
		return nil, false, nil
	}
	ctx, span := tracer.Start(ctx, "cache.get")
	defer span.End()

	data, err := s.redis.Get(ctx, s.key(sha)).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}

	var entry Entry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		// stale encoding; treat as a miss so it gets rewritten
		_ = s.redis.Del(ctx, s.key(sha)).Err()
		return nil, false, fmt.Errorf("cache: decode: %w", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return &entry, true, nil
}

// Set stores entry under sha with the configured TTL.
func (s *Store) Set(ctx context.Context, sha string, entry *Entry) error {
	if s == nil || s.redis == nil || entry == nil {
		return nil
	}
	ctx, span := tracer.Start(ctx, "cache.set")
	defer span.End()

	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(sha), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Delete drops the entry for sha.
func (s *Store) Delete(ctx context.Context, sha string) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if err := s.redis.Del(ctx, s.key(sha)).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}
