package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps lead records as JSON strings with a native key expiry.
type RedisStore struct {
	client redis.UniversalClient
	keys   Keys
}

// NewRedisStore builds a store in the given key namespace (e.g. "contact").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if client == nil {
		panic("leads: redis client required")
	}
	return &RedisStore{client: client, keys: Keys{Prefix: prefix}}
}

// Put writes the record with SET NX so an existing ticket is never replaced.
func (s *RedisStore) Put(ctx context.Context, rec *Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("leads: marshal record: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.keys.Record(rec.Ticket), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("leads: redis put: %w", err)
	}
	if !ok {
		return ErrTicketExists
	}
	return nil
}

// Get loads a record by ticket.
func (s *RedisStore) Get(ctx context.Context, ticket string) (*Record, error) {
	data, err := s.client.Get(ctx, s.keys.Record(ticket)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leads: redis get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("leads: decode record: %w", err)
	}
	return &rec, nil
}

// IndexByTime writes the secondary "<prefix>_by_time:<stamp>:<ticket>" marker.
func (s *RedisStore) IndexByTime(ctx context.Context, rec *Record, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keys.TimeIndex(rec), "1", ttl).Err(); err != nil {
		return fmt.Errorf("leads: redis index: %w", err)
	}
	return nil
}

// ListRecent scans the index namespace and returns the newest entries first.
func (s *RedisStore) ListRecent(ctx context.Context, limit int) ([]IndexEntry, error) {
	prefix := s.keys.TimeIndexPrefix()
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("leads: redis scan: %w", err)
	}
	return entriesFromKeys(keys, prefix, limit), nil
}

var _ Store = (*RedisStore)(nil)
