package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// Store persists aggregate entries. Get returns nil, nil when no entry exists.
type Store interface {
	Save(ctx context.Context, e Entry) error
	Get(ctx context.Context, actorID, targetID string) (*Entry, error)
	Delete(ctx context.Context, actorID, targetID string) error
}

// Evictor is implemented by stores that need an explicit sweep to drop old entries.
type Evictor interface {
	Evict(before time.Time) int
}

// InMemoryStore is an in-memory Store.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[Pair]Entry
}

// NewInMemoryStore creates a new in-memory aggregate store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[Pair]Entry)}
}

// Save stores an entry, replacing any previous one for the pair.
func (s *InMemoryStore) Save(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[Pair{ActorID: e.ActorID, TargetID: e.TargetID}] = e
	return nil
}

// Get retrieves an entry.
func (s *InMemoryStore) Get(_ context.Context, actorID, targetID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[Pair{ActorID: actorID, TargetID: targetID}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Delete removes the entry for a pair, if any.
func (s *InMemoryStore) Delete(_ context.Context, actorID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, Pair{ActorID: actorID, TargetID: targetID})
	return nil
}

// Evict drops entries computed before the cutoff and returns how many were removed.
func (s *InMemoryStore) Evict(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int
	for p, e := range s.entries {
		if e.ComputedAt.Before(before) {
			delete(s.entries, p)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// RedisStore stores CBOR-encoded entries in Redis with an expiry slightly
// past the staleness bound, so expired keys are never served as fresh.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed aggregate store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 2 * DefaultMaxStaleness
	}
	return &RedisStore{client: client, ttl: ttl}
}

// entryEncMode keeps sub-second precision on ComputedAt.
var entryEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func redisKey(actorID, targetID string) string {
	return fmt.Sprintf("aggregate:interaction:%s:%s", actorID, targetID)
}

// Save stores an entry.
func (s *RedisStore) Save(ctx context.Context, e Entry) error {
	data, err := entryEncMode.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate entry: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(e.ActorID, e.TargetID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save aggregate entry: %w", err)
	}
	return nil
}

// Get retrieves an entry.
func (s *RedisStore) Get(ctx context.Context, actorID, targetID string) (*Entry, error) {
	data, err := s.client.Get(ctx, redisKey(actorID, targetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate entry: %w", err)
	}
	var e Entry
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate entry: %w", err)
	}
	return &e, nil
}

// Delete removes the entry for a pair, if any.
func (s *RedisStore) Delete(ctx context.Context, actorID, targetID string) error {
	if err := s.client.Del(ctx, redisKey(actorID, targetID)).Err(); err != nil {
		return fmt.Errorf("failed to delete aggregate entry: %w", err)
	}
	return nil
}
