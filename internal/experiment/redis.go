package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultAssignmentCacheTTL bounds how long a cached assignment lives in Redis.
const DefaultAssignmentCacheTTL = 24 * time.Hour

// CachedAssignmentStore fronts a durable AssignmentStore with Redis.
// The durable store stays authoritative; Redis failures fall through to it.
type CachedAssignmentStore struct {
	client  *redis.Client
	durable AssignmentStore
	ttl     time.Duration
	prefix  string
	logger  *slog.Logger
}

// NewCachedAssignmentStore creates a Redis cache over durable.
func NewCachedAssignmentStore(client *redis.Client, durable AssignmentStore, ttl time.Duration, logger *slog.Logger) *CachedAssignmentStore {
	if ttl <= 0 {
		ttl = DefaultAssignmentCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedAssignmentStore{
		client:  client,
		durable: durable,
		ttl:     ttl,
		prefix:  "experiment:assignment:",
		logger:  logger,
	}
}

func (s *CachedAssignmentStore) key(userID, experiment string) string {
	return s.prefix + experiment + ":" + userID
}

// GetAssignment checks Redis first and populates it from the durable store on a miss.
func (s *CachedAssignmentStore) GetAssignment(ctx context.Context, userID, experiment string) (*Assignment, error) {
	raw, err := s.client.Get(ctx, s.key(userID, experiment)).Bytes()
	switch {
	case err == nil:
		var a Assignment
		if jsonErr := json.Unmarshal(raw, &a); jsonErr == nil {
			return &a, nil
		}
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("assignment cache read failed", "experiment", experiment, "error", err)
	}

	a, err := s.durable.GetAssignment(ctx, userID, experiment)
	if err != nil || a == nil {
		return a, err
	}
	s.remember(ctx, *a)
	return a, nil
}

// CreateAssignment writes through the durable store and caches the winning row.
func (s *CachedAssignmentStore) CreateAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	stored, err := s.durable.CreateAssignment(ctx, a)
	if err != nil {
		return Assignment{}, fmt.Errorf("failed to create assignment: %w", err)
	}
	s.remember(ctx, stored)
	return stored, nil
}

// DeleteAssignment evicts the cached row before deleting the durable one, so a
// cache failure leaves the assignment intact rather than served stale.
func (s *CachedAssignmentStore) DeleteAssignment(ctx context.Context, userID, experiment string) error {
	deleter, ok := s.durable.(AssignmentDeleter)
	if !ok {
		return errors.New("durable assignment store does not support deletion")
	}
	if err := s.client.Del(ctx, s.key(userID, experiment)).Err(); err != nil {
		return fmt.Errorf("failed to evict cached assignment: %w", err)
	}
	if err := deleter.DeleteAssignment(ctx, userID, experiment); err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	return nil
}

// remember caches a with SETNX so an existing cache entry is never replaced.
func (s *CachedAssignmentStore) remember(ctx context.Context, a Assignment) {
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := s.client.SetNX(ctx, s.key(a.UserID, a.Experiment), data, s.ttl).Err(); err != nil {
		s.logger.Warn("assignment cache write failed", "experiment", a.Experiment, "error", err)
	}
}
