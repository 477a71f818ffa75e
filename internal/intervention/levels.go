package intervention

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/trust-engine/internal/trust"
)

// MemoryLevelStore keeps levels in process memory.
type MemoryLevelStore struct {
	mu     sync.RWMutex
	levels map[string]trust.RiskLevel
}

func NewMemoryLevelStore() *MemoryLevelStore {
	return &MemoryLevelStore{levels: map[string]trust.RiskLevel{}}
}

func (s *MemoryLevelStore) Get(_ context.Context, actorID string) (trust.RiskLevel, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	level, ok := s.levels[actorID]
	return level, ok, nil
}

func (s *MemoryLevelStore) Set(_ context.Context, actorID string, level trust.RiskLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[actorID] = level
	return nil
}

// RedisLevelStore keeps levels in a single hash keyed by actor id.
type RedisLevelStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisLevelStore(client redis.UniversalClient, key string) *RedisLevelStore {
	if client == nil {
		panic("intervention: redis client required")
	}
	if key == "" {
		key = "trust:intervention_levels"
	}
	return &RedisLevelStore{client: client, key: key}
}

func (s *RedisLevelStore) Get(ctx context.Context, actorID string) (trust.RiskLevel, bool, error) {
	raw, err := s.client.HGet(ctx, s.key, actorID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("intervention: get level: %w", err)
	}
	level, err := trust.ParseRiskLevel(raw)
	if err != nil {
		return "", false, fmt.Errorf("intervention: stored level: %w", err)
	}
	return level, true, nil
}

func (s *RedisLevelStore) Set(ctx context.Context, actorID string, level trust.RiskLevel) error {
	if err := s.client.HSet(ctx, s.key, actorID, string(level)).Err(); err != nil {
		return fmt.Errorf("intervention: set level: %w", err)
	}
	return nil
}
