package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/efreitasn/marketsim/internal/domain"
)

// updateIfExistsScript replaces a hash field only when it already exists,
// so a concurrent create cannot be turned into an update.
var updateIfExistsScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
    redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
    return 1
end
return 0
`)

type behaviorRecord struct {
	Name     string `json:"name"`
	Behavior string `json:"behavior"`
}

// RedisBehaviorStore keeps behaviors as JSON values in a single Redis hash.
type RedisBehaviorStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisBehaviorStore creates a store backed by the hash at key.
func NewRedisBehaviorStore(client redis.Cmdable, key string) *RedisBehaviorStore {
	return &RedisBehaviorStore{client: client, key: key}
}

// Create adds a behavior with HSETNX.
func (s *RedisBehaviorStore) Create(ctx context.Context, b *domain.Behavior) error {
	data, err := json.Marshal(behaviorRecord{Name: b.Name, Behavior: b.Behavior})
	if err != nil {
		return fmt.Errorf("marshal behavior: %w", err)
	}
	created, err := s.client.HSetNX(ctx, s.key, b.Name, data).Result()
	if err != nil {
		return fmt.Errorf("create behavior: %w", err)
	}
	if !created {
		return domain.ErrBehaviorAlreadyExists
	}
	return nil
}

// Get retrieves a behavior by name.
func (s *RedisBehaviorStore) Get(ctx context.Context, name string) (*domain.Behavior, error) {
	data, err := s.client.HGet(ctx, s.key, name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrBehaviorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get behavior: %w", err)
	}
	return decodeBehavior(data)
}

// Update replaces an existing behavior atomically.
func (s *RedisBehaviorStore) Update(ctx context.Context, b *domain.Behavior) error {
	data, err := json.Marshal(behaviorRecord{Name: b.Name, Behavior: b.Behavior})
	if err != nil {
		return fmt.Errorf("marshal behavior: %w", err)
	}
	updated, err := updateIfExistsScript.Run(ctx, s.client, []string{s.key}, b.Name, data).Int()
	if err != nil {
		return fmt.Errorf("update behavior: %w", err)
	}
	if updated == 0 {
		return domain.ErrBehaviorNotFound
	}
	return nil
}

// List returns all behaviors sorted by name.
func (s *RedisBehaviorStore) List(ctx context.Context) ([]*domain.Behavior, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list behaviors: %w", err)
	}
	result := make([]*domain.Behavior, 0, len(all))
	for _, v := range all {
		b, err := decodeBehavior([]byte(v))
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	sortBehaviors(result)
	return result, nil
}

func decodeBehavior(data []byte) (*domain.Behavior, error) {
	var rec behaviorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal behavior: %w", err)
	}
	return &domain.Behavior{Name: rec.Name, Behavior: rec.Behavior}, nil
}

var (
	_ BehaviorStore = (*MemoryBehaviorStore)(nil)
	_ BehaviorStore = (*RedisBehaviorStore)(nil)
)
