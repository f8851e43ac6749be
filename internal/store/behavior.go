package store

import (
	"context"
	"sort"
	"sync"

	"github.com/efreitasn/marketsim/internal/domain"
)

// BehaviorStore is a key/value registry of agent behaviors keyed by name.
type BehaviorStore interface {
	Create(ctx context.Context, b *domain.Behavior) error
	Get(ctx context.Context, name string) (*domain.Behavior, error)
	Update(ctx context.Context, b *domain.Behavior) error
	List(ctx context.Context) ([]*domain.Behavior, error)
}

// MemoryBehaviorStore is a thread-safe in-memory BehaviorStore.
type MemoryBehaviorStore struct {
	mu        sync.RWMutex
	behaviors map[string]domain.Behavior
}

// NewMemoryBehaviorStore creates an empty MemoryBehaviorStore.
func NewMemoryBehaviorStore() *MemoryBehaviorStore {
	return &MemoryBehaviorStore{
		behaviors: make(map[string]domain.Behavior),
	}
}

// Create adds a behavior. It returns domain.ErrBehaviorAlreadyExists if the
// name is taken.
func (s *MemoryBehaviorStore) Create(_ context.Context, b *domain.Behavior) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.behaviors[b.Name]; exists {
		return domain.ErrBehaviorAlreadyExists
	}
	s.behaviors[b.Name] = *b
	return nil
}

// Get retrieves a behavior by name. It returns domain.ErrBehaviorNotFound if
// it does not exist.
func (s *MemoryBehaviorStore) Get(_ context.Context, name string) (*domain.Behavior, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.behaviors[name]
	if !ok {
		return nil, domain.ErrBehaviorNotFound
	}
	return &b, nil
}

// Update replaces an existing behavior. It returns domain.ErrBehaviorNotFound
// if no behavior has that name.
func (s *MemoryBehaviorStore) Update(_ context.Context, b *domain.Behavior) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.behaviors[b.Name]; !exists {
		return domain.ErrBehaviorNotFound
	}
	s.behaviors[b.Name] = *b
	return nil
}

// List returns all behaviors sorted by name.
func (s *MemoryBehaviorStore) List(_ context.Context) ([]*domain.Behavior, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Behavior, 0, len(s.behaviors))
	for _, b := range s.behaviors {
		b := b
		result = append(result, &b)
	}
	sortBehaviors(result)
	return result, nil
}

func sortBehaviors(bs []*domain.Behavior) {
	sort.Slice(bs, func(i, j int) bool { return bs[i].Name < bs[j].Name })
}
