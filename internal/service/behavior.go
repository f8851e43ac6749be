package service

import (
	"context"
	"fmt"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/store"
)

const (
	maxBehaviorNameLength = 64
	maxBehaviorLength     = 4096
)

// BehaviorService manages the agent behavior registry. The simulation
// never reads it.
type BehaviorService struct {
	store store.BehaviorStore
}

// NewBehaviorService creates a new BehaviorService.
func NewBehaviorService(store store.BehaviorStore) *BehaviorService {
	return &BehaviorService{store: store}
}

// Create registers a new behavior.
func (s *BehaviorService) Create(ctx context.Context, b domain.Behavior) (*domain.Behavior, error) {
	if err := validateBehavior(b); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Update replaces the behavior registered under name. An empty b.Name takes
// name; a different one is rejected.
func (s *BehaviorService) Update(ctx context.Context, name string, b domain.Behavior) (*domain.Behavior, error) {
	if b.Name == "" {
		b.Name = name
	}
	if b.Name != name {
		return nil, &domain.ValidationError{Message: "name in body must match name in path"}
	}
	if err := validateBehavior(b); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Get returns one behavior.
func (s *BehaviorService) Get(ctx context.Context, name string) (*domain.Behavior, error) {
	return s.store.Get(ctx, name)
}

// List returns all behaviors sorted by name.
func (s *BehaviorService) List(ctx context.Context) ([]*domain.Behavior, error) {
	return s.store.List(ctx)
}

func validateBehavior(b domain.Behavior) error {
	if b.Name == "" {
		return &domain.ValidationError{Message: "name is required"}
	}
	if len(b.Name) > maxBehaviorNameLength {
		return &domain.ValidationError{
			Message: fmt.Sprintf("name must be at most %d characters", maxBehaviorNameLength),
		}
	}
	if b.Behavior == "" {
		return &domain.ValidationError{Message: "behavior is required"}
	}
	if len(b.Behavior) > maxBehaviorLength {
		return &domain.ValidationError{
			Message: fmt.Sprintf("behavior must be at most %d characters", maxBehaviorLength),
		}
	}
	return nil
}
