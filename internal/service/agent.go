package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/store"
)

const (
	maxAgentNameLength = 64
	maxRandomAgents    = 1000
)

// CreateAgentRequest represents the input for agent creation.
type CreateAgentRequest struct {
	Name    string
	Type    domain.AgentType
	Balance *float64 // nil means domain.DefaultBalance
}

// AgentService manages the agent directory.
type AgentService struct {
	ledger store.Ledger

	mu   sync.Mutex
	rng  *rand.Rand
	last time.Time // last CreatedAt handed out
}

// NewAgentService creates an AgentService. seed drives the names and types
// of random agents.
func NewAgentService(ledger store.Ledger, seed uint64) *AgentService {
	return &AgentService{
		ledger: ledger,
		rng:    rand.New(rand.NewPCG(seed, seed+1)),
	}
}

// Create validates the request and adds a new agent.
func (s *AgentService) Create(ctx context.Context, req CreateAgentRequest) (*domain.Agent, error) {
	if req.Name == "" {
		return nil, &domain.ValidationError{Message: "name is required"}
	}
	if len(req.Name) > maxAgentNameLength {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("name must be at most %d characters", maxAgentNameLength),
		}
	}
	if !req.Type.Valid() {
		return nil, &domain.ValidationError{
			Message: "agent_type must be one of: intelligent, technical, thesis",
		}
	}

	balance := domain.DefaultBalance
	if req.Balance != nil {
		if *req.Balance < 0 {
			return nil, &domain.ValidationError{Message: "balance must be >= 0"}
		}
		b, err := domain.AmountFromFloat(*req.Balance)
		if err != nil {
			return nil, &domain.ValidationError{Message: "balance must have at most 2 decimal places"}
		}
		balance = b
	}

	return s.create(ctx, req.Name, req.Type, balance)
}

// AddRandom creates count agents named Agent_<1000..9999> with a random
// type and the default balance.
func (s *AgentService) AddRandom(ctx context.Context, count int) ([]*domain.Agent, error) {
	if count < 1 || count > maxRandomAgents {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("count must be between 1 and %d", maxRandomAgents),
		}
	}

	agents := make([]*domain.Agent, 0, count)
	for range count {
		s.mu.Lock()
		name := fmt.Sprintf("Agent_%d", 1000+s.rng.IntN(9000))
		typ := domain.AgentTypes[s.rng.IntN(len(domain.AgentTypes))]
		s.mu.Unlock()

		a, err := s.create(ctx, name, typ, domain.DefaultBalance)
		if err != nil {
			return agents, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// Get returns an agent by ID.
func (s *AgentService) Get(ctx context.Context, agentID string) (*domain.Agent, error) {
	return s.ledger.GetAgent(ctx, agentID)
}

// List returns every agent in creation order.
func (s *AgentService) List(ctx context.Context) ([]*domain.Agent, error) {
	return s.ledger.ListAgents(ctx)
}

// Results returns the agent's simulation results, oldest first.
func (s *AgentService) Results(ctx context.Context, agentID string) ([]*domain.SimulationResult, error) {
	return s.ledger.ResultsByAgent(ctx, agentID)
}

func (s *AgentService) create(ctx context.Context, name string, typ domain.AgentType, balance decimal.Decimal) (*domain.Agent, error) {
	a := &domain.Agent{
		AgentID:   uuid.New().String(),
		Name:      name,
		Type:      typ,
		Balance:   balance,
		CreatedAt: s.now(),
	}
	if err := s.ledger.CreateAgent(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// now returns a strictly increasing timestamp so creation order survives
// stores that sort by CreatedAt.
func (s *AgentService) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := time.Now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}
