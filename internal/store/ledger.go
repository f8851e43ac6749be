package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Ledger is the agent directory and durable result sink used by the
// simulation. CommitTick must apply a whole tick or nothing.
type Ledger interface {
	CreateAgent(ctx context.Context, a *domain.Agent) error
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]*domain.Agent, error)
	CommitTick(ctx context.Context, c *domain.TickCommit) error
	ResultsByAgent(ctx context.Context, agentID string) ([]*domain.SimulationResult, error)
	ResultsByTick(ctx context.Context, tickID string) ([]*domain.SimulationResult, error)
	Close() error
}

// MemoryLedger is a thread-safe in-memory Ledger. Agents are returned as
// copies so the stored balance can only change through CommitTick.
type MemoryLedger struct {
	mu      sync.RWMutex
	agents  map[string]*domain.Agent
	order   []string                              // agent IDs in creation order
	byAgent map[string][]*domain.SimulationResult // agent_id → results (chronological)
	byTick  map[string][]*domain.SimulationResult // tick_id → results
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		agents:  make(map[string]*domain.Agent),
		byAgent: make(map[string][]*domain.SimulationResult),
		byTick:  make(map[string][]*domain.SimulationResult),
	}
}

// CreateAgent adds an agent. It returns domain.ErrAgentAlreadyExists if an
// agent with the same ID already exists.
func (s *MemoryLedger) CreateAgent(_ context.Context, a *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[a.AgentID]; exists {
		return domain.ErrAgentAlreadyExists
	}
	cp := *a
	s.agents[a.AgentID] = &cp
	s.order = append(s.order, a.AgentID)
	return nil
}

// GetAgent retrieves a copy of an agent by ID. It returns
// domain.ErrAgentNotFound if the agent does not exist.
func (s *MemoryLedger) GetAgent(_ context.Context, id string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

// ListAgents returns copies of all agents in creation order.
func (s *MemoryLedger) ListAgents(_ context.Context) ([]*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Agent, 0, len(s.order))
	for _, id := range s.order {
		cp := *s.agents[id]
		result = append(result, &cp)
	}
	return result, nil
}

// CommitTick validates the whole commit and then applies it under a single
// write lock, so readers never observe a partially applied tick.
func (s *MemoryLedger) CommitTick(_ context.Context, c *domain.TickCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.TickID == "" {
		return fmt.Errorf("%w: empty tick id", domain.ErrCommitFailure)
	}
	if _, done := s.byTick[c.TickID]; done {
		return fmt.Errorf("%w: tick %s already committed", domain.ErrCommitFailure, c.TickID)
	}
	if err := checkDistinct(c); err != nil {
		return err
	}
	for _, u := range c.Balances {
		a, ok := s.agents[u.AgentID]
		if !ok {
			return fmt.Errorf("%w: agent %s: %w", domain.ErrCommitFailure, u.AgentID, domain.ErrAgentNotFound)
		}
		if !a.Balance.Equal(u.Prior) {
			return fmt.Errorf("%w: stale balance for agent %s", domain.ErrCommitFailure, u.AgentID)
		}
	}
	for _, r := range c.Results {
		if _, ok := s.agents[r.AgentID]; !ok {
			return fmt.Errorf("%w: agent %s: %w", domain.ErrCommitFailure, r.AgentID, domain.ErrAgentNotFound)
		}
	}

	for _, u := range c.Balances {
		s.agents[u.AgentID].Balance = u.New
	}
	results := make([]*domain.SimulationResult, len(c.Results))
	for i, r := range c.Results {
		cp := *r
		results[i] = &cp
		s.byAgent[r.AgentID] = append(s.byAgent[r.AgentID], &cp)
	}
	s.byTick[c.TickID] = results
	return nil
}

// ResultsByAgent returns the agent's results in chronological order.
// Returns domain.ErrAgentNotFound for an unknown agent.
func (s *MemoryLedger) ResultsByAgent(_ context.Context, agentID string) ([]*domain.SimulationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.agents[agentID]; !ok {
		return nil, domain.ErrAgentNotFound
	}
	return copyResults(s.byAgent[agentID]), nil
}

// ResultsByTick returns the results committed by a tick.
// Returns domain.ErrTickNotFound for an unknown tick.
func (s *MemoryLedger) ResultsByTick(_ context.Context, tickID string) ([]*domain.SimulationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, ok := s.byTick[tickID]
	if !ok {
		return nil, domain.ErrTickNotFound
	}
	return copyResults(results), nil
}

// Close is a no-op for the in-memory ledger.
func (s *MemoryLedger) Close() error {
	return nil
}

// checkDistinct rejects a commit that updates the same agent twice.
func checkDistinct(c *domain.TickCommit) error {
	seen := make(map[string]struct{}, len(c.Balances))
	for _, u := range c.Balances {
		if _, dup := seen[u.AgentID]; dup {
			return fmt.Errorf("%w: duplicate balance update for agent %s", domain.ErrCommitFailure, u.AgentID)
		}
		seen[u.AgentID] = struct{}{}
	}
	return nil
}

func copyResults(in []*domain.SimulationResult) []*domain.SimulationResult {
	out := make([]*domain.SimulationResult, len(in))
	for i, r := range in {
		cp := *r
		out[i] = &cp
	}
	return out
}

func sortAgents(agents []*domain.Agent) {
	sort.SliceStable(agents, func(i, j int) bool {
		if !agents[i].CreatedAt.Equal(agents[j].CreatedAt) {
			return agents[i].CreatedAt.Before(agents[j].CreatedAt)
		}
		return agents[i].AgentID < agents[j].AgentID
	})
}
