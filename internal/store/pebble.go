package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
)

type agentRecord struct {
	AgentID   string           `json:"agent_id"`
	Name      string           `json:"name"`
	Type      domain.AgentType `json:"type"`
	Balance   decimal.Decimal  `json:"balance"`
	CreatedAt time.Time        `json:"created_at"`
}

type resultRecord struct {
	ResultID   string          `json:"result_id"`
	TickID     string          `json:"tick_id"`
	AgentID    string          `json:"agent_id"`
	ProfitLoss decimal.Decimal `json:"profit_loss"`
	CreatedAt  time.Time       `json:"created_at"`
}

type tickRecord struct {
	TickID  string         `json:"tick_id"`
	Results []resultRecord `json:"results"`
}

func toAgentRecord(a *domain.Agent) agentRecord {
	return agentRecord{
		AgentID:   a.AgentID,
		Name:      a.Name,
		Type:      a.Type,
		Balance:   a.Balance,
		CreatedAt: a.CreatedAt,
	}
}

func (r agentRecord) agent() *domain.Agent {
	return &domain.Agent{
		AgentID:   r.AgentID,
		Name:      r.Name,
		Type:      r.Type,
		Balance:   r.Balance,
		CreatedAt: r.CreatedAt,
	}
}

func toResultRecord(r *domain.SimulationResult) resultRecord {
	return resultRecord{
		ResultID:   r.ResultID,
		TickID:     r.TickID,
		AgentID:    r.AgentID,
		ProfitLoss: r.ProfitLoss,
		CreatedAt:  r.CreatedAt,
	}
}

func (r resultRecord) result() *domain.SimulationResult {
	return &domain.SimulationResult{
		ResultID:   r.ResultID,
		TickID:     r.TickID,
		AgentID:    r.AgentID,
		ProfitLoss: r.ProfitLoss,
		CreatedAt:  r.CreatedAt,
	}
}

// PebbleLedger is a Ledger persisted in a pebble database. A tick is
// written as one batch, so a crash or error leaves either the whole tick
// or none of it on disk.
type PebbleLedger struct {
	db *pebble.DB
	mu sync.Mutex // serializes read-check-write sequences
}

// NewPebbleLedger opens (or creates) a pebble database in dir. A nil opts
// uses pebble's defaults.
func NewPebbleLedger(dir string, opts *pebble.Options) (*PebbleLedger, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble ledger: %w", err)
	}
	return &PebbleLedger{db: db}, nil
}

// Close closes the underlying database.
func (s *PebbleLedger) Close() error {
	return s.db.Close()
}

// CreateAgent persists a new agent. It returns domain.ErrAgentAlreadyExists
// if an agent with the same ID already exists.
func (s *PebbleLedger) CreateAgent(_ context.Context, a *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.exists(agentKey(a.AgentID))
	if err != nil {
		return err
	}
	if found {
		return domain.ErrAgentAlreadyExists
	}

	data, err := json.Marshal(toAgentRecord(a))
	if err != nil {
		return fmt.Errorf("marshal agent: %w", err)
	}
	if err := s.db.Set(agentKey(a.AgentID), data, pebble.Sync); err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

// GetAgent loads an agent by ID. It returns domain.ErrAgentNotFound if the
// agent does not exist.
func (s *PebbleLedger) GetAgent(_ context.Context, id string) (*domain.Agent, error) {
	var rec agentRecord
	found, err := s.getJSON(agentKey(id), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrAgentNotFound
	}
	return rec.agent(), nil
}

// ListAgents returns all agents ordered by creation time.
func (s *PebbleLedger) ListAgents(_ context.Context) ([]*domain.Agent, error) {
	prefix := []byte(prefixAgent)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	defer iter.Close()

	agents := make([]*domain.Agent, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		var rec agentRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal agent %s: %w", iter.Key(), err)
		}
		agents = append(agents, rec.agent())
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	sortAgents(agents)
	return agents, nil
}

// CommitTick checks the commit against the stored state and writes every
// balance, result and the tick marker in a single synced batch.
func (s *PebbleLedger) CommitTick(_ context.Context, c *domain.TickCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.TickID == "" {
		return fmt.Errorf("%w: empty tick id", domain.ErrCommitFailure)
	}
	done, err := s.exists(tickKey(c.TickID))
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
	}
	if done {
		return fmt.Errorf("%w: tick %s already committed", domain.ErrCommitFailure, c.TickID)
	}

	if err := checkDistinct(c); err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, u := range c.Balances {
		var rec agentRecord
		found, err := s.getJSON(agentKey(u.AgentID), &rec)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
		}
		if !found {
			return fmt.Errorf("%w: agent %s: %w", domain.ErrCommitFailure, u.AgentID, domain.ErrAgentNotFound)
		}
		if !rec.Balance.Equal(u.Prior) {
			return fmt.Errorf("%w: stale balance for agent %s", domain.ErrCommitFailure, u.AgentID)
		}
		rec.Balance = u.New
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("%w: marshal agent: %w", domain.ErrCommitFailure, err)
		}
		if err := batch.Set(agentKey(u.AgentID), data, nil); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
		}
	}

	tick := tickRecord{TickID: c.TickID, Results: make([]resultRecord, 0, len(c.Results))}
	for _, r := range c.Results {
		found, err := s.exists(agentKey(r.AgentID))
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
		}
		if !found {
			return fmt.Errorf("%w: agent %s: %w", domain.ErrCommitFailure, r.AgentID, domain.ErrAgentNotFound)
		}
		rec := toResultRecord(r)
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("%w: marshal result: %w", domain.ErrCommitFailure, err)
		}
		key := resultKey(r.AgentID, r.CreatedAt.UnixNano(), r.ResultID)
		if err := batch.Set(key, data, nil); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
		}
		tick.Results = append(tick.Results, rec)
	}

	data, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("%w: marshal tick: %w", domain.ErrCommitFailure, err)
	}
	if err := batch.Set(tickKey(c.TickID), data, nil); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
	}
	return nil
}

// ResultsByAgent returns the agent's results in chronological order.
func (s *PebbleLedger) ResultsByAgent(_ context.Context, agentID string) ([]*domain.SimulationResult, error) {
	found, err := s.exists(agentKey(agentID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrAgentNotFound
	}

	prefix := resultPrefix(agentID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	defer iter.Close()

	results := make([]*domain.SimulationResult, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		var rec resultRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal result %s: %w", iter.Key(), err)
		}
		results = append(results, rec.result())
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// ResultsByTick returns the results committed by a tick, in commit order.
func (s *PebbleLedger) ResultsByTick(_ context.Context, tickID string) ([]*domain.SimulationResult, error) {
	var rec tickRecord
	found, err := s.getJSON(tickKey(tickID), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrTickNotFound
	}
	results := make([]*domain.SimulationResult, len(rec.Results))
	for i, r := range rec.Results {
		results[i] = r.result()
	}
	return results, nil
}

func (s *PebbleLedger) exists(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	closer.Close()
	return true, nil
}

func (s *PebbleLedger) getJSON(key []byte, v any) (bool, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

var (
	_ Ledger = (*MemoryLedger)(nil)
	_ Ledger = (*PebbleLedger)(nil)
)
