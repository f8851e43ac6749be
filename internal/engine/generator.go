package engine

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/efreitasn/marketsim/internal/domain"
)

const (
	minPrice    = 1.0
	maxPrice    = 100.0
	minQuantity = 1
	maxQuantity = 10
)

// Generator draws one stochastic order per agent. It is safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a Generator with a deterministic PCG source.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Generate draws a single order for agent: side uniform over buy/sell,
// price uniform in (1, 100), quantity uniform in [1, 10].
func (g *Generator) Generate(agent *domain.Agent) (*domain.Order, error) {
	if err := validateAgent(agent); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return draw(g.rng, agent.AgentID), nil
}

// GenerateAll draws exactly one order per agent, in agent order. Every agent
// is validated before any order is drawn; a nil agent, an empty ID or a
// duplicate ID fails with domain.ErrInvalidAgent.
//
// Agent i draws from its own stream derived from a per-call seed, so the
// result does not depend on the number of workers.
func (g *Generator) GenerateAll(agents []*domain.Agent, workers int) ([]*domain.Order, error) {
	seen := make(map[string]struct{}, len(agents))
	for _, a := range agents {
		if err := validateAgent(a); err != nil {
			return nil, err
		}
		if _, dup := seen[a.AgentID]; dup {
			return nil, fmt.Errorf("%w: duplicate agent %s", domain.ErrInvalidAgent, a.AgentID)
		}
		seen[a.AgentID] = struct{}{}
	}

	g.mu.Lock()
	seed := g.rng.Uint64()
	g.mu.Unlock()

	orders := make([]*domain.Order, len(agents))

	if workers <= 1 {
		for i, a := range agents {
			orders[i] = draw(stream(seed, i), a.AgentID)
		}
		return orders, nil
	}

	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, a := range agents {
		eg.Go(func() error {
			orders[i] = draw(stream(seed, i), a.AgentID)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return orders, nil
}

func stream(seed uint64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(i)))
}

func validateAgent(a *domain.Agent) error {
	if a == nil {
		return fmt.Errorf("%w: nil agent", domain.ErrInvalidAgent)
	}
	if a.AgentID == "" {
		return fmt.Errorf("%w: empty agent id", domain.ErrInvalidAgent)
	}
	return nil
}

func draw(rng *rand.Rand, agentID string) *domain.Order {
	side := domain.SideBuy
	if rng.IntN(2) == 1 {
		side = domain.SideSell
	}

	// Open interval: both bounds are redrawn.
	price := minPrice + (maxPrice-minPrice)*rng.Float64()
	for price <= minPrice || price >= maxPrice {
		price = minPrice + (maxPrice-minPrice)*rng.Float64()
	}

	return &domain.Order{
		OrderID:  uuid.NewString(),
		AgentID:  agentID,
		Side:     side,
		Price:    decimal.NewFromFloat(price),
		Quantity: minQuantity + rng.Int64N(maxQuantity-minQuantity+1),
	}
}
