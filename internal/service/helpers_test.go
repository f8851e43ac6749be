package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedOrder describes the order an agent will place in a scripted tick.
type scriptedOrder struct {
	side  domain.Side
	price string
	qty   int64
}

// scriptedSource returns fresh copies of preset orders, keyed by agent ID.
// Agents without a script are skipped.
type scriptedSource struct {
	orders map[string]scriptedOrder
	err    error
}

func (s *scriptedSource) GenerateAll(agents []*domain.Agent, _ int) ([]*domain.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*domain.Order, 0, len(agents))
	for _, a := range agents {
		want, ok := s.orders[a.AgentID]
		if !ok {
			continue
		}
		out = append(out, &domain.Order{
			OrderID:  "o-" + a.AgentID,
			AgentID:  a.AgentID,
			Side:     want.side,
			Price:    decimal.RequireFromString(want.price),
			Quantity: want.qty,
		})
	}
	return out, nil
}

// failingLedger rejects every commit.
type failingLedger struct {
	store.Ledger
	err error
}

func (l *failingLedger) CommitTick(context.Context, *domain.TickCommit) error {
	return l.err
}

type recordingPublisher struct {
	mu      sync.Mutex
	reports []*domain.TickReport
	err     error
}

func (p *recordingPublisher) PublishTick(_ context.Context, r *domain.TickReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reports)
}

func seedAgent(t *testing.T, l store.Ledger, id string, balance int64) {
	t.Helper()
	a := &domain.Agent{
		AgentID: id,
		Name:    "Agent_" + id,
		Type:    domain.AgentTypeThesis,
		Balance: decimal.NewFromInt(balance),
	}
	if err := l.CreateAgent(context.Background(), a); err != nil {
		t.Fatalf("seed agent %s: %v", id, err)
	}
}

func balanceOf(t *testing.T, l store.Ledger, id string) decimal.Decimal {
	t.Helper()
	a, err := l.GetAgent(context.Background(), id)
	if err != nil {
		t.Fatalf("get agent %s: %v", id, err)
	}
	return a.Balance
}
