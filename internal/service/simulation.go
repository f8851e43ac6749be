package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/engine"
	"github.com/efreitasn/marketsim/internal/publish"
	"github.com/efreitasn/marketsim/internal/store"
)

const maxTicksPerRun = 1000

// OrderSource produces one order per agent for a tick.
type OrderSource interface {
	GenerateAll(agents []*domain.Agent, workers int) ([]*domain.Order, error)
}

// SimulationService runs simulation ticks. Ticks never overlap: a tick
// holds the service lock from the moment it reads balances until its
// commit has completed. Publishing happens after the lock is released.
type SimulationService struct {
	ledger    store.Ledger
	orders    OrderSource
	publisher publish.Publisher
	workers   int
	logger    *slog.Logger

	mu sync.Mutex
}

// NewSimulationService creates a SimulationService. A nil publisher
// disables publishing.
func NewSimulationService(
	ledger store.Ledger,
	orders OrderSource,
	publisher publish.Publisher,
	workers int,
	logger *slog.Logger,
) *SimulationService {
	if publisher == nil {
		publisher = publish.Nop{}
	}
	if workers < 1 {
		workers = 1
	}
	return &SimulationService{
		ledger:    ledger,
		orders:    orders,
		publisher: publisher,
		workers:   workers,
		logger:    logger,
	}
}

// RunTick runs one tick over every agent, waiting for a running tick to
// finish first.
//
// On failure the returned report is in TickStateFailed and nothing of the
// tick has been persisted. A commit failure satisfies
// errors.Is(err, domain.ErrCommitFailure).
func (s *SimulationService) RunTick(ctx context.Context) (*domain.TickReport, error) {
	s.mu.Lock()
	report, err := s.run(ctx)
	s.mu.Unlock()
	if err != nil {
		return report, err
	}
	s.publish(ctx, report)
	return report, nil
}

// TryRunTick is like RunTick but returns domain.ErrTickInProgress instead
// of waiting when another tick is running.
func (s *SimulationService) TryRunTick(ctx context.Context) (*domain.TickReport, error) {
	if !s.mu.TryLock() {
		return nil, domain.ErrTickInProgress
	}
	report, err := s.run(ctx)
	s.mu.Unlock()
	if err != nil {
		return report, err
	}
	s.publish(ctx, report)
	return report, nil
}

// RunTicks runs n ticks one after another and stops at the first error.
// The reports of the ticks that completed are returned either way.
func (s *SimulationService) RunTicks(ctx context.Context, n int) ([]*domain.TickReport, error) {
	if n < 1 || n > maxTicksPerRun {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("ticks must be between 1 and %d", maxTicksPerRun),
		}
	}

	reports := make([]*domain.TickReport, 0, n)
	for range n {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := s.RunTick(ctx)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// TickResults returns the results committed by a tick.
func (s *SimulationService) TickResults(ctx context.Context, tickID string) ([]*domain.SimulationResult, error) {
	return s.ledger.ResultsByTick(ctx, tickID)
}

// run executes one tick up to and including the commit. The caller holds s.mu.
func (s *SimulationService) run(ctx context.Context) (*domain.TickReport, error) {
	report := &domain.TickReport{
		TickID:    uuid.New().String(),
		State:     domain.TickStateGenerating,
		StartedAt: time.Now().UTC(),
	}

	agents, err := s.ledger.ListAgents(ctx)
	if err != nil {
		return s.fail(report, fmt.Errorf("load agents: %w", err))
	}

	orders, err := s.orders.GenerateAll(agents, s.workers)
	if err != nil {
		return s.fail(report, fmt.Errorf("generate orders: %w", err))
	}
	report.Orders = len(orders)

	report.State = domain.TickStateMatching
	book := engine.NewBook(orders)
	matches := engine.MatchBook(book)
	report.Matches = len(matches)
	report.Volume = engine.Volume(matches)
	report.Unmatched = book.BidCount() + book.AskCount()

	report.State = domain.TickStateSettling
	pnl := engine.Settle(matches)
	commit := buildCommit(report.TickID, agents, pnl, time.Now().UTC())

	report.State = domain.TickStateCommitting
	if err := s.ledger.CommitTick(ctx, commit); err != nil {
		if !errors.Is(err, domain.ErrCommitFailure) {
			err = fmt.Errorf("%w: %w", domain.ErrCommitFailure, err)
		}
		return s.fail(report, err)
	}

	report.State = domain.TickStateDone
	report.Results = commit.Results
	report.FinishedAt = time.Now().UTC()

	s.logger.Info("tick completed",
		slog.String("tick_id", report.TickID),
		slog.Int("agents", len(agents)),
		slog.Int("orders", report.Orders),
		slog.Int("matches", report.Matches),
		slog.Int64("volume", report.Volume),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)

	return report, nil
}

// publish hands a committed report to the publisher. The tick is already
// durable, so a cancelled request must not abort delivery.
func (s *SimulationService) publish(ctx context.Context, report *domain.TickReport) {
	if err := s.publisher.PublishTick(context.WithoutCancel(ctx), report); err != nil {
		s.logger.Warn("tick publish failed",
			slog.String("tick_id", report.TickID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SimulationService) fail(report *domain.TickReport, err error) (*domain.TickReport, error) {
	s.logger.Error("tick failed",
		slog.String("tick_id", report.TickID),
		slog.String("state", report.State.String()),
		slog.String("error", err.Error()),
	)
	report.State = domain.TickStateFailed
	report.FinishedAt = time.Now().UTC()
	return report, err
}

// buildCommit produces one balance update and one result per agent. Agents
// without a match settle at zero.
func buildCommit(tickID string, agents []*domain.Agent, pnl map[string]decimal.Decimal, at time.Time) *domain.TickCommit {
	commit := &domain.TickCommit{
		TickID:   tickID,
		Balances: make([]domain.BalanceUpdate, 0, len(agents)),
		Results:  make([]*domain.SimulationResult, 0, len(agents)),
	}
	for _, a := range agents {
		p, ok := pnl[a.AgentID]
		if !ok {
			p = decimal.Zero
		}
		commit.Balances = append(commit.Balances, domain.BalanceUpdate{
			AgentID: a.AgentID,
			Prior:   a.Balance,
			New:     a.Balance.Add(p),
		})
		commit.Results = append(commit.Results, &domain.SimulationResult{
			ResultID:   uuid.New().String(),
			TickID:     tickID,
			AgentID:    a.AgentID,
			ProfitLoss: p,
			CreatedAt:  at,
		})
	}
	return commit
}
