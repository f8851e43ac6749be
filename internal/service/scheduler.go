package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/efreitasn/marketsim/internal/domain"
)

// TickRunner is the part of SimulationService the scheduler drives.
type TickRunner interface {
	TryRunTick(ctx context.Context) (*domain.TickReport, error)
}

// TickScheduler runs a tick on every interval. A tick that is still
// running when the next interval fires causes that interval to be skipped.
type TickScheduler struct {
	interval time.Duration
	runner   TickRunner
	logger   *slog.Logger
}

// NewTickScheduler creates a TickScheduler.
func NewTickScheduler(interval time.Duration, runner TickRunner, logger *slog.Logger) *TickScheduler {
	return &TickScheduler{
		interval: interval,
		runner:   runner,
		logger:   logger,
	}
}

// Start launches a background goroutine that runs ticks until ctx is
// cancelled. The returned channel is closed once the goroutine exits.
func (s *TickScheduler) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
	return done
}

func (s *TickScheduler) tick(ctx context.Context) {
	_, err := s.runner.TryRunTick(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTickInProgress):
		s.logger.Debug("scheduled tick skipped, tick in progress")
	case ctx.Err() != nil:
		// Shutting down.
	default:
		s.logger.Error("scheduled tick failed", slog.String("error", err.Error()))
	}
}
