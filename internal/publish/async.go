package publish

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Async delivers reports on a background goroutine so a slow sink never
// holds up the caller. Reports are delivered in the order they were
// queued. When the queue is full the report is dropped and logged.
type Async struct {
	next    Publisher
	timeout time.Duration
	logger  *slog.Logger

	queue chan *domain.TickReport
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts a dispatcher in front of next. Each delivery gets its own
// context bounded by timeout; a zero timeout means no bound.
func NewAsync(next Publisher, size int, timeout time.Duration, logger *slog.Logger) *Async {
	if size < 1 {
		size = 1
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan *domain.TickReport, size),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// PublishTick queues report and returns immediately. It returns
// ErrPublisherClosed after Close and ErrQueueFull when the report was
// dropped.
func (a *Async) PublishTick(_ context.Context, report *domain.TickReport) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrPublisherClosed
	}
	select {
	case a.queue <- report:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting reports and waits until the queued ones have been
// delivered or ctx is done.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) loop() {
	defer close(a.done)
	for report := range a.queue {
		a.deliver(report)
	}
}

func (a *Async) deliver(report *domain.TickReport) {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	if err := a.next.PublishTick(ctx, report); err != nil {
		a.logger.Warn("tick delivery failed",
			slog.String("tick_id", report.TickID),
			slog.String("error", err.Error()),
		)
	}
}
