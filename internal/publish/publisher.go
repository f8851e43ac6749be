// Package publish delivers committed tick reports to event sinks.
package publish

import (
	"context"
	"errors"
	"time"

	"github.com/efreitasn/marketsim/internal/domain"
)

// EventTickCompleted is the event type carried by every tick message.
const EventTickCompleted = "tick.completed"

var (
	ErrPublisherClosed = errors.New("publisher_closed")
	ErrQueueFull       = errors.New("publish_queue_full")
)

// Publisher receives the report of every committed tick.
type Publisher interface {
	PublishTick(ctx context.Context, report *domain.TickReport) error
}

// Nop discards every report.
type Nop struct{}

// PublishTick does nothing.
func (Nop) PublishTick(context.Context, *domain.TickReport) error { return nil }

// Fanout publishes to each publisher in order. Every publisher is tried;
// the failures are joined.
type Fanout []Publisher

// PublishTick sends report to every publisher in f.
func (f Fanout) PublishTick(ctx context.Context, report *domain.TickReport) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishTick(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TickEvent is the JSON message published for a tick.
type TickEvent struct {
	Event         string        `json:"event"`
	TickID        string        `json:"tick_id"`
	State         string        `json:"state"`
	Orders        int           `json:"orders"`
	Matches       int           `json:"matches"`
	Volume        int64         `json:"volume"`
	Unmatched     int           `json:"unmatched_orders"`
	NetProfitLoss float64       `json:"net_profit_loss"`
	Results       []ResultEvent `json:"results"`
	StartedAt     string        `json:"started_at"`
	FinishedAt    string        `json:"finished_at"`
}

// ResultEvent is one agent's result inside a TickEvent.
type ResultEvent struct {
	ResultID   string  `json:"result_id"`
	AgentID    string  `json:"agent_id"`
	ProfitLoss float64 `json:"profit_loss"`
}

// NewTickEvent builds the message for report.
func NewTickEvent(report *domain.TickReport) TickEvent {
	results := make([]ResultEvent, len(report.Results))
	for i, r := range report.Results {
		results[i] = ResultEvent{
			ResultID:   r.ResultID,
			AgentID:    r.AgentID,
			ProfitLoss: domain.AmountToFloat(r.ProfitLoss),
		}
	}
	return TickEvent{
		Event:         EventTickCompleted,
		TickID:        report.TickID,
		State:         report.State.String(),
		Orders:        report.Orders,
		Matches:       report.Matches,
		Volume:        report.Volume,
		Unmatched:     report.Unmatched,
		NetProfitLoss: domain.AmountToFloat(report.NetProfitLoss()),
		Results:       results,
		StartedAt:     report.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt:    report.FinishedAt.UTC().Format(time.RFC3339Nano),
	}
}
