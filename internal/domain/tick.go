package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickState is the lifecycle state of a simulation tick. States only move
// forward; any failure ends in TickStateFailed.
type TickState int

const (
	TickStateGenerating TickState = iota
	TickStateMatching
	TickStateSettling
	TickStateCommitting
	TickStateDone
	TickStateFailed
)

func (s TickState) String() string {
	switch s {
	case TickStateGenerating:
		return "generating"
	case TickStateMatching:
		return "matching"
	case TickStateSettling:
		return "settling"
	case TickStateCommitting:
		return "committing"
	case TickStateDone:
		return "done"
	case TickStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TickReport summarizes one tick for callers and event subscribers.
type TickReport struct {
	TickID     string
	State      TickState
	Orders     int
	Matches    int
	Volume     int64
	Unmatched  int // orders left on the book after matching
	Results    []*SimulationResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// NetProfitLoss returns the sum of all results in the report. For a
// committed tick this is always zero.
func (r *TickReport) NetProfitLoss() decimal.Decimal {
	total := decimal.Zero
	for _, res := range r.Results {
		total = total.Add(res.ProfitLoss)
	}
	return total
}
