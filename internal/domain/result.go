package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SimulationResult is the realized profit or loss of one agent for one tick.
// Results are append-only.
type SimulationResult struct {
	ResultID   string
	TickID     string
	AgentID    string
	ProfitLoss decimal.Decimal
	CreatedAt  time.Time
}

// BalanceUpdate replaces an agent's balance. Prior is the balance the tick
// was computed from; the ledger refuses the update if it no longer matches.
type BalanceUpdate struct {
	AgentID string
	Prior   decimal.Decimal
	New     decimal.Decimal
}

// TickCommit is everything one tick persists. A ledger applies all of it or
// none of it.
type TickCommit struct {
	TickID   string
	Balances []BalanceUpdate
	Results  []*SimulationResult
}
