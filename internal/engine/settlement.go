package engine

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Settle converts matches into realized profit/loss per agent.
//
// For each match the buyer accrues (sell - buy) * qty and the seller accrues
// (buy - sell) * qty, so every match is exactly zero-sum. Agents that appear
// in no match are absent from the result.
func Settle(matches []domain.Match) map[string]decimal.Decimal {
	pnl := make(map[string]decimal.Decimal)

	for _, m := range matches {
		sellPnL := m.Spread().Mul(decimal.NewFromInt(m.Quantity))
		buyPnL := sellPnL.Neg()

		pnl[m.Buy.AgentID] = pnl[m.Buy.AgentID].Add(buyPnL)
		pnl[m.Sell.AgentID] = pnl[m.Sell.AgentID].Add(sellPnL)
	}

	return pnl
}

// Volume returns the total matched quantity.
func Volume(matches []domain.Match) int64 {
	var v int64
	for _, m := range matches {
		v += m.Quantity
	}
	return v
}
