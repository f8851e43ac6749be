package engine

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
)

func newOrder(agentID string, side domain.Side, price string, qty int64) *domain.Order {
	return &domain.Order{
		OrderID:  agentID + "-order",
		AgentID:  agentID,
		Side:     side,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
	}
}

func buy(agentID, price string, qty int64) *domain.Order {
	return newOrder(agentID, domain.SideBuy, price, qty)
}

func sell(agentID, price string, qty int64) *domain.Order {
	return newOrder(agentID, domain.SideSell, price, qty)
}
