package domain

import "github.com/shopspring/decimal"

// Side indicates whether an order buys or sells the instrument.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Order is a single stochastic order generated for one agent in one tick.
// Quantity is the remaining quantity and is decremented as the order fills.
type Order struct {
	OrderID  string
	AgentID  string
	Side     Side
	Price    decimal.Decimal
	Quantity int64
}

// Match pairs a buy order with a sell order for the filled quantity.
// Matches only live for the duration of a tick.
type Match struct {
	Buy      *Order
	Sell     *Order
	Quantity int64
}

// Spread returns buy price minus sell price, which is never negative for a
// valid match.
func (m Match) Spread() decimal.Decimal {
	return m.Buy.Price.Sub(m.Sell.Price)
}
