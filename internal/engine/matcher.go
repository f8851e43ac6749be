package engine

import "github.com/efreitasn/marketsim/internal/domain"

// Match crosses the tick's order set in a single price-time pass and
// returns the matches in the order they were produced.
//
// Buys are served best (highest) price first, sells best (lowest) price
// first, equal prices in generation order. Matching stops at the first
// head pair that does not cross, even if deeper orders could. Every step
// removes at least one order, so at most len(orders) steps run.
//
// Order quantities are decremented in place.
func Match(orders []*domain.Order) []domain.Match {
	return MatchBook(NewBook(orders))
}

// MatchBook runs the matching pass over an already built book.
func MatchBook(book *Book) []domain.Match {
	var matches []domain.Match

	for {
		buy, ok := book.BestBid()
		if !ok {
			break
		}
		sell, ok := book.BestAsk()
		if !ok {
			break
		}

		if buy.Price.LessThan(sell.Price) {
			break
		}

		qty := buy.Quantity
		if sell.Quantity < qty {
			qty = sell.Quantity
		}

		matches = append(matches, domain.Match{Buy: buy, Sell: sell, Quantity: qty})

		buy.Quantity -= qty
		sell.Quantity -= qty

		if buy.Quantity == 0 {
			book.PopBid()
		}
		if sell.Quantity == 0 {
			book.PopAsk()
		}
	}

	return matches
}
