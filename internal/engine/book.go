package engine

import (
	"github.com/google/btree"

	"github.com/efreitasn/marketsim/internal/domain"
)

// queueEntry is a single order waiting in one side of the tick's book.
// Seq is the order's position in the generated order set.
type queueEntry struct {
	Seq   int
	Order *domain.Order
}

// bidLess orders the buy side by price descending, then by generation
// order ascending. Min() returns the best bid.
func bidLess(a, b queueEntry) bool {
	if c := a.Order.Price.Cmp(b.Order.Price); c != 0 {
		return c > 0
	}
	return a.Seq < b.Seq
}

// askLess orders the sell side by price ascending, then by generation
// order ascending. Min() returns the best ask.
func askLess(a, b queueEntry) bool {
	if c := a.Order.Price.Cmp(b.Order.Price); c != 0 {
		return c < 0
	}
	return a.Seq < b.Seq
}

// Book holds the buy and sell queues for a single tick. It is not safe for
// concurrent use; matching is single-threaded.
type Book struct {
	bids *btree.BTreeG[queueEntry]
	asks *btree.BTreeG[queueEntry]
}

// NewBook partitions orders by side into price-time ordered queues.
// Orders with a non-positive quantity are ignored.
func NewBook(orders []*domain.Order) *Book {
	const degree = 32
	b := &Book{
		bids: btree.NewG[queueEntry](degree, bidLess),
		asks: btree.NewG[queueEntry](degree, askLess),
	}
	for i, o := range orders {
		if o == nil || o.Quantity <= 0 {
			continue
		}
		entry := queueEntry{Seq: i, Order: o}
		switch o.Side {
		case domain.SideBuy:
			b.bids.ReplaceOrInsert(entry)
		case domain.SideSell:
			b.asks.ReplaceOrInsert(entry)
		}
	}
	return b
}

// BestBid returns the highest-priority buy order.
func (b *Book) BestBid() (*domain.Order, bool) {
	e, ok := b.bids.Min()
	return e.Order, ok
}

// BestAsk returns the highest-priority sell order.
func (b *Book) BestAsk() (*domain.Order, bool) {
	e, ok := b.asks.Min()
	return e.Order, ok
}

// PopBid removes the best bid.
func (b *Book) PopBid() {
	b.bids.DeleteMin()
}

// PopAsk removes the best ask.
func (b *Book) PopAsk() {
	b.asks.DeleteMin()
}

// BidCount returns the number of buy orders still queued. After matching
// these are the bids that did not cross.
func (b *Book) BidCount() int {
	return b.bids.Len()
}

// AskCount returns the number of sell orders still queued.
func (b *Book) AskCount() int {
	return b.asks.Len()
}
