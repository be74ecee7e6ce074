package orderbook

import (
	"container/list"
	"fmt"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/nathanyu/matching-engine/internal/domain"
)

const btreeDegree = 32

// bookLevel is a price level in one side of the book.
// It holds a doubly-linked list of orders at this price (FIFO).
type bookLevel struct {
	Price       decimal.Decimal
	TotalVolume uint64
	Orders      *list.List // of *domain.Order
}

// Book represents one side (bid or ask) of an order book.
//
// Levels are kept in a B-tree ordered by priority: highest price first for
// bids, lowest price first for asks. The best level is cached so PeekBest
// does not walk the tree.
type Book struct {
	Side   domain.Side
	less   btree.LessFunc[*bookLevel]
	levels *btree.BTreeG[*bookLevel]
	best   *bookLevel
	count  int
}

// NewBook creates a new order book side.
func NewBook(side domain.Side) *Book {
	less := priorityLess(side)
	return &Book{
		Side:   side,
		less:   less,
		levels: btree.NewG(btreeDegree, less),
	}
}

// priorityLess orders price levels so the best level sorts first.
func priorityLess(side domain.Side) btree.LessFunc[*bookLevel] {
	if side == domain.SideBid {
		return func(a, b *bookLevel) bool { return a.Price.GreaterThan(b.Price) }
	}
	return func(a, b *bookLevel) bool { return a.Price.LessThan(b.Price) }
}

// Insert appends an order to the tail of its price level's queue.
func (b *Book) Insert(order *domain.Order) {
	level, exists := b.levels.Get(&bookLevel{Price: order.Price})
	if !exists {
		level = &bookLevel{
			Price:  order.Price,
			Orders: list.New(),
		}
		b.levels.ReplaceOrInsert(level)
		if b.best == nil || b.less(level, b.best) {
			b.best = level
		}
	}

	level.TotalVolume += order.Quantity
	level.Orders.PushBack(order)
	b.count++
}

// PeekBest returns the highest-priority resting order, or nil if the side is empty.
func (b *Book) PeekBest() *domain.Order {
	if b.best == nil {
		return nil
	}
	return b.best.Orders.Front().Value.(*domain.Order)
}

// PopBest removes and returns the highest-priority resting order.
func (b *Book) PopBest() *domain.Order {
	if b.best == nil {
		return nil
	}

	level := b.best
	order := level.Orders.Remove(level.Orders.Front()).(*domain.Order)
	level.TotalVolume -= order.Quantity
	b.count--

	// Clean up empty price level
	if level.Orders.Len() == 0 {
		b.levels.Delete(level)
		b.best, _ = b.levels.Min()
	}
	return order
}

// ReduceBest lowers the quantity of the best order in place. The order keeps
// its position at the head of its level. newQuantity must be below the
// order's current quantity; zero removes the order.
func (b *Book) ReduceBest(newQuantity uint64) {
	order := b.PeekBest()
	if order == nil {
		return
	}
	if newQuantity >= order.Quantity {
		panic(fmt.Sprintf("orderbook: ReduceBest(%d) does not reduce quantity %d", newQuantity, order.Quantity))
	}
	if newQuantity == 0 {
		b.PopBest()
		return
	}
	b.best.TotalVolume -= order.Quantity - newQuantity
	order.Quantity = newQuantity
}

// IsEmpty reports whether this side has no resting orders.
func (b *Book) IsEmpty() bool {
	return b.best == nil
}

// Len returns the number of resting orders.
func (b *Book) Len() int {
	return b.count
}

// Orders returns copies of the resting orders, best priority first.
func (b *Book) Orders() []domain.Order {
	out := make([]domain.Order, 0, b.count)
	b.levels.Ascend(func(level *bookLevel) bool {
		for e := level.Orders.Front(); e != nil; e = e.Next() {
			out = append(out, *e.Value.(*domain.Order))
		}
		return true
	})
	return out
}

// Levels aggregates volume per price, best first. depth <= 0 returns all levels.
func (b *Book) Levels(depth int) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, b.levels.Len())
	b.levels.Ascend(func(level *bookLevel) bool {
		if depth > 0 && len(levels) >= depth {
			return false
		}
		levels = append(levels, domain.PriceLevel{
			Price:    level.Price,
			Quantity: level.TotalVolume,
			Orders:   level.Orders.Len(),
		})
		return true
	})
	return levels
}

// OrderBook holds the full two-sided order book for a single asset.
type OrderBook struct {
	Asset string
	Bids  *Book
	Asks  *Book
}

// NewOrderBook creates a new order book for an asset.
func NewOrderBook(asset string) *OrderBook {
	return &OrderBook{
		Asset: asset,
		Bids:  NewBook(domain.SideBid),
		Asks:  NewBook(domain.SideAsk),
	}
}

// Side returns the book that stores orders of the given side.
func (ob *OrderBook) Side(side domain.Side) *Book {
	if side == domain.SideBid {
		return ob.Bids
	}
	return ob.Asks
}

// Opposite returns the book an order of the given side matches against.
func (ob *OrderBook) Opposite(side domain.Side) *Book {
	return ob.Side(side.Opposite())
}
