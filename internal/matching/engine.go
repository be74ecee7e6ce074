package matching

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/orderbook"
)

// Engine is the matching engine for a single asset. It owns both sides of
// the book and is not safe for concurrent use; callers go through a
// sequencer so that only one AddOrder runs at a time.
type Engine struct {
	book    *orderbook.OrderBook
	arrival uint64
}

// NewEngine creates a new matching engine for an asset.
func NewEngine(asset string) *Engine {
	return &Engine{
		book: orderbook.NewOrderBook(asset),
	}
}

// Asset returns the asset code this engine trades.
func (e *Engine) Asset() string {
	return e.book.Asset
}

// Submit validates a request and processes it.
func (e *Engine) Submit(req domain.OrderRequest) ([]domain.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return e.AddOrder(req.Side, req.Quantity, req.Price), nil
}

// AddOrder matches an incoming limit order against the opposite side and
// rests any remainder. The returned results are never empty: zero or more
// EXECUTED events (best opposite price first) followed by at most one QUEUED.
//
// Quantity must be positive and price must be positive; use Submit when the
// input has not been validated.
func (e *Engine) AddOrder(side domain.Side, quantity uint64, price decimal.Decimal) []domain.OrderResult {
	if !side.Valid() || quantity == 0 || !price.IsPositive() {
		panic(fmt.Sprintf("matching: invalid order %s %d @ %s", side, quantity, price.String()))
	}

	e.arrival++
	order := &domain.Order{
		Side:     side,
		Quantity: quantity,
		Price:    price,
		Arrival:  e.arrival,
	}

	own := e.book.Side(side)
	contra := e.book.Opposite(side)

	var results []domain.OrderResult

	for order.Quantity > 0 && !contra.IsEmpty() {
		resting := contra.PeekBest()
		if !order.Crosses(resting) {
			break
		}

		// execute at maker's (resting) price
		executed := min(order.Quantity, resting.Quantity)
		results = append(results, domain.OrderResult{
			Kind:     domain.ResultExecuted,
			Side:     side,
			Quantity: executed,
			Price:    resting.Price,
		})

		if executed == resting.Quantity {
			contra.PopBest()
		} else {
			contra.ReduceBest(resting.Quantity - executed)
		}
		order.Quantity -= executed
	}

	if order.Quantity > 0 {
		own.Insert(order)
		results = append(results, domain.OrderResult{
			Kind:     domain.ResultQueued,
			Side:     side,
			Quantity: order.Quantity,
			Price:    price,
		})
	}

	return results
}

// RestingOrders returns the resting orders on one side, best priority first.
func (e *Engine) RestingOrders(side domain.Side) []domain.Order {
	return e.book.Side(side).Orders()
}

// Levels returns aggregated price levels on one side, best first.
func (e *Engine) Levels(side domain.Side, depth int) []domain.PriceLevel {
	return e.book.Side(side).Levels(depth)
}

// Depth returns the number of resting orders on one side.
func (e *Engine) Depth(side domain.Side) int {
	return e.book.Side(side).Len()
}

// LastArrival returns the arrival value stamped on the most recent order.
func (e *Engine) LastArrival() uint64 {
	return e.arrival
}
