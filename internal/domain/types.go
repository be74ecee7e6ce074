package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side represents the order side (bid or ask).
type Side string

const (
	SideBid Side = "BID"
	SideAsk Side = "ASK"
)

var (
	ErrInvalidSide     = errors.New("invalid side")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrInvalidPrice    = errors.New("price must be a positive decimal")
	ErrUnknownAsset    = errors.New("unknown asset")
)

// ParseSide accepts BID/ASK and the BUY/SELL aliases, case-insensitively.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BID", "BUY":
		return SideBid, nil
	case "ASK", "SELL":
		return SideAsk, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// Valid reports whether s is one of the two recognized sides.
func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk
}

// Order is a limit order. Arrival is the engine-local sequence value used
// only for tie-breaking between equal prices.
type Order struct {
	Side     Side            `json:"side"`
	Quantity uint64          `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Arrival  uint64          `json:"arrival"`
}

// Crosses reports whether this (incoming) order can trade against resting.
func (o *Order) Crosses(resting *Order) bool {
	if o.Side == SideBid {
		return o.Price.GreaterThanOrEqual(resting.Price)
	}
	return o.Price.LessThanOrEqual(resting.Price)
}

// ResultKind tells whether a result is a fill or a resting remainder.
type ResultKind string

const (
	ResultQueued   ResultKind = "QUEUED"
	ResultExecuted ResultKind = "EXECUTED"
)

// OrderResult is one event produced while processing an incoming order.
// Side is always the incoming order's side.
type OrderResult struct {
	Kind     ResultKind      `json:"kind"`
	Side     Side            `json:"side"`
	Quantity uint64          `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

func (r OrderResult) String() string {
	return fmt.Sprintf("Order %s %s => %d x %s", r.Kind, r.Side, r.Quantity, r.Price.String())
}

// OrderRequest is what a transport hands to the engine after decoding.
type OrderRequest struct {
	Side     Side            `json:"side"`
	Quantity uint64          `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Validate checks the engine's preconditions. Every transport calls it
// before an order reaches the book.
func (r OrderRequest) Validate() error {
	if !r.Side.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSide, string(r.Side))
	}
	if r.Quantity == 0 {
		return ErrInvalidQuantity
	}
	if !r.Price.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, r.Price.String())
	}
	return nil
}

// ParsePrice parses a decimal price string and checks it is positive.
func ParsePrice(s string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidPrice, s)
	}
	return p, nil
}

// PriceLevel is the aggregated volume resting at one price.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity uint64          `json:"quantity"`
	Orders   int             `json:"orders"`
}
