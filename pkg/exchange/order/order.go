// Package order defines the order model and the registry that owns
// every order record by identifier.
package order

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Side is the direction of an order within a market.
type Side int8

const (
	Buy Side = iota // offers quote asset, wants base
	Sell            // offers base asset, wants quote
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Kind is the execution style of an order.
type Kind int8

const (
	Limit  Kind = iota // rests at Price until crossed
	Stop               // pending until Trigger is crossed, then converts to Market
	Market             // fills immediately in full or not at all
)

func (k Kind) String() string {
	switch k {
	case Limit:
		return "Limit"
	case Stop:
		return "Stop"
	case Market:
		return "Market"
	default:
		return "Unknown"
	}
}

// Status is the lifecycle state of an order. Filled, Cancelled and
// Failed are terminal: the record is retained for queries but the order
// is excluded from every book and stop queue.
type Status int8

const (
	Open Status = iota
	Filled
	Cancelled
	Failed
)

func (st Status) String() string {
	switch st {
	case Open:
		return "Open"
	case Filled:
		return "Filled"
	case Cancelled:
		return "Cancelled"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Order is a single order record.
//
// Field conventions:
//   - Price: for Limit, the resting limit price; for Stop, the guard
//     price applied when the stop converts to a market attempt (zero
//     means no guard); zero for Market.
//   - Trigger: for Stop, the mid-price threshold that activates it;
//     for Market, the optional worst-acceptable execution price (zero
//     means any price); zero for Limit.
//   - Remaining: unsettled quantity of the offered currency: quote
//     asset units for a Buy, base asset units for a Sell. Equals the
//     escrowed principal while the order is Open.
type Order struct {
	ID        uint64         `json:"id"`
	MarketID  uint64         `json:"marketId"`
	Owner     common.Address `json:"owner"`
	Side      Side           `json:"side"`
	Kind      Kind           `json:"kind"`
	Price     *uint256.Int   `json:"price"`
	Trigger   *uint256.Int   `json:"trigger"`
	Remaining *uint256.Int   `json:"remaining"`
	Status    Status         `json:"status"`
	Seq       uint64         `json:"seq"`
	CreatedAt int64          `json:"createdAt"`
}

// IsClosed reports whether the order reached a terminal status.
func (o *Order) IsClosed() bool {
	return o.Status != Open
}

// OfferedAsset returns which leg of the pair the order escrows.
func (o *Order) OfferedAsset(base, quote common.Address) common.Address {
	if o.Side == Buy {
		return quote
	}
	return base
}

// WantedAsset returns which leg of the pair the order receives on fills.
func (o *Order) WantedAsset(base, quote common.Address) common.Address {
	if o.Side == Buy {
		return base
	}
	return quote
}

// View is the read-only projection returned by queries.
type View struct {
	ID        uint64         `json:"id"`
	MarketID  uint64         `json:"marketId"`
	Owner     common.Address `json:"owner"`
	Side      string         `json:"side"`
	Kind      string         `json:"kind"`
	Price     string         `json:"price"`
	Trigger   string         `json:"trigger"`
	Remaining string         `json:"remaining"`
	Status    string         `json:"status"`
	CreatedAt int64          `json:"createdAt"`
}

// View builds the query projection of the order.
func (o *Order) View() View {
	return View{
		ID:        o.ID,
		MarketID:  o.MarketID,
		Owner:     o.Owner,
		Side:      o.Side.String(),
		Kind:      o.Kind.String(),
		Price:     o.Price.Dec(),
		Trigger:   o.Trigger.Dec(),
		Remaining: o.Remaining.Dec(),
		Status:    o.Status.String(),
		CreatedAt: o.CreatedAt,
	}
}
