// Package market defines tradable asset pairs and the registry that
// canonicalizes them.
package market

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/obdex/orderblock/pkg/exchange/book"
	"github.com/obdex/orderblock/pkg/exchange/num"
	"github.com/obdex/orderblock/pkg/exchange/order"
)

// Market is a tradable pair of a base and a quote asset, with one book
// side and one pending-stop queue per direction. Prices are quote per
// base in wad form.
type Market struct {
	ID    uint64
	Base  common.Address
	Quote common.Address

	Bids *book.Side
	Asks *book.Side

	StopBids *book.StopQueue
	StopAsks *book.StopQueue
}

// NewMarket allocates a market with empty books and stop queues.
func NewMarket(id uint64, base, quote common.Address) *Market {
	return &Market{
		ID:       id,
		Base:     base,
		Quote:    quote,
		Bids:     book.NewBids(),
		Asks:     book.NewAsks(),
		StopBids: book.NewStopQueue(order.Buy),
		StopAsks: book.NewStopQueue(order.Sell),
	}
}

// MidPrice returns the arithmetic mean of the best bid and best ask, or
// zero whenever either side is empty (a one-sided book has no defined
// two-sided price).
func (m *Market) MidPrice() *uint256.Int {
	bid := m.Bids.BestPrice()
	ask := m.Asks.BestPrice()
	if bid == nil || ask == nil {
		return num.Zero()
	}
	return num.Mid(bid, ask)
}

// SideBook returns the resting book for the given direction.
func (m *Market) SideBook(s order.Side) *book.Side {
	if s == order.Buy {
		return m.Bids
	}
	return m.Asks
}

// OppositeBook returns the book a taker of the given direction matches
// against.
func (m *Market) OppositeBook(s order.Side) *book.Side {
	if s == order.Buy {
		return m.Asks
	}
	return m.Bids
}

// StopQueue returns the pending-stop queue for the given direction.
func (m *Market) StopQueue(s order.Side) *book.StopQueue {
	if s == order.Buy {
		return m.StopBids
	}
	return m.StopAsks
}
