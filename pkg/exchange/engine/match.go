package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/obdex/orderblock/pkg/exchange/book"
	"github.com/obdex/orderblock/pkg/exchange/market"
	"github.com/obdex/orderblock/pkg/exchange/num"
	"github.com/obdex/orderblock/pkg/exchange/order"
)

// Fill records one maker/taker execution for settlement. The executed
// price is always the maker's limit price: price-time priority rewards
// the order that arrived first at a given level.
type Fill struct {
	MakerID    uint64
	MakerOwner common.Address
	TakerID    uint64
	Price      *uint256.Int
	BaseQty    *uint256.Int // base-asset units exchanged
	QuoteQty   *uint256.Int // quote-asset units exchanged
}

// takerBound returns the price bound the taker imposes on makers and
// whether one exists. Limit orders bound at their limit price, market
// conversions at their guard; an unguarded market taker accepts any
// price.
func takerBound(o *order.Order) (*uint256.Int, bool) {
	switch o.Kind {
	case order.Limit:
		return o.Price, true
	case order.Market:
		if o.Trigger.IsZero() {
			return nil, false
		}
		return o.Trigger, true
	default: // Stop converting to a market attempt
		if o.Price.IsZero() {
			return nil, false
		}
		return o.Price, true
	}
}

// crosses reports whether a maker at the given price is acceptable to
// the taker: an ask must not exceed a buyer's bound, a bid must not
// undercut a seller's.
func crosses(side order.Side, bound *uint256.Int, hasBound bool, makerPrice *uint256.Int) bool {
	if !hasBound {
		return true
	}
	if side == order.Buy {
		return makerPrice.Cmp(bound) <= 0
	}
	return makerPrice.Cmp(bound) >= 0
}

// match consumes best-priced opposite orders until the taker is
// exhausted or no remaining maker crosses. Both taker and maker
// remaining amounts are decremented; fully consumed makers are popped
// and marked Filled, partially consumed ones stay at the top with the
// reduced amount. Settlement happens later, from the returned fills.
func (e *Exchange) match(m *market.Market, taker *order.Order) []Fill {
	opp := m.OppositeBook(taker.Side)
	bound, hasBound := takerBound(taker)

	var fills []Fill
	for !taker.Remaining.IsZero() {
		maker := opp.PeekBest()
		if maker == nil || !crosses(taker.Side, bound, hasBound, maker.Price) {
			break
		}

		f := Fill{
			MakerID:    maker.ID,
			MakerOwner: maker.Owner,
			TakerID:    taker.ID,
			Price:      maker.Price.Clone(),
		}

		if taker.Side == order.Buy {
			// Maker is an ask offering base; consuming it fully costs
			// its base remainder converted to quote at the maker's price.
			cost := num.MulWad(maker.Remaining, maker.Price)
			if taker.Remaining.Cmp(cost) >= 0 {
				f.BaseQty = maker.Remaining.Clone()
				f.QuoteQty = cost
				taker.Remaining.Sub(taker.Remaining, cost)
				e.consumeMaker(opp)
			} else {
				f.QuoteQty = taker.Remaining.Clone()
				f.BaseQty = num.DivWad(f.QuoteQty, maker.Price)
				taker.Remaining.Clear()
				e.reduceMaker(opp, maker, f.BaseQty)
			}
		} else {
			// Maker is a bid offering quote; it can absorb its quote
			// remainder converted to base at the maker's price.
			capacity := num.DivWad(maker.Remaining, maker.Price)
			if taker.Remaining.Cmp(capacity) >= 0 {
				f.BaseQty = capacity
				f.QuoteQty = maker.Remaining.Clone()
				taker.Remaining.Sub(taker.Remaining, capacity)
				e.consumeMaker(opp)
			} else {
				f.BaseQty = taker.Remaining.Clone()
				f.QuoteQty = num.MulWad(f.BaseQty, maker.Price)
				taker.Remaining.Clear()
				e.reduceMaker(opp, maker, f.QuoteQty)
			}
		}

		fills = append(fills, f)
	}
	return fills
}

// consumeMaker pops the fully consumed top order and closes it Filled.
func (e *Exchange) consumeMaker(opp *book.Side) {
	maker := opp.PopBest()
	maker.Remaining.Clear()
	if err := e.orders.Close(maker, order.Filled); err != nil {
		e.log.Errorw("maker_close_failed", "order", maker.ID, "err", err)
	}
}

// reduceMaker decrements the top order on partial consumption and
// persists its new remainder. The decrement is strictly smaller than
// the remainder (truncating conversions guarantee it), so the maker
// stays Open at the top of its level.
func (e *Exchange) reduceMaker(opp *book.Side, maker *order.Order, amount *uint256.Int) {
	if err := opp.DecrementTop(amount); err != nil {
		e.log.Errorw("maker_decrement_failed", "order", maker.ID, "err", err)
		return
	}
	if err := e.orders.Save(maker); err != nil {
		e.log.Errorw("maker_save_failed", "order", maker.ID, "err", err)
	}
}

// oppositeDepth computes how much of the taker's offered currency the
// opposite book can absorb, honoring the guard as a filter on which
// makers even count. Uses the same truncating conversions as match, so
// a passing all-or-nothing check guarantees the loop drives the taker
// to exactly zero.
func (e *Exchange) oppositeDepth(m *market.Market, side order.Side, guard *uint256.Int) *uint256.Int {
	hasGuard := guard != nil && !guard.IsZero()
	depth := num.Zero()
	m.OppositeBook(side).Each(func(o *order.Order) bool {
		if hasGuard && !crosses(side, guard, true, o.Price) {
			return true
		}
		if side == order.Buy {
			depth.Add(depth, num.MulWad(o.Remaining, o.Price))
		} else {
			depth.Add(depth, num.DivWad(o.Remaining, o.Price))
		}
		return true
	})
	return depth
}
