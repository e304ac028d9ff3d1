package engine

import (
	"github.com/obdex/orderblock/pkg/exchange/market"
	"github.com/obdex/orderblock/pkg/exchange/num"
	"github.com/obdex/orderblock/pkg/exchange/order"
)

// runTriggers is the stop trigger cascade: after a book mutation it
// repeatedly converts the pending stop order whose met trigger lies
// closest to the current mid-price, re-deriving the mid each iteration
// since a conversion can itself move the price. Implemented as an
// iterative worklist; it terminates because every iteration removes one
// order from a pending queue.
func (e *Exchange) runTriggers(m *market.Market) {
	for {
		mid := m.MidPrice()
		if mid.IsZero() {
			return
		}

		buy := m.StopBids.NextTriggered(mid)
		sell := m.StopAsks.NextTriggered(mid)

		o := buy
		if o == nil {
			o = sell
		} else if sell != nil {
			bd := num.Delta(buy.Trigger, mid)
			sd := num.Delta(sell.Trigger, mid)
			if sd.Lt(bd) || (sd.Eq(bd) && sell.Seq < buy.Seq) {
				o = sell
			}
		}
		if o == nil {
			return
		}

		m.StopQueue(o.Side).Remove(o.ID)
		e.convertStop(m, o)
	}
}

// convertStop attempts one triggered stop as an independent market
// order under its own guard price. Insufficient depth marks the order
// Failed and refunds its escrow; it never unwinds or blocks the call
// that moved the price, nor any sibling trigger.
func (e *Exchange) convertStop(m *market.Market, o *order.Order) {
	if depth := e.oppositeDepth(m, o.Side, o.Price); depth.Lt(o.Remaining) {
		refund := o.Remaining.Clone()
		o.Remaining.Clear()
		if err := e.orders.Close(o, order.Failed); err != nil {
			e.log.Errorw("stop_close_failed", "order", o.ID, "err", err)
			return
		}
		e.log.Warnw("stop_failed", "order", o.ID, "market", m.ID, "depth", depth.Dec(), "needed", refund.Dec())

		if err := e.custody.Release(offeredAsset(m, o.Side), o.Owner, refund); err != nil {
			e.log.Errorw("stop_refund_failed", "order", o.ID, "err", err)
		}
		return
	}

	fills := e.match(m, o)
	if !o.Remaining.IsZero() {
		// Depth was verified with the same arithmetic; a remainder here
		// is a bug, not a market condition.
		e.log.Errorw("stop_conversion_incomplete", "order", o.ID, "remaining", o.Remaining.Dec())
		o.Remaining.Clear()
	}
	if err := e.orders.Close(o, order.Filled); err != nil {
		e.log.Errorw("stop_close_failed", "order", o.ID, "err", err)
	}
	e.log.Infow("stop_triggered", "order", o.ID, "market", m.ID, "side", o.Side.String(), "fills", len(fills))
	e.settle(m, o, fills)
}
