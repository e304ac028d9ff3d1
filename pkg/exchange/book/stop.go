package book

import (
	"github.com/holiman/uint256"

	"github.com/obdex/orderblock/pkg/exchange/order"
)

// StopQueue holds the untriggered stop orders of one side, in insertion
// order. A buy stop triggers once the mid-price has risen to or above
// its threshold; a sell stop once the mid-price has fallen to or below.
type StopQueue struct {
	side   order.Side
	orders []*order.Order
}

// NewStopQueue creates an empty pending-stop queue for one side.
func NewStopQueue(side order.Side) *StopQueue {
	return &StopQueue{side: side}
}

// Len returns the number of pending stops.
func (q *StopQueue) Len() int {
	return len(q.orders)
}

// Add appends a pending stop order.
func (q *StopQueue) Add(o *order.Order) {
	q.orders = append(q.orders, o)
}

// Remove takes an order out of the queue by id.
// Returns the order, or nil if it is not pending here.
func (q *StopQueue) Remove(id uint64) *order.Order {
	for i, o := range q.orders {
		if o.ID == id {
			q.orders = append(q.orders[:i], q.orders[i+1:]...)
			return o
		}
	}
	return nil
}

// triggered reports whether a stop with the given threshold fires at
// the given mid-price.
func (q *StopQueue) triggered(trigger, mid *uint256.Int) bool {
	if q.side == order.Buy {
		return mid.Cmp(trigger) >= 0
	}
	return mid.Cmp(trigger) <= 0
}

// NextTriggered returns the pending stop whose condition is met at the
// given mid-price and whose threshold is closest to it, ties broken by
// insertion sequence. Returns nil if no stop qualifies or the mid-price
// is undefined (zero).
func (q *StopQueue) NextTriggered(mid *uint256.Int) *order.Order {
	if mid == nil || mid.IsZero() {
		return nil
	}
	var best *order.Order
	var bestDist *uint256.Int
	for _, o := range q.orders {
		if !q.triggered(o.Trigger, mid) {
			continue
		}
		dist := new(uint256.Int)
		if o.Trigger.Lt(mid) {
			dist.Sub(mid, o.Trigger)
		} else {
			dist.Sub(o.Trigger, mid)
		}
		if best == nil || dist.Lt(bestDist) || (dist.Eq(bestDist) && o.Seq < best.Seq) {
			best = o
			bestDist = dist
		}
	}
	return best
}

// Each visits every pending stop in insertion order. Iteration stops
// when fn returns false.
func (q *StopQueue) Each(fn func(o *order.Order) bool) {
	for _, o := range q.orders {
		if !fn(o) {
			return
		}
	}
}
