// Package book implements one side of a market's order book: resting
// Open orders in strict price-time priority, plus the pending-stop
// queue of untriggered stop orders.
package book

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/obdex/orderblock/pkg/exchange/order"
)

// PriceLevel aggregates the resting quantity at a single price.
type PriceLevel struct {
	Price *uint256.Int
	Qty   *uint256.Int // total offered-currency remaining at this price
}

// Side holds the resting orders of one direction within a market.
// Bids are ordered best-price-highest, asks best-price-lowest; orders
// at the same price match FIFO by insertion sequence.
type Side struct {
	// Heap-based best price tracking (O(1) peek)
	heap *priceHeap

	// Price level queues (FIFO matching at each price)
	levels map[string][]*order.Order // price hex -> FIFO slice

	// Order index for O(1) lookup on cancellation
	index map[uint64]string // order id -> price hex
}

// NewBids creates the bid side (best price = highest).
func NewBids() *Side {
	return newSide(true)
}

// NewAsks creates the ask side (best price = lowest).
func NewAsks() *Side {
	return newSide(false)
}

func newSide(max bool) *Side {
	h := &priceHeap{max: max}
	heap.Init(h)
	return &Side{
		heap:   h,
		levels: make(map[string][]*order.Order),
		index:  make(map[uint64]string),
	}
}

func priceKey(p *uint256.Int) string {
	return p.Hex()
}

// Len returns the number of resting orders.
func (s *Side) Len() int {
	return len(s.index)
}

// Empty reports whether the side holds no orders.
func (s *Side) Empty() bool {
	return len(s.index) == 0
}

// BestPrice returns the best resting price, or nil if the side is empty.
func (s *Side) BestPrice() *uint256.Int {
	return s.heap.Peek()
}

// PeekBest returns the top-priority order without removing it, or nil
// if the side is empty.
func (s *Side) PeekBest() *order.Order {
	p := s.heap.Peek()
	if p == nil {
		return nil
	}
	level := s.levels[priceKey(p)]
	return level[0]
}

// PopBest removes and returns the top-priority order, or nil if the
// side is empty. Used when a maker is fully consumed.
func (s *Side) PopBest() *order.Order {
	p := s.heap.Peek()
	if p == nil {
		return nil
	}
	key := priceKey(p)
	level := s.levels[key]
	o := level[0]

	if len(level) == 1 {
		delete(s.levels, key)
		heap.Pop(s.heap)
	} else {
		s.levels[key] = level[1:]
	}
	delete(s.index, o.ID)
	return o
}

// DecrementTop reduces the top order's remaining amount without
// removing it. Used on partial consumption; the amount must be strictly
// less than the top order's remainder.
func (s *Side) DecrementTop(amount *uint256.Int) error {
	top := s.PeekBest()
	if top == nil {
		return fmt.Errorf("decrement on empty book side")
	}
	if amount.Cmp(top.Remaining) >= 0 {
		return fmt.Errorf("decrement %s >= top remaining %s", amount.Dec(), top.Remaining.Dec())
	}
	top.Remaining.Sub(top.Remaining, amount)
	return nil
}

// Insert adds a resting order at its limit price, behind any orders
// already resting at that price.
func (s *Side) Insert(o *order.Order) {
	key := priceKey(o.Price)
	if len(s.levels[key]) == 0 {
		// New price level
		heap.Push(s.heap, o.Price.Clone())
	}
	s.levels[key] = append(s.levels[key], o)
	s.index[o.ID] = key
}

// Remove takes an order out of the side by id (owner-cancel path).
// Returns the order, or nil if it is not resting here.
func (s *Side) Remove(id uint64) *order.Order {
	key, ok := s.index[id]
	if !ok {
		return nil
	}
	level := s.levels[key]
	for i, o := range level {
		if o.ID == id {
			s.levels[key] = append(level[:i], level[i+1:]...)
			if len(s.levels[key]) == 0 {
				delete(s.levels, key)
				s.removeFromHeap(o.Price)
			}
			delete(s.index, id)
			return o
		}
	}
	return nil
}

// removeFromHeap drops a price level from the heap (O(N) scan, only on
// level removal).
func (s *Side) removeFromHeap(price *uint256.Int) {
	for i, p := range s.heap.prices {
		if p.Eq(price) {
			heap.Remove(s.heap, i)
			return
		}
	}
}

// Each visits every resting order in no particular order. Iteration
// stops when fn returns false.
func (s *Side) Each(fn func(o *order.Order) bool) {
	for _, level := range s.levels {
		for _, o := range level {
			if !fn(o) {
				return
			}
		}
	}
}

// Levels returns aggregated price levels sorted best-first.
// Used for book snapshots over the API.
func (s *Side) Levels() []PriceLevel {
	out := make([]PriceLevel, 0, len(s.levels))
	for _, level := range s.levels {
		total := uint256.NewInt(0)
		for _, o := range level {
			total.Add(total, o.Remaining)
		}
		out = append(out, PriceLevel{Price: level[0].Price.Clone(), Qty: total})
	}

	// Sort best-first: highest for bids, lowest for asks
	sort.Slice(out, func(i, j int) bool {
		if s.heap.max {
			return out[i].Price.Gt(out[j].Price)
		}
		return out[i].Price.Lt(out[j].Price)
	})
	return out
}
