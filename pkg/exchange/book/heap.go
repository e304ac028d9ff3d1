package book

import "github.com/holiman/uint256"

// priceHeap tracks distinct price levels of one book side. For bids the
// best price is the highest (max-heap), for asks the lowest (min-heap).
// Use container/heap to manipulate it (Init, Push, Pop, Remove).
type priceHeap struct {
	prices []*uint256.Int
	max    bool
}

func (h *priceHeap) Len() int { return len(h.prices) }

func (h *priceHeap) Less(i, j int) bool {
	if h.max {
		return h.prices[i].Gt(h.prices[j])
	}
	return h.prices[i].Lt(h.prices[j])
}

func (h *priceHeap) Swap(i, j int) {
	h.prices[i], h.prices[j] = h.prices[j], h.prices[i]
}

func (h *priceHeap) Push(x interface{}) {
	h.prices = append(h.prices, x.(*uint256.Int))
}

func (h *priceHeap) Pop() interface{} {
	old := h.prices
	n := len(old)
	x := old[n-1]
	h.prices = old[:n-1]
	return x
}

// Peek returns the top price without removing it, or nil if empty.
func (h *priceHeap) Peek() *uint256.Int {
	if len(h.prices) == 0 {
		return nil
	}
	return h.prices[0]
}
