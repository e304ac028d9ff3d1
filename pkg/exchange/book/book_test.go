package book

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/obdex/orderblock/pkg/exchange/num"
	"github.com/obdex/orderblock/pkg/exchange/order"
)

func limitOrder(id uint64, side order.Side, price string, amount string) *order.Order {
	return &order.Order{
		ID:        id,
		Side:      side,
		Kind:      order.Limit,
		Price:     num.MustWadFromString(price),
		Trigger:   uint256.NewInt(0),
		Remaining: num.MustWadFromString(amount),
		Status:    order.Open,
		Seq:       id,
	}
}

func TestBidsPricePriority(t *testing.T) {
	bids := NewBids()
	bids.Insert(limitOrder(1, order.Buy, "4", "100"))
	bids.Insert(limitOrder(2, order.Buy, "2", "100"))
	bids.Insert(limitOrder(3, order.Buy, "4.1", "100"))

	if got := bids.BestPrice(); !got.Eq(num.MustWadFromString("4.1")) {
		t.Fatalf("best bid = %s, want 4.1", got.Dec())
	}

	want := []uint64{3, 1, 2} // highest price first
	for _, id := range want {
		o := bids.PopBest()
		if o == nil || o.ID != id {
			t.Fatalf("PopBest = %+v, want id %d", o, id)
		}
	}
	if !bids.Empty() {
		t.Fatal("book should be empty")
	}
}

func TestAsksPricePriority(t *testing.T) {
	asks := NewAsks()
	asks.Insert(limitOrder(1, order.Sell, "7", "100"))
	asks.Insert(limitOrder(2, order.Sell, "5", "100"))

	if got := asks.BestPrice(); !got.Eq(num.MustWadFromString("5")) {
		t.Fatalf("best ask = %s, want 5", got.Dec())
	}
	if o := asks.PeekBest(); o.ID != 2 {
		t.Fatalf("PeekBest id = %d, want 2", o.ID)
	}
	// Peek must not remove
	if asks.Len() != 2 {
		t.Fatalf("Len = %d after peek, want 2", asks.Len())
	}
}

func TestFIFOAtEqualPrice(t *testing.T) {
	asks := NewAsks()
	asks.Insert(limitOrder(10, order.Sell, "1.5", "1"))
	asks.Insert(limitOrder(11, order.Sell, "1.5", "1"))
	asks.Insert(limitOrder(12, order.Sell, "1.5", "1"))

	for _, want := range []uint64{10, 11, 12} {
		if o := asks.PopBest(); o.ID != want {
			t.Fatalf("PopBest id = %d, want %d (FIFO at equal price)", o.ID, want)
		}
	}
}

func TestRemoveByID(t *testing.T) {
	bids := NewBids()
	bids.Insert(limitOrder(1, order.Buy, "1", "1"))
	bids.Insert(limitOrder(2, order.Buy, "1", "1"))
	bids.Insert(limitOrder(3, order.Buy, "0.75", "1"))

	if o := bids.Remove(2); o == nil || o.ID != 2 {
		t.Fatalf("Remove(2) = %+v, want order 2", o)
	}
	if o := bids.Remove(2); o != nil {
		t.Fatalf("second Remove(2) = %+v, want nil", o)
	}
	if bids.Len() != 2 {
		t.Fatalf("Len = %d, want 2", bids.Len())
	}

	// Removing the last order of a level must drop the level
	bids.Remove(1)
	if got := bids.BestPrice(); !got.Eq(num.MustWadFromString("0.75")) {
		t.Fatalf("best bid after removals = %s, want 0.75", got.Dec())
	}
}

func TestDecrementTop(t *testing.T) {
	asks := NewAsks()
	asks.Insert(limitOrder(1, order.Sell, "2", "10"))

	if err := asks.DecrementTop(num.MustWadFromString("4")); err != nil {
		t.Fatalf("DecrementTop: %v", err)
	}
	if got := asks.PeekBest().Remaining; !got.Eq(num.MustWadFromString("6")) {
		t.Fatalf("remaining = %s, want 6", got.Dec())
	}

	// Decrementing by the full remainder is a pop, not a decrement
	if err := asks.DecrementTop(num.MustWadFromString("6")); err == nil {
		t.Fatal("DecrementTop by full remainder should fail")
	}
	if err := NewAsks().DecrementTop(num.MustWadFromString("1")); err == nil {
		t.Fatal("DecrementTop on empty side should fail")
	}
}

func TestLevelsSorted(t *testing.T) {
	asks := NewAsks()
	asks.Insert(limitOrder(1, order.Sell, "2", "1"))
	asks.Insert(limitOrder(2, order.Sell, "1.5", "1"))
	asks.Insert(limitOrder(3, order.Sell, "1.5", "2"))

	levels := asks.Levels()
	if len(levels) != 2 {
		t.Fatalf("levels = %d, want 2", len(levels))
	}
	if !levels[0].Price.Eq(num.MustWadFromString("1.5")) {
		t.Fatalf("best level = %s, want 1.5", levels[0].Price.Dec())
	}
	if !levels[0].Qty.Eq(num.MustWadFromString("3")) {
		t.Fatalf("best level qty = %s, want 3", levels[0].Qty.Dec())
	}
}

func TestStopQueueTrigger(t *testing.T) {
	q := NewStopQueue(order.Buy)
	stop := func(id uint64, trigger string) *order.Order {
		return &order.Order{
			ID:        id,
			Side:      order.Buy,
			Kind:      order.Stop,
			Price:     uint256.NewInt(0),
			Trigger:   num.MustWadFromString(trigger),
			Remaining: num.MustWadFromString("1"),
			Status:    order.Open,
			Seq:       id,
		}
	}
	q.Add(stop(1, "2"))
	q.Add(stop(2, "1.5"))
	q.Add(stop(3, "1.5"))

	// Mid below all triggers: nothing fires
	if o := q.NextTriggered(num.MustWadFromString("1")); o != nil {
		t.Fatalf("NextTriggered(1) = %d, want none", o.ID)
	}
	// Undefined mid: nothing fires
	if o := q.NextTriggered(uint256.NewInt(0)); o != nil {
		t.Fatalf("NextTriggered(0) = %d, want none", o.ID)
	}

	// Mid at 1.8: both 1.5 stops fire; closest-to-mid is not relevant
	// between them (same trigger), so the earlier one wins
	o := q.NextTriggered(num.MustWadFromString("1.8"))
	if o == nil || o.ID != 2 {
		t.Fatalf("NextTriggered(1.8) = %+v, want order 2", o)
	}

	// Mid at 1.9: trigger 2 not met (buy stop needs mid >= trigger);
	// still order 2
	o = q.NextTriggered(num.MustWadFromString("1.9"))
	if o == nil || o.ID != 2 {
		t.Fatalf("NextTriggered(1.9) = %+v, want order 2", o)
	}

	// Mid at 2.1: all fire; trigger 2 is closest
	o = q.NextTriggered(num.MustWadFromString("2.1"))
	if o == nil || o.ID != 1 {
		t.Fatalf("NextTriggered(2.1) = %+v, want order 1", o)
	}

	if got := q.Remove(2); got == nil || got.ID != 2 {
		t.Fatalf("Remove(2) = %+v, want order 2", got)
	}
	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}
}
