package market

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/obdex/orderblock/pkg/exchange/num"
	"github.com/obdex/orderblock/pkg/exchange/order"
)

var (
	assetA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	assetB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	assetC = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestCreateCanonicalizesPair(t *testing.T) {
	r, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	m, err := r.Create(assetA, assetB)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.ID != 1 {
		t.Fatalf("first market id = %d, want 1", m.ID)
	}

	// Same pair
	if _, err := r.Create(assetA, assetB); !errors.Is(err, ErrPairExists) {
		t.Fatalf("duplicate pair: err = %v, want ErrPairExists", err)
	}
	// Reversed pair is the same market
	if _, err := r.Create(assetB, assetA); !errors.Is(err, ErrPairExists) {
		t.Fatalf("reversed pair: err = %v, want ErrPairExists", err)
	}
	// Identical assets
	if _, err := r.Create(assetA, assetA); err == nil {
		t.Fatal("identical assets should be rejected")
	}

	// A different pair is fine
	m2, err := r.Create(assetB, assetC)
	if err != nil {
		t.Fatalf("Create second market: %v", err)
	}
	if m2.ID != 2 {
		t.Fatalf("second market id = %d, want 2", m2.ID)
	}
	if r.Count() != 2 {
		t.Fatalf("Count = %d, want 2", r.Count())
	}
}

func TestGetUnknownMarket(t *testing.T) {
	r, _ := NewRegistry(nil)
	if _, err := r.Get(42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(42): err = %v, want ErrNotFound", err)
	}
}

func TestMidPrice(t *testing.T) {
	m := NewMarket(1, assetA, assetB)

	// Empty books: undefined price
	if got := m.MidPrice(); !got.IsZero() {
		t.Fatalf("mid of empty market = %s, want 0", got.Dec())
	}

	m.Bids.Insert(&order.Order{
		ID: 1, Side: order.Buy, Kind: order.Limit, Seq: 1,
		Price:     num.MustWadFromString("4.1"),
		Trigger:   num.Zero(),
		Remaining: num.MustWadFromString("100"),
	})

	// One-sided book: still undefined
	if got := m.MidPrice(); !got.IsZero() {
		t.Fatalf("mid of one-sided market = %s, want 0", got.Dec())
	}

	m.Asks.Insert(&order.Order{
		ID: 2, Side: order.Sell, Kind: order.Limit, Seq: 2,
		Price:     num.MustWadFromString("5"),
		Trigger:   num.Zero(),
		Remaining: num.MustWadFromString("100"),
	})

	if got := m.MidPrice(); !got.Eq(num.MustWadFromString("4.55")) {
		t.Fatalf("mid = %s, want 4.55", got.Dec())
	}
}
