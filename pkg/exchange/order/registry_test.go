package order

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/obdex/orderblock/pkg/exchange/num"
	"github.com/obdex/orderblock/pkg/exchange/store"
)

var owner = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

func TestNewAssignsMonotonicIDs(t *testing.T) {
	r, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if r.FreeID() != 1 {
		t.Fatalf("FreeID = %d, want 1", r.FreeID())
	}

	price := num.MustWadFromString("1.5")
	amount := num.MustWadFromString("10")

	o1, err := r.New(1, owner, Buy, Limit, price, num.Zero(), amount)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	o2, err := r.New(1, owner, Sell, Limit, price, num.Zero(), amount)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if o1.ID != 1 || o2.ID != 2 {
		t.Fatalf("ids = %d, %d, want 1, 2", o1.ID, o2.ID)
	}
	if o1.Seq != 1 || o2.Seq != 2 {
		t.Fatalf("seqs = %d, %d, want 1, 2", o1.Seq, o2.Seq)
	}
	if r.FreeID() != 3 {
		t.Fatalf("FreeID after two orders = %d, want 3", r.FreeID())
	}

	// Inputs are cloned; mutating the originals must not touch the order.
	amount.Clear()
	if o1.Remaining.IsZero() {
		t.Fatal("Remaining aliased the caller's amount")
	}
}

func TestCloseIsTerminal(t *testing.T) {
	r, _ := NewRegistry(nil)
	o, _ := r.New(1, owner, Buy, Limit, num.MustWadFromString("2"), num.Zero(), num.MustWadFromString("5"))

	// Filled requires zero remaining.
	if err := r.Close(o, Filled); err == nil {
		t.Fatal("Close(Filled) with nonzero remaining should fail")
	}
	if o.Status != Open {
		t.Fatalf("failed close changed status to %s", o.Status)
	}

	if err := r.Close(o, Cancelled); err != nil {
		t.Fatalf("Close(Cancelled): %v", err)
	}
	if !o.IsClosed() {
		t.Fatal("order not closed")
	}

	// Terminal states are immutable.
	if err := r.Close(o, Failed); err == nil {
		t.Fatal("re-closing a closed order should fail")
	}
	if o.Status != Cancelled {
		t.Fatalf("status = %s, want Cancelled", o.Status)
	}
}

func TestOpenOrdersExcludesClosed(t *testing.T) {
	r, _ := NewRegistry(nil)
	price := num.MustWadFromString("1")
	o1, _ := r.New(1, owner, Buy, Limit, price, num.Zero(), num.MustWadFromString("1"))
	o2, _ := r.New(1, owner, Buy, Limit, price, num.Zero(), num.MustWadFromString("1"))

	r.Close(o1, Cancelled)

	open := r.OpenOrders()
	if len(open) != 1 || open[0].ID != o2.ID {
		t.Fatalf("OpenOrders = %v, want just order %d", open, o2.ID)
	}
}

func TestRegistryPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	st, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	r, err := NewRegistry(st)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	o1, _ := r.New(7, owner, Sell, Stop, num.MustWadFromString("3"), num.MustWadFromString("2.5"), num.MustWadFromString("4"))
	o2, _ := r.New(7, owner, Buy, Limit, num.MustWadFromString("1"), num.Zero(), num.MustWadFromString("4"))
	r.Close(o2, Cancelled)
	st.Close()

	st2, err := store.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	r2, err := NewRegistry(st2)
	if err != nil {
		t.Fatalf("NewRegistry reload: %v", err)
	}

	if r2.FreeID() != 3 {
		t.Fatalf("reloaded FreeID = %d, want 3", r2.FreeID())
	}

	got, ok := r2.Get(o1.ID)
	if !ok {
		t.Fatalf("order %d missing after reload", o1.ID)
	}
	if got.Kind != Stop || got.Side != Sell || got.MarketID != 7 {
		t.Fatalf("reloaded order mismatch: %+v", got)
	}
	if !got.Trigger.Eq(num.MustWadFromString("2.5")) {
		t.Fatalf("reloaded trigger = %s, want 2.5", got.Trigger.Dec())
	}

	gone, ok := r2.Get(o2.ID)
	if !ok || gone.Status != Cancelled {
		t.Fatalf("cancelled order not restored as Cancelled: %+v", gone)
	}
}
