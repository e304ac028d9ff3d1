package asset

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/obdex/orderblock/pkg/exchange/num"
	"github.com/obdex/orderblock/pkg/exchange/store"
)

var (
	token = common.HexToAddress("0x1111111111111111111111111111111111111111")
	alice = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func wad(s string) *uint256.Int { return num.MustWadFromString(s) }

func TestTokenEscrowConsumesAllowance(t *testing.T) {
	l := NewLedger(nil)
	if err := l.Mint(token, alice, wad("10")); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	// No allowance yet
	if err := l.Escrow(token, alice, wad("1")); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("escrow without allowance: err = %v, want ErrInsufficientAllowance", err)
	}

	if err := l.Approve(token, alice, wad("3")); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := l.Escrow(token, alice, wad("2")); err != nil {
		t.Fatalf("Escrow: %v", err)
	}

	if got := l.BalanceOf(token, alice); !got.Eq(wad("8")) {
		t.Fatalf("balance = %s, want 8", got.Dec())
	}
	if got := l.Allowance(token, alice); !got.Eq(wad("1")) {
		t.Fatalf("allowance = %s, want 1", got.Dec())
	}
	if got := l.Escrowed(token); !got.Eq(wad("2")) {
		t.Fatalf("escrowed = %s, want 2", got.Dec())
	}

	// Remaining allowance is 1, so 2 more must fail and change nothing.
	if err := l.Escrow(token, alice, wad("2")); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("over-allowance escrow: err = %v", err)
	}
	if got := l.BalanceOf(token, alice); !got.Eq(wad("8")) {
		t.Fatalf("balance after failed escrow = %s, want 8", got.Dec())
	}
	if got := l.Escrowed(token); !got.Eq(wad("2")) {
		t.Fatalf("escrowed after failed escrow = %s, want 2", got.Dec())
	}
}

func TestEscrowInsufficientBalance(t *testing.T) {
	l := NewLedger(nil)
	l.Mint(token, alice, wad("1"))
	l.Approve(token, alice, wad("100"))

	if err := l.Escrow(token, alice, wad("2")); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if got := l.Allowance(token, alice); !got.Eq(wad("100")) {
		t.Fatalf("allowance consumed by failed escrow: %s", got.Dec())
	}
}

func TestNativeSkipsAllowance(t *testing.T) {
	l := NewLedger(nil)
	l.Mint(Native, alice, wad("5"))

	if err := l.Approve(Native, alice, wad("1")); err == nil {
		t.Fatal("Approve on native coin should fail")
	}
	if err := l.Escrow(Native, alice, wad("5")); err != nil {
		t.Fatalf("native escrow: %v", err)
	}
	if got := l.Escrowed(Native); !got.Eq(wad("5")) {
		t.Fatalf("escrowed = %s, want 5", got.Dec())
	}
}

func TestReleaseMovesPoolToReceiver(t *testing.T) {
	l := NewLedger(nil)
	l.Mint(token, alice, wad("4"))
	l.Approve(token, alice, wad("4"))
	if err := l.Escrow(token, alice, wad("4")); err != nil {
		t.Fatalf("Escrow: %v", err)
	}

	if err := l.Release(token, bob, wad("3")); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := l.BalanceOf(token, bob); !got.Eq(wad("3")) {
		t.Fatalf("receiver balance = %s, want 3", got.Dec())
	}
	if got := l.Escrowed(token); !got.Eq(wad("1")) {
		t.Fatalf("escrowed = %s, want 1", got.Dec())
	}

	if err := l.Release(token, bob, wad("2")); !errors.Is(err, ErrInsufficientEscrow) {
		t.Fatalf("over-release: err = %v, want ErrInsufficientEscrow", err)
	}
}

func TestReleaseHookRunsAfterStateUpdate(t *testing.T) {
	l := NewLedger(nil)
	l.Mint(token, alice, wad("2"))
	l.Approve(token, alice, wad("2"))
	l.Escrow(token, alice, wad("2"))

	var seenBalance, seenEscrow *uint256.Int
	l.SetReleaseHook(bob, func(asset, to common.Address, amount *uint256.Int) {
		// The ledger must be fully updated and unlocked by the time the
		// hook fires; these queries would deadlock otherwise.
		seenBalance = l.BalanceOf(token, bob)
		seenEscrow = l.Escrowed(token)
	})

	if err := l.Release(token, bob, wad("2")); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if seenBalance == nil || !seenBalance.Eq(wad("2")) {
		t.Fatalf("hook saw balance %v, want 2", seenBalance)
	}
	if seenEscrow == nil || !seenEscrow.IsZero() {
		t.Fatalf("hook saw escrow %v, want 0", seenEscrow)
	}

	l.SetReleaseHook(bob, nil)
}

func TestLedgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	st, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	l := NewLedger(st)
	l.Mint(token, alice, wad("7"))
	l.Approve(token, alice, wad("5"))
	l.Escrow(token, alice, wad("2"))
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := store.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	l2 := NewLedger(st2)

	if got := l2.BalanceOf(token, alice); !got.Eq(wad("5")) {
		t.Fatalf("reloaded balance = %s, want 5", got.Dec())
	}
	if got := l2.Allowance(token, alice); !got.Eq(wad("3")) {
		t.Fatalf("reloaded allowance = %s, want 3", got.Dec())
	}
	if got := l2.Escrowed(token); !got.Eq(wad("2")) {
		t.Fatalf("reloaded escrow = %s, want 2", got.Dec())
	}
}
