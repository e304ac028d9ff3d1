// Package asset provides custody for the two traded assets of every
// market: user balances, allowances toward the exchange, and the
// escrow/release capability pair the engine consumes.
package asset

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/obdex/orderblock/pkg/exchange/store"
)

// Native is the sentinel address representing the chain's native coin.
// A native escrow is funded by the value attached to the call instead
// of an allowance.
var Native = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Errors surfaced by the escrow step. Wrapped by the engine, checked
// with errors.Is.
var (
	ErrInsufficientBalance   = errors.New("INSUFFICIENT_BALANCE")
	ErrInsufficientAllowance = errors.New("INSUFFICIENT_ALLOWANCE")
	ErrInsufficientEscrow    = errors.New("insufficient escrowed funds")
)

// Custody is the capability pair consumed by the exchange engine.
// Both operations either succeed fully or fail with no partial transfer.
type Custody interface {
	Escrow(asset, from common.Address, amount *uint256.Int) error
	Release(asset, to common.Address, amount *uint256.Int) error
}

// ReleaseHook runs after an outbound release credits the receiver.
// This is the in-process analogue of a receiving contract's fallback:
// externally-defined code taking control mid-call, and therefore the
// reentrancy hazard the engine must survive.
type ReleaseHook func(asset, to common.Address, amount *uint256.Int)

// Ledger manages asset balances in a thread-safe manner. Handles
// funding, allowances, escrow into the exchange pool and release back
// out. Uses in-memory cache + Pebble persistence for durability.
type Ledger struct {
	mu         sync.Mutex
	balances   map[string]*uint256.Int         // asset:addr -> balance
	allowances map[string]*uint256.Int         // asset:addr -> allowance toward the exchange
	escrowed   map[common.Address]*uint256.Int // asset -> exchange pool
	hooks      map[common.Address]ReleaseHook
	store      *store.Store // may be nil for an ephemeral ledger
}

// NewLedger creates a ledger backed by the given store. A nil store
// keeps all balances in memory only.
func NewLedger(st *store.Store) *Ledger {
	return &Ledger{
		balances:   make(map[string]*uint256.Int),
		allowances: make(map[string]*uint256.Int),
		escrowed:   make(map[common.Address]*uint256.Int),
		hooks:      make(map[common.Address]ReleaseHook),
		store:      st,
	}
}

func ledgerKey(asset, addr common.Address) string {
	return asset.Hex() + ":" + addr.Hex()
}

// balanceLocked returns the cached balance, loading from Pebble on a
// cache miss. Assumes the mutex is held.
func (l *Ledger) balanceLocked(asset, addr common.Address) *uint256.Int {
	key := ledgerKey(asset, addr)
	if b, ok := l.balances[key]; ok {
		return b
	}
	b := uint256.NewInt(0)
	if l.store != nil {
		var dec string
		if ok, err := l.store.GetJSON(store.BalanceKey(asset, addr), &dec); err == nil && ok {
			if v, err := uint256.FromDecimal(dec); err == nil {
				b = v
			}
		}
	}
	l.balances[key] = b
	return b
}

func (l *Ledger) allowanceLocked(asset, addr common.Address) *uint256.Int {
	key := ledgerKey(asset, addr)
	if a, ok := l.allowances[key]; ok {
		return a
	}
	a := uint256.NewInt(0)
	if l.store != nil {
		var dec string
		if ok, err := l.store.GetJSON(store.AllowanceKey(asset, addr), &dec); err == nil && ok {
			if v, err := uint256.FromDecimal(dec); err == nil {
				a = v
			}
		}
	}
	l.allowances[key] = a
	return a
}

func (l *Ledger) escrowedLocked(asset common.Address) *uint256.Int {
	if e, ok := l.escrowed[asset]; ok {
		return e
	}
	e := uint256.NewInt(0)
	if l.store != nil {
		var dec string
		if ok, err := l.store.GetJSON(store.EscrowKey(asset), &dec); err == nil && ok {
			if v, err := uint256.FromDecimal(dec); err == nil {
				e = v
			}
		}
	}
	l.escrowed[asset] = e
	return e
}

// persistBalance writes a balance through to Pebble.
func (l *Ledger) persistBalance(asset, addr common.Address, b *uint256.Int) error {
	if l.store == nil {
		return nil
	}
	return l.store.PutJSON(store.BalanceKey(asset, addr), b.Dec())
}

func (l *Ledger) persistAllowance(asset, addr common.Address, a *uint256.Int) error {
	if l.store == nil {
		return nil
	}
	return l.store.PutJSON(store.AllowanceKey(asset, addr), a.Dec())
}

func (l *Ledger) persistEscrow(asset common.Address, e *uint256.Int) error {
	if l.store == nil {
		return nil
	}
	return l.store.PutJSON(store.EscrowKey(asset), e.Dec())
}

// Mint credits an address with new units of an asset (the deposit
// bridge in a full deployment).
func (l *Ledger) Mint(asset, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balanceLocked(asset, to)
	b.Add(b, amount)
	return l.persistBalance(asset, to, b)
}

// Approve sets the owner's allowance toward the exchange for an asset.
// Meaningless for the native coin, which is escrowed via attached value.
func (l *Ledger) Approve(asset, owner common.Address, amount *uint256.Int) error {
	if asset == Native {
		return fmt.Errorf("native coin does not use allowances")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a := l.allowanceLocked(asset, owner)
	a.Set(amount)
	return l.persistAllowance(asset, owner, a)
}

// BalanceOf returns a copy of an address's balance.
func (l *Ledger) BalanceOf(asset, addr common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(asset, addr).Clone()
}

// Allowance returns a copy of an address's allowance toward the exchange.
func (l *Ledger) Allowance(asset, addr common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowanceLocked(asset, addr).Clone()
}

// Escrowed returns a copy of the exchange's total escrowed balance of
// an asset.
func (l *Ledger) Escrowed(asset common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.escrowedLocked(asset).Clone()
}

// SetReleaseHook registers externally-defined code to run whenever a
// release credits the given address. Pass nil to clear.
func (l *Ledger) SetReleaseHook(addr common.Address, hook ReleaseHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hook == nil {
		delete(l.hooks, addr)
		return
	}
	l.hooks[addr] = hook
}

// Escrow moves amount from the caller's balance into the exchange pool.
// Token assets additionally consume allowance; the native coin does not
// (its transfer is the value attached to the call). Fails atomically
// with no partial transfer.
func (l *Ledger) Escrow(asset, from common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balanceLocked(asset, from)
	if b.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, b.Dec(), amount.Dec())
	}

	var a *uint256.Int
	if asset != Native {
		a = l.allowanceLocked(asset, from)
		if a.Lt(amount) {
			return fmt.Errorf("%w: approved %s, need %s", ErrInsufficientAllowance, a.Dec(), amount.Dec())
		}
	}

	e := l.escrowedLocked(asset)
	b.Sub(b, amount)
	if a != nil {
		a.Sub(a, amount)
	}
	e.Add(e, amount)

	if err := l.persistBalance(asset, from, b); err != nil {
		return err
	}
	if a != nil {
		if err := l.persistAllowance(asset, from, a); err != nil {
			return err
		}
	}
	return l.persistEscrow(asset, e)
}

// Release moves amount from the exchange pool to the receiver, then
// hands control to the receiver's release hook if one is registered.
// The hook runs after all ledger state is updated.
func (l *Ledger) Release(asset, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()

	e := l.escrowedLocked(asset)
	if e.Lt(amount) {
		l.mu.Unlock()
		return fmt.Errorf("%w: pool %s, need %s", ErrInsufficientEscrow, e.Dec(), amount.Dec())
	}

	b := l.balanceLocked(asset, to)
	e.Sub(e, amount)
	b.Add(b, amount)

	if err := l.persistEscrow(asset, e); err != nil {
		l.mu.Unlock()
		return err
	}
	if err := l.persistBalance(asset, to, b); err != nil {
		l.mu.Unlock()
		return err
	}

	hook := l.hooks[to]
	l.mu.Unlock()

	// Control leaves the ledger here; the engine must have finished its
	// own mutations before calling Release.
	if hook != nil {
		hook(asset, to, amount.Clone())
	}
	return nil
}
