// Package engine implements the exchange core: order placement,
// matching in price-time priority, cancellation, the mid-price
// reference, and the stop trigger cascade. Every public action runs to
// completion as a single indivisible unit; all book, order and stop
// mutations of an action are applied before any outbound asset release
// for that action executes.
package engine

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/obdex/orderblock/pkg/exchange/asset"
	"github.com/obdex/orderblock/pkg/exchange/market"
	"github.com/obdex/orderblock/pkg/exchange/num"
	"github.com/obdex/orderblock/pkg/exchange/order"
)

// Exchange orchestrates markets, orders and custody. All shared state
// is reached through it; public actions are mutually exclusive via the
// in-progress guard.
type Exchange struct {
	busy    atomic.Bool // in-progress guard; trips on re-entry during settlement
	markets *market.Registry
	orders  *order.Registry
	custody asset.Custody
	log     *zap.SugaredLogger
}

// New builds an exchange over the given registries and custody. Open
// orders already held by the order registry (after a restart) are
// replayed into their books and stop queues in insertion order.
func New(markets *market.Registry, orders *order.Registry, custody asset.Custody, log *zap.Logger) (*Exchange, error) {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Exchange{
		markets: markets,
		orders:  orders,
		custody: custody,
		log:     log.Sugar(),
	}
	if err := e.rebuild(); err != nil {
		return nil, fmt.Errorf("failed to rebuild books: %w", err)
	}
	return e, nil
}

// rebuild re-seats persisted Open orders. Seq order preserves FIFO
// priority at equal prices.
func (e *Exchange) rebuild() error {
	open := e.orders.OpenOrders()
	sort.Slice(open, func(i, j int) bool { return open[i].Seq < open[j].Seq })

	for _, o := range open {
		m, err := e.markets.Get(o.MarketID)
		if err != nil {
			return fmt.Errorf("open order %d references %w", o.ID, err)
		}
		switch o.Kind {
		case order.Limit:
			m.SideBook(o.Side).Insert(o)
		case order.Stop:
			m.StopQueue(o.Side).Add(o)
		default:
			// Market orders never rest, so an Open one cannot have been
			// persisted.
			return fmt.Errorf("open market order %d found in storage", o.ID)
		}
	}
	return nil
}

// begin arms the in-progress guard. A release hook calling back into a
// public action while another is running gets ErrReentrantCall instead
// of observing half-applied state.
func (e *Exchange) begin() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (e *Exchange) end() {
	e.busy.Store(false)
}

// CreateMarket allocates a market for the unordered pair {base, quote}.
func (e *Exchange) CreateMarket(base, quote common.Address) (uint64, error) {
	if err := e.begin(); err != nil {
		return 0, err
	}
	defer e.end()

	m, err := e.markets.Create(base, quote)
	if err != nil {
		return 0, err
	}
	e.log.Infow("market_created", "market", m.ID, "base", base.Hex(), "quote", quote.Hex())
	return m.ID, nil
}

// CreateOrder escrows the caller's principal and places an order.
//
//   - kind Limit: price is the resting limit price; matches immediately
//     against crossable opposite orders, any remainder rests.
//   - kind Market: price is ignored; guardOrTrigger is the optional
//     worst-acceptable execution price (zero = any). Fills in full
//     within this call or fails with ErrNotEnoughOrders.
//   - kind Stop: guardOrTrigger is the mid-price threshold that will
//     activate it; price is the optional guard applied to the eventual
//     market conversion (zero = none).
//
// amount is in offered-currency units: quote asset for a Buy, base
// asset for a Sell. value is the native coin attached to the call; it
// must equal amount when the offered asset is the native coin and be
// zero otherwise.
func (e *Exchange) CreateOrder(caller common.Address, marketID uint64, price, amount *uint256.Int, side order.Side, kind order.Kind, guardOrTrigger, value *uint256.Int) (uint64, error) {
	if err := e.begin(); err != nil {
		return 0, err
	}
	defer e.end()

	m, err := e.markets.Get(marketID)
	if err != nil {
		return 0, err
	}
	if price == nil {
		price = num.Zero()
	}
	if guardOrTrigger == nil {
		guardOrTrigger = num.Zero()
	}
	if value == nil {
		value = num.Zero()
	}
	if amount == nil || amount.IsZero() {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	}

	var p, trigger *uint256.Int
	switch kind {
	case order.Limit:
		if price.IsZero() {
			return 0, fmt.Errorf("%w: limit order needs a price", ErrPriceGuardViolation)
		}
		p, trigger = price, num.Zero()
	case order.Market:
		// A directly-submitted market order is all-or-nothing: verify
		// depth before any state changes, escrow included.
		p, trigger = num.Zero(), guardOrTrigger
		if depth := e.oppositeDepth(m, side, trigger); depth.Lt(amount) {
			return 0, fmt.Errorf("%w: depth %s, need %s", ErrNotEnoughOrders, depth.Dec(), amount.Dec())
		}
	case order.Stop:
		if guardOrTrigger.IsZero() {
			return 0, fmt.Errorf("%w: stop order needs a trigger", ErrInvalidOrder)
		}
		p, trigger = price, guardOrTrigger
		// A stop must be a future trigger: rejecting one that would
		// fire against the current mid keeps "place then immediately
		// convert" out of the placement path.
		if mid := m.MidPrice(); !mid.IsZero() && stopTriggered(side, trigger, mid) {
			return 0, fmt.Errorf("%w: trigger %s already met at mid %s", ErrPriceGuardViolation, trigger.Dec(), mid.Dec())
		}
	default:
		return 0, fmt.Errorf("%w: unknown kind %d", ErrInvalidOrder, kind)
	}

	offered := offeredAsset(m, side)
	if offered == asset.Native {
		if !value.Eq(amount) {
			return 0, fmt.Errorf("%w: attached %s, need %s", ErrBadNativeValue, value.Dec(), amount.Dec())
		}
	} else if !value.IsZero() {
		return 0, fmt.Errorf("%w: unexpected attached value %s", ErrBadNativeValue, value.Dec())
	}

	// Escrow precedes order creation; a failed escrow leaves nothing
	// behind, a successful one is the order's principal.
	if err := e.custody.Escrow(offered, caller, amount); err != nil {
		return 0, fmt.Errorf("escrow failed: %w", err)
	}

	o, err := e.orders.New(marketID, caller, side, kind, p, trigger, amount)
	if err != nil {
		return 0, err
	}

	switch kind {
	case order.Stop:
		m.StopQueue(side).Add(o)
		e.log.Infow("stop_pending", "order", o.ID, "market", m.ID, "side", side.String(), "trigger", trigger.Dec())
		// The pending queue is not part of the book; no price moved, so
		// no cascade.
		return o.ID, nil

	case order.Limit:
		fills := e.match(m, o)
		if !o.Remaining.IsZero() {
			m.SideBook(side).Insert(o)
			if err := e.orders.Save(o); err != nil {
				return 0, err
			}
		} else if err := e.orders.Close(o, order.Filled); err != nil {
			return 0, err
		}
		e.log.Infow("limit_placed", "order", o.ID, "market", m.ID, "side", side.String(), "price", p.Dec(), "fills", len(fills))
		e.settle(m, o, fills)

	case order.Market:
		fills := e.match(m, o)
		if !o.Remaining.IsZero() {
			// The pre-flight depth check makes this unreachable.
			return 0, fmt.Errorf("%w: market order %d left %s unfilled", ErrNotEnoughOrders, o.ID, o.Remaining.Dec())
		}
		if err := e.orders.Close(o, order.Filled); err != nil {
			return 0, err
		}
		e.log.Infow("market_filled", "order", o.ID, "market", m.ID, "side", side.String(), "fills", len(fills))
		e.settle(m, o, fills)
	}

	e.runTriggers(m)
	return o.ID, nil
}

// CancelOrder removes a still-Open order owned by the caller, refunds
// its remaining escrow, and re-runs the trigger cascade if the book
// changed.
func (e *Exchange) CancelOrder(caller common.Address, id uint64) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	o, ok := e.orders.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	if o.Owner != caller {
		return fmt.Errorf("%w: order %d belongs to %s", ErrNotOwner, id, o.Owner.Hex())
	}
	if o.IsClosed() {
		return fmt.Errorf("%w: order %d is %s", ErrAlreadyClosed, id, o.Status)
	}

	m, err := e.markets.Get(o.MarketID)
	if err != nil {
		return err
	}

	bookChanged := false
	switch o.Kind {
	case order.Stop:
		if m.StopQueue(o.Side).Remove(id) == nil {
			return fmt.Errorf("open stop order %d missing from its queue", id)
		}
	default:
		if m.SideBook(o.Side).Remove(id) == nil {
			return fmt.Errorf("open order %d missing from its book", id)
		}
		bookChanged = true
	}

	refund := o.Remaining.Clone()
	o.Remaining.Clear()
	if err := e.orders.Close(o, order.Cancelled); err != nil {
		return err
	}
	e.log.Infow("order_cancelled", "order", id, "market", m.ID, "refund", refund.Dec())

	// Mutations done; the refund may hand control to external code.
	if err := e.custody.Release(offeredAsset(m, o.Side), o.Owner, refund); err != nil {
		return fmt.Errorf("refund failed: %w", err)
	}

	if bookChanged {
		e.runTriggers(m)
	}
	return nil
}

// GetPrice returns the market's mid-price, or zero when either book
// side is empty.
func (e *Exchange) GetPrice(marketID uint64) (*uint256.Int, error) {
	m, err := e.markets.Get(marketID)
	if err != nil {
		return nil, err
	}
	return m.MidPrice(), nil
}

// Order returns the read-only projection of an order record.
func (e *Exchange) Order(id uint64) (order.View, error) {
	o, ok := e.orders.Get(id)
	if !ok {
		return order.View{}, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return o.View(), nil
}

// FreeOrderID returns the next order identifier to be assigned.
func (e *Exchange) FreeOrderID() uint64 {
	return e.orders.FreeID()
}

// Market returns a market by id (read-only access for the API layer).
func (e *Exchange) Market(id uint64) (*market.Market, error) {
	return e.markets.Get(id)
}

// Markets lists all markets.
func (e *Exchange) Markets() []*market.Market {
	return e.markets.List()
}

// offeredAsset is the leg a taker of the given side escrows.
func offeredAsset(m *market.Market, s order.Side) common.Address {
	if s == order.Buy {
		return m.Quote
	}
	return m.Base
}

// wantedAsset is the leg a taker of the given side receives on fills.
func wantedAsset(m *market.Market, s order.Side) common.Address {
	if s == order.Buy {
		return m.Base
	}
	return m.Quote
}

// stopTriggered evaluates the trigger condition of a stop order of the
// given side against a defined mid-price.
func stopTriggered(s order.Side, trigger, mid *uint256.Int) bool {
	if s == order.Buy {
		return mid.Cmp(trigger) >= 0
	}
	return mid.Cmp(trigger) <= 0
}

// settle releases the proceeds of a completed match: each maker is paid
// in the taker's offered currency, the taker receives the aggregate in
// the opposite one. Runs strictly after all book and order mutations.
func (e *Exchange) settle(m *market.Market, taker *order.Order, fills []Fill) {
	takerGets := num.Zero()
	for _, f := range fills {
		makerGets, takerPart := f.QuoteQty, f.BaseQty
		if taker.Side == order.Sell {
			makerGets, takerPart = f.BaseQty, f.QuoteQty
		}
		takerGets.Add(takerGets, takerPart)
		if err := e.custody.Release(offeredAsset(m, taker.Side), f.MakerOwner, makerGets); err != nil {
			e.log.Errorw("maker_release_failed", "order", f.MakerID, "err", err)
		}
	}
	if !takerGets.IsZero() {
		if err := e.custody.Release(wantedAsset(m, taker.Side), taker.Owner, takerGets); err != nil {
			e.log.Errorw("taker_release_failed", "order", taker.ID, "err", err)
		}
	}
}
