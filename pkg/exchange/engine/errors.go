package engine

import (
	"errors"

	"github.com/obdex/orderblock/pkg/exchange/asset"
	"github.com/obdex/orderblock/pkg/exchange/market"
)

// Sentinel errors of the public operations. Check with errors.Is; every
// failure aborts the enclosing call with no partial state change. The
// sole exception is the stop trigger cascade, where a failed conversion
// is localized to that one order.
var (
	// ErrPairExists: createMarket on a pair (or its reversal) that
	// already has a market.
	ErrPairExists = market.ErrPairExists

	// ErrMarketNotFound: operation names an unknown market id.
	ErrMarketNotFound = market.ErrNotFound

	// ErrInsufficientBalance / ErrInsufficientAllowance: the escrow
	// step could not pull the caller's principal.
	ErrInsufficientBalance   = asset.ErrInsufficientBalance
	ErrInsufficientAllowance = asset.ErrInsufficientAllowance

	// ErrNotEnoughOrders: a market order cannot be satisfied in full by
	// the opposite book under its guard price.
	ErrNotEnoughOrders = errors.New("NOT_ENOUGH_ORDERS")

	// ErrPriceGuardViolation: order price fields are inconsistent with
	// the current reference price (a stop whose trigger condition is
	// already met, or a zero limit price).
	ErrPriceGuardViolation = errors.New("PRICE_GUARD_VIOLATION")

	// ErrNotOwner: cancel attempted by a principal other than the
	// order's owner.
	ErrNotOwner = errors.New("NOT_OWNER")

	// ErrAlreadyClosed: acting on an order in a terminal status.
	ErrAlreadyClosed = errors.New("ALREADY_CLOSED")

	// ErrOrderNotFound: operation names an unknown order id.
	ErrOrderNotFound = errors.New("order not found")

	// ErrBadNativeValue: attached native value does not match the
	// escrow the order requires.
	ErrBadNativeValue = errors.New("BAD_NATIVE_VALUE")

	// ErrInvalidOrder: malformed order parameters (zero amount, missing
	// price or trigger).
	ErrInvalidOrder = errors.New("invalid order")

	// ErrReentrantCall: a public action was entered while another is in
	// progress (an outbound release handed control to code that called
	// back in).
	ErrReentrantCall = errors.New("reentrant call")
)
