package store

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema for Pebble storage:
//
//   ord:<order-id>            → Order record
//   mkt:<market-id>           → Market record (identity only; books are rebuilt)
//   bal:<asset>:<address>     → wad balance
//   alw:<asset>:<address>     → wad allowance toward the exchange
//   esc:<asset>               → wad total escrowed by the exchange
//   meta:nextorder            → next order id to assign
//   meta:nextmarket           → next market id to assign

const (
	prefixOrder     = "ord:"
	prefixMarket    = "mkt:"
	prefixBalance   = "bal:"
	prefixAllowance = "alw:"
	prefixEscrow    = "esc:"
)

// OrderKey returns the key for an order record.
// Format: "ord:{id:016x}" so lexicographic order matches numeric order.
func OrderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", prefixOrder, id))
}

// OrderPrefix returns the prefix covering all order records.
func OrderPrefix() []byte {
	return []byte(prefixOrder)
}

// MarketKey returns the key for a market record.
func MarketKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", prefixMarket, id))
}

// MarketPrefix returns the prefix covering all market records.
func MarketPrefix() []byte {
	return []byte(prefixMarket)
}

// BalanceKey returns the key for an address's balance of an asset.
func BalanceKey(asset, addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, asset.Hex(), addr.Hex()))
}

// AllowanceKey returns the key for an address's allowance of an asset
// toward the exchange.
func AllowanceKey(asset, addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixAllowance, asset.Hex(), addr.Hex()))
}

// EscrowKey returns the key for the exchange's total escrowed balance
// of an asset.
func EscrowKey(asset common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixEscrow, asset.Hex()))
}

// NextOrderIDKey returns the key holding the next order id.
func NextOrderIDKey() []byte {
	return []byte("meta:nextorder")
}

// NextMarketIDKey returns the key holding the next market id.
func NextMarketIDKey() []byte {
	return []byte("meta:nextmarket")
}
